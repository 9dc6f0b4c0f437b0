package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/drdator/ccm/internal/style"
	"github.com/drdator/ccm/internal/userconfig"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change CLI configuration",
	Long: `Show or change the CLI configuration stored in ~/.ccm/config.toml.

Examples:
  ccm config --list
  ccm config --get registry
  ccm config --registry localhost:3000      # becomes https://localhost:3000/api
  ccm config --set registry=http://localhost:3000`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

var (
	configList     bool
	configGet      string
	configSet      string
	configRegistry string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().BoolVar(&configList, "list", false, "List all settings")
	configCmd.Flags().StringVar(&configGet, "get", "", "Print a value: registry, username, authenticated")
	configCmd.Flags().StringVar(&configSet, "set", "", "Set a value: registry=<url>")
	configCmd.Flags().StringVar(&configRegistry, "registry", "", "Set the registry URL")
}

func runConfig(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	store, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	switch {
	case configGet != "":
		value, err := cfg.Get(configGet)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, value)
		return nil

	case configRegistry != "" || configSet != "":
		key, value := "registry", configRegistry
		if configSet != "" {
			var ok bool
			key, value, ok = strings.Cut(configSet, "=")
			if !ok || key == "" || value == "" {
				return withHint(errors.New("invalid format for --set"), "use: ccm config --set key=value")
			}
		}
		if err := cfg.Set(key, value); err != nil {
			if errors.Is(err, userconfig.ErrUnknownKey) {
				return withHint(err, "settable keys: registry")
			}
			return err
		}
		if err := store.Save(cfg); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s Registry URL updated: %s\n", style.SuccessPrefix, style.Info.Render(cfg.Registry))
		return nil
	}

	printConfig(cmd, cfg)
	if !configList {
		fmt.Fprintf(out, "\n%s\n", style.Dim.Render("Change the registry with: ccm config --registry <url>"))
	}
	return nil
}

func printConfig(cmd *cobra.Command, cfg *userconfig.Config) {
	out := cmd.OutOrStdout()
	username := cfg.Username
	if username == "" {
		username = "Not logged in"
	}
	authenticated := style.Error.Render("No")
	if cfg.Authenticated() {
		authenticated = style.Success.Render("Yes")
	}

	fmt.Fprintf(out, "%s\n", style.Bold.Render("CCM configuration"))
	fmt.Fprintf(out, "  Registry URL:  %s\n", style.Info.Render(cfg.Registry))
	fmt.Fprintf(out, "  Username:      %s\n", username)
	fmt.Fprintf(out, "  Authenticated: %s\n", authenticated)
}
