package cmd

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/drdator/ccm/internal/api/dto"
	"github.com/drdator/ccm/internal/client"
	"github.com/drdator/ccm/internal/style"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account in the registry",
	Long: `Create an account in the registry and store the credentials in
~/.ccm/config.toml. Missing values are prompted for.`,
	Args: cobra.NoArgs,
	RunE: runRegister,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the registry",
	Long: `Log in with a username or email. The session token and API key
are stored in ~/.ccm/config.toml.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged in user",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Show or regenerate the API key",
	Long: `Show the API key of the logged in user. With --regenerate a new key
is issued and the previous one stops working immediately.`,
	Args: cobra.NoArgs,
	RunE: runAPIKey,
}

var (
	authUsername string
	authEmail    string
	authPassword string
	loginForce   bool
	apikeyRegen  bool
)

func init() {
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(apikeyCmd)

	registerCmd.Flags().StringVarP(&authUsername, "username", "u", "", "Username")
	registerCmd.Flags().StringVarP(&authEmail, "email", "e", "", "Email address")
	registerCmd.Flags().StringVarP(&authPassword, "password", "p", "", "Password (prompted if omitted)")

	loginCmd.Flags().StringVarP(&authUsername, "username", "u", "", "Username or email")
	loginCmd.Flags().StringVarP(&authPassword, "password", "p", "", "Password (prompted if omitted)")
	loginCmd.Flags().BoolVarP(&loginForce, "force", "f", false, "Log in even if already authenticated")

	apikeyCmd.Flags().BoolVar(&apikeyRegen, "regenerate", false, "Issue a new API key")
}

func runRegister(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	store, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	username, err := promptLine(out, "Username", authUsername)
	if err != nil {
		return err
	}
	email, err := promptLine(out, "Email", authEmail)
	if err != nil {
		return err
	}
	password, err := promptPassword(out, authPassword)
	if err != nil {
		return err
	}

	resp, err := newClient(cfg).Register(cmd.Context(), dto.RegisterRequest{
		Username: username,
		Email:    email,
		Password: password,
	})
	if err != nil {
		return explain(err)
	}

	cfg.Token = resp.Token
	cfg.APIKey = resp.User.APIKey
	cfg.Username = resp.User.Username
	if err := store.Save(cfg); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s Registered %s\n", style.SuccessPrefix, style.Info.Render(resp.User.Username))
	fmt.Fprintf(out, "  %s\n", style.Dim.Render("API key: "+maskKey(resp.User.APIKey)))
	fmt.Fprintf(out, "  %s\n", style.Dim.Render("Credentials saved to "+store.Path()))
	return nil
}

func runLogin(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	store, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Authenticated() && !loginForce {
		fmt.Fprintf(out, "%s Already logged in as %s\n", style.WarningPrefix, style.Info.Render(cfg.Username))
		fmt.Fprintf(out, "  %s\n", style.Dim.Render("Use --force to log in as a different user"))
		return nil
	}

	login, err := promptLine(out, "Username or email", authUsername)
	if err != nil {
		return err
	}
	password, err := promptPassword(out, authPassword)
	if err != nil {
		return err
	}

	cfg.ClearAuth()
	resp, err := newClient(cfg).Login(cmd.Context(), dto.LoginRequest{Username: login, Password: password})
	if err != nil {
		if client.StatusOf(err) == http.StatusUnauthorized {
			return withHint(err, "check your username and password, or create an account: ccm register")
		}
		return explain(err)
	}
	cfg.Token = resp.Token
	cfg.Username = resp.User.Username

	// ответ входа не содержит API-ключ
	if me, err := newClient(cfg).Me(cmd.Context()); err == nil {
		cfg.APIKey = me.APIKey
	} else {
		logger.Warn("Не удалось получить API-ключ", slog.String("error", err.Error()))
	}
	if err := store.Save(cfg); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s Logged in as %s\n", style.SuccessPrefix, style.Info.Render(resp.User.Username))
	fmt.Fprintf(out, "  %s\n", style.Dim.Render("Session expires "+resp.ExpiresAt.Local().Format("2006-01-02 15:04")))
	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	store, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Authenticated() {
		fmt.Fprintf(out, "%s Not currently logged in\n", style.WarningPrefix)
		return nil
	}

	username := cfg.Username
	cfg.ClearAuth()
	if err := store.Save(cfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s Logged out %s\n", style.SuccessPrefix, style.Info.Render(username))
	return nil
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Authenticated() {
		return errNotLoggedIn
	}

	user, err := newClient(cfg).Me(cmd.Context())
	if err != nil {
		return explain(err)
	}
	fmt.Fprintf(out, "%s\n", style.Bold.Render(user.Username))
	fmt.Fprintf(out, "  Email:    %s\n", user.Email)
	fmt.Fprintf(out, "  Since:    %s\n", user.CreatedAt.Local().Format("2006-01-02"))
	fmt.Fprintf(out, "  Registry: %s\n", style.Info.Render(cfg.Registry))
	return nil
}

func runAPIKey(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	store, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Authenticated() {
		return errNotLoggedIn
	}
	c := newClient(cfg)

	if !apikeyRegen {
		user, err := c.Me(cmd.Context())
		if err != nil {
			return explain(err)
		}
		fmt.Fprintln(out, user.APIKey)
		return nil
	}

	key, err := c.RegenerateAPIKey(cmd.Context())
	if err != nil {
		return explain(err)
	}
	cfg.APIKey = key
	if err := store.Save(cfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s API key regenerated, the previous key no longer works\n", style.SuccessPrefix)
	fmt.Fprintln(out, key)
	return nil
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8] + "..."
}
