// Пакет cmd — команды CLI ccm.
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/drdator/ccm/internal/client"
	"github.com/drdator/ccm/internal/project"
	"github.com/drdator/ccm/internal/userconfig"
)

// Version задаётся при сборке через -ldflags.
var Version = "dev"

// Env — окружение запуска CLI, собирается в main.
type Env struct {
	// ConfigPath — путь к config.toml
	ConfigPath string
	// DefaultRegistry — адрес реестра, если в конфигурации он не задан
	DefaultRegistry string
	// WorkDir — корень проекта
	WorkDir string
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
	// HTTPClient — nil означает клиент по умолчанию
	HTTPClient *http.Client
}

var (
	env    Env
	stdin  *bufio.Reader
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "ccm",
	Short: "Claude Command Manager",
	Long: `ccm installs and publishes packages of Claude commands.

Packages are versioned bundles of markdown command files stored in a
registry. Installed packages live in .claude/installed and are linked
into .claude/commands.

Examples:
  ccm init                    # Initialize .claude in the current directory
  ccm search git              # Find packages
  ccm install git-tools@1.2.0 # Install a specific version
  ccm publish --dry           # Preview a publish`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	},
}

func init() {
	rootCmd.Version = Version
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "Verbose logging to stderr")
}

// Execute запускает CLI с аргументами args.
func Execute(ctx context.Context, e Env, args []string) error {
	if e.Stdin == nil {
		e.Stdin = os.Stdin
	}
	if e.Stdout == nil {
		e.Stdout = os.Stdout
	}
	if e.Stderr == nil {
		e.Stderr = os.Stderr
	}
	if e.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determining working directory: %w", err)
		}
		e.WorkDir = wd
	}
	env = e
	stdin = bufio.NewReader(e.Stdin)

	rootCmd.SetArgs(args)
	rootCmd.SetIn(e.Stdin)
	rootCmd.SetOut(e.Stdout)
	rootCmd.SetErr(e.Stderr)
	return rootCmd.ExecuteContext(ctx)
}

func configStore() *userconfig.Store {
	return userconfig.NewStore(env.ConfigPath, env.DefaultRegistry)
}

func loadConfig() (*userconfig.Store, *userconfig.Config, error) {
	store := configStore()
	cfg, err := store.Load()
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func newClient(cfg *userconfig.Config) *client.Client {
	opts := []client.Option{
		client.WithUserAgent("ccm/" + Version),
		client.WithToken(cfg.Token),
		client.WithAPIKey(cfg.APIKey),
	}
	if env.HTTPClient != nil {
		opts = append(opts, client.WithHTTPClient(env.HTTPClient))
	}
	return client.New(cfg.Registry, opts...)
}

func currentProject() *project.Project {
	return project.New(env.WorkDir)
}
