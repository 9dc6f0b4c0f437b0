// Точка входа CLI ccm: установка и публикация пакетов команд.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/drdator/ccm/internal/cmd"
	"github.com/drdator/ccm/internal/userconfig"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configPath, err := userconfig.DefaultPath()
	if err != nil {
		cmd.PrintError(os.Stderr, err)
		os.Exit(1)
	}

	registry := os.Getenv("CCM_REGISTRY_URL")
	if registry == "" {
		registry = userconfig.DefaultRegistry
	}

	err = cmd.Execute(ctx, cmd.Env{
		ConfigPath:      configPath,
		DefaultRegistry: registry,
		Stdin:           os.Stdin,
		Stdout:          os.Stdout,
		Stderr:          os.Stderr,
	}, os.Args[1:])
	if err != nil {
		cmd.PrintError(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
