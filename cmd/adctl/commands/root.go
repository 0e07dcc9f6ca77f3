package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adworks/ad-portal/internal/app"
	"github.com/adworks/ad-portal/internal/config"
	"github.com/adworks/ad-portal/internal/observability"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "adctl",
		Short:         "Sign in to the ad-services backend and run the local portal",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		NewServeCommand(),
		NewLoginCommand(),
		NewRegisterCommand(),
		NewLogoutCommand(),
		NewWhoamiCommand(),
	)

	return rootCmd
}

// bootstrap loads config and builds the session container. The returned
// cleanup closes the container and flushes the logger.
func bootstrap(ctx context.Context) (*app.Container, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init logger: %w", err)
	}

	container, err := app.New(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, fmt.Errorf("failed to build session client: %w", err)
	}

	cleanup := func() {
		container.Close()
		_ = logger.Sync()
	}
	logger.Debug("session client ready",
		zap.String("backend", cfg.Backend.BaseURL),
		zap.String("token_store", cfg.Token.Driver),
	)
	return container, cleanup, nil
}
