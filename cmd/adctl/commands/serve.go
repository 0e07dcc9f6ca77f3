package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adworks/ad-portal/internal/observability"
	"github.com/adworks/ad-portal/internal/portal"
)

const shutdownGrace = 5 * time.Second

// NewServeCommand runs the portal with the background refresh worker.
func NewServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local portal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			container, cleanup, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			cfg := container.Config
			logger := container.Logger
			if err := observability.InitSentry(cfg.Sentry.DSN, cfg.App.Env, cfg.App.Version); err != nil {
				logger.Warn("sentry disabled", zap.Error(err))
			}
			defer observability.FlushSentry()

			if err := container.Sessions.InitializeAuth(ctx); err != nil {
				logger.Warn("session not restored at startup", zap.Error(err))
			}
			container.StartBackground(ctx)

			server := portal.New(portal.Deps{
				Sessions:      container.Sessions,
				Refresh:       container.Coordinator,
				Profiles:      container.UserAPI,
				Notifications: container.Notifications,
				Logger:        logger.Named("portal"),
				Metrics:       container.Metrics,
				AppName:       cfg.App.Name,
				Timeout:       cfg.App.RequestTimeout(),
			})

			if addr == "" {
				addr = cfg.Portal.Addr()
			}
			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Listen(addr)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down portal")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (default PORTAL_HOST:PORTAL_PORT)")
	return cmd
}
