// Package app assembles the session client used by adctl: token store,
// refresh coordinator, api clients, session manager and notifications.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/adworks/ad-portal/internal/client"
	"github.com/adworks/ad-portal/internal/config"
	"github.com/adworks/ad-portal/internal/events"
	"github.com/adworks/ad-portal/internal/observability"
	"github.com/adworks/ad-portal/internal/persistence"
	"github.com/adworks/ad-portal/internal/refresh"
	"github.com/adworks/ad-portal/internal/service"
	"github.com/adworks/ad-portal/internal/session"
	"github.com/adworks/ad-portal/internal/tokenstore"
	"github.com/adworks/ad-portal/internal/worker"
)

// Container owns every long-lived piece of the session client.
type Container struct {
	Config        *config.Config
	Logger        *zap.Logger
	Metrics       *observability.Metrics
	Tokens        tokenstore.Store
	Dispatcher    events.Dispatcher
	Coordinator   *refresh.Coordinator
	AuthAPI       *client.AuthAPI
	UserAPI       *client.UserAPI
	Sessions      *session.Manager
	Notifications *service.NotificationService

	redis   *persistence.Redis
	closers []func()
}

// New wires the container from cfg.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	c := &Container{
		Config:     cfg,
		Logger:     logger,
		Metrics:    observability.NewMetrics(),
		Dispatcher: events.NewInMemoryDispatcher(),
	}

	if cfg.Token.Driver == config.TokenStoreRedis {
		c.redis = persistence.NewRedis(ctx, cfg.Redis, logger)
		c.closers = append(c.closers, c.redis.Close)
		if err := c.redis.Ping(ctx); err != nil {
			c.Close()
			return nil, fmt.Errorf("token store redis: %w", err)
		}
	}

	var redisClient *redis.Client
	if c.redis != nil {
		redisClient = c.redis.Client
	}
	tokens, err := tokenstore.New(cfg.Token, redisClient)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Tokens = tokens

	c.Coordinator = refresh.NewCoordinator(tokens, c.Dispatcher, logger.Named("refresh"),
		refresh.WithOptimisticPassive(cfg.Session.OptimisticBackground),
		refresh.WithMetrics(c.Metrics),
	)
	// Drops whatever refresh is still in flight at shutdown.
	c.closers = append(c.closers, c.Coordinator.Reset)

	// One cookie jar for every client so the refresh cookie set at login is
	// sent back to the refresh endpoint.
	httpClient := client.NewHTTPClient(cfg.Backend.Timeout())
	authClient := client.New(client.Options{Name: "auth", BaseURL: cfg.Backend.BaseURL, HTTPClient: httpClient}, tokens, c.Coordinator, logger)
	userClient := client.New(client.Options{Name: "users", BaseURL: cfg.Backend.BaseURL, HTTPClient: httpClient}, tokens, c.Coordinator, logger)
	c.AuthAPI = client.NewAuthAPI(authClient)
	c.UserAPI = client.NewUserAPI(userClient)
	c.Coordinator.Init(c.AuthAPI.RefreshToken)

	c.Sessions = session.NewManager(session.NewStore(), tokens, c.AuthAPI, c.UserAPI, c.Dispatcher, logger.Named("session"),
		session.WithFence(c.Coordinator),
	)
	c.closers = append(c.closers, c.Sessions.Close)

	c.Notifications = service.NewNotificationService(c.Dispatcher, logger.Named("notifications"))
	c.closers = append(c.closers, worker.StartNotificationWorker(c.Notifications))

	return c, nil
}

// StartBackground launches the passive refresh worker until ctx is done.
func (c *Container) StartBackground(ctx context.Context) {
	w := worker.NewRefreshWorker(c.Coordinator, c.Tokens, c.Config.Session.RefreshInterval(), c.Logger)
	worker.StartRefreshWorker(ctx, w)
}

// Close releases resources in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
