// Package portal serves the local ad-services console: public pages, the
// login and register forms, and the role areas behind the route guards.
package portal

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/adworks/ad-portal/internal/api/dto"
	"github.com/adworks/ad-portal/internal/observability"
	"github.com/adworks/ad-portal/internal/refresh"
	"github.com/adworks/ad-portal/internal/service"
	"github.com/adworks/ad-portal/internal/session"
)

// RefreshStatus reports the shared refresh coordinator's position.
type RefreshStatus interface {
	State() refresh.State
	Waiting() int
}

// Deps bundles what the portal needs. Refresh is optional.
type Deps struct {
	Sessions      *session.Manager
	Refresh       RefreshStatus
	Profiles      session.ProfileService
	Notifications *service.NotificationService
	Logger        *zap.Logger
	Metrics       *observability.Metrics
	AppName       string
	Timeout       time.Duration
}

// Server is the console HTTP server.
type Server struct {
	app           *fiber.App
	sessions      *session.Manager
	refresh       RefreshStatus
	profiles      session.ProfileService
	notifications *service.NotificationService
	logger        *zap.Logger
}

// New builds the fiber app and registers all routes.
func New(deps Deps) *Server {
	s := &Server{
		sessions:      deps.Sessions,
		refresh:       deps.Refresh,
		profiles:      deps.Profiles,
		notifications: deps.Notifications,
		logger:        deps.Logger,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               deps.AppName,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError(deps.Metrics),
	})
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			stack := debug.Stack()
			s.logger.Error("panic recovered", zap.Any("panic", e), zap.ByteString("stack", stack))
			observability.CapturePanic(e, stack, c.Path())
		},
	}))
	if deps.Timeout > 0 {
		s.app.Use(func(c *fiber.Ctx) error {
			ctx, cancel := context.WithTimeout(c.UserContext(), deps.Timeout)
			defer cancel()
			c.SetUserContext(ctx)
			return c.Next()
		})
	}
	s.app.Use(observability.RequestLogger(deps.Logger, deps.Metrics))

	s.registerRoutes()
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen blocks serving addr.
func (s *Server) Listen(addr string) error {
	s.logger.Info("portal listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// handleError turns an expired session into the login redirect and every
// other error into a failed envelope.
func (s *Server) handleError(metrics *observability.Metrics) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if errors.Is(err, refresh.ErrSessionExpired) {
			return c.Redirect(refresh.LoginRedirect, http.StatusFound)
		}

		status := http.StatusInternalServerError
		message := http.StatusText(status)
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			status = fiberErr.Code
			message = fiberErr.Message
		}

		metrics.RecordError(c.Path(), c.Method(), http.StatusText(status))
		if status >= http.StatusInternalServerError {
			s.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		}
		return c.Status(status).JSON(dto.Fail(message))
	}
}
