package http

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/adworks/ad-portal/internal/observability"
	apperrors "github.com/adworks/ad-portal/pkg/util/errorutil"
)

// RegisterMiddlewares installs, outermost first, error rendering, panic
// recovery, the request deadline and request logging.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) {
	app.Use(renderErrors(logger, metrics))
	app.Use(recoverPanics(logger))
	if timeout > 0 {
		app.Use(withDeadline(timeout))
	}
	app.Use(observability.RequestLogger(logger, metrics))
}

// renderErrors turns any handler error, including fiber's 404 for unknown
// routes, into a failed envelope.
func renderErrors(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if err == nil {
			return nil
		}

		domainErr := apperrors.ToDomainError(err)
		metrics.RecordError(c.Path(), c.Method(), domainErr.Code)
		if domainErr.HTTPStatus >= http.StatusInternalServerError {
			logger.Error("request failed", zap.String("path", c.Path()), zap.Error(domainErr))
		}
		return apperrors.Render(c, domainErr)
	}
}

func recoverPanics(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			stack := debug.Stack()
			logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", stack))
			observability.CapturePanic(r, stack, c.Path())
			err = apperrors.NewInternalError(fmt.Errorf("panic: %v", r))
		}()
		return c.Next()
	}
}

func withDeadline(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}
