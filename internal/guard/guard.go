// Package guard gates portal routes on the session state.
package guard

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/adworks/ad-portal/internal/api/dto"
	"github.com/adworks/ad-portal/internal/domain"
	"github.com/adworks/ad-portal/internal/refresh"
)

const (
	LoginRoute        = "/auth/login"
	AccessDeniedRoute = "/access-denied"

	sessionKey = "guard_session"
)

// Decision is the outcome of evaluating a guard.
type Decision int

const (
	Allow Decision = iota
	Loading
	Verify
	RedirectLogin
	RedirectDenied
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Loading:
		return "loading"
	case Verify:
		return "verify"
	case RedirectLogin:
		return "redirect_login"
	case RedirectDenied:
		return "redirect_denied"
	default:
		return "unknown"
	}
}

// Evaluate decides what a guarded route should do. An empty allow-list means
// any authenticated user passes. A stored token the session does not know
// about yet asks for verification before redirecting.
func Evaluate(s domain.AuthSession, hasToken bool, allowed []domain.Role) Decision {
	if s.Status == domain.StatusLoading {
		return Loading
	}
	if !s.IsAuthenticated {
		if hasToken {
			return Verify
		}
		return RedirectLogin
	}
	if len(allowed) == 0 {
		return Allow
	}
	role := s.User.Role()
	for _, r := range allowed {
		if r == role {
			return Allow
		}
	}
	return RedirectDenied
}

// Session is what the guards read.
type Session interface {
	Snapshot() domain.AuthSession
	HasToken(ctx context.Context) bool
	VerifySession(ctx context.Context) (bool, error)
}

// RequireAuth admits any authenticated session.
func RequireAuth(s Session, logger *zap.Logger) fiber.Handler {
	return RequireRole(s, logger)
}

// RequireRole admits sessions whose user holds one of allowed.
func RequireRole(s Session, logger *zap.Logger, allowed ...domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		snapshot := s.Snapshot()
		decision := Evaluate(snapshot, s.HasToken(ctx), allowed)

		if decision == Verify {
			if _, err := s.VerifySession(ctx); err != nil {
				if errors.Is(err, refresh.ErrSessionExpired) {
					return err
				}
				logger.Warn("session verification failed", zap.String("path", c.Path()), zap.Error(err))
			}
			snapshot = s.Snapshot()
			// Verification runs once; a token that is still unknown means sign in.
			decision = Evaluate(snapshot, false, allowed)
		}

		switch decision {
		case Allow:
			c.Locals(sessionKey, snapshot)
			return c.Next()
		case Loading:
			c.Set(fiber.HeaderRetryAfter, "1")
			return c.Status(http.StatusAccepted).JSON(dto.Fail("verifying session"))
		case RedirectDenied:
			logger.Info("role not allowed",
				zap.String("path", c.Path()),
				zap.String("role", string(snapshot.User.Role())),
			)
			return c.Redirect(AccessDeniedRoute, http.StatusFound)
		default:
			return c.Redirect(LoginRoute, http.StatusFound)
		}
	}
}

// SessionFromContext returns the session a guard admitted.
func SessionFromContext(c *fiber.Ctx) (domain.AuthSession, bool) {
	val := c.Locals(sessionKey)
	if val == nil {
		return domain.AuthSession{}, false
	}
	s, ok := val.(domain.AuthSession)
	return s, ok
}
