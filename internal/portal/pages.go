package portal

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/adworks/ad-portal/internal/api/dto"
	"github.com/adworks/ad-portal/internal/domain"
	"github.com/adworks/ad-portal/internal/guard"
	"github.com/adworks/ad-portal/internal/session"
)

const sessionExpiredNotice = "Your session has expired. Please sign in again."

type homeView struct {
	Session domain.AuthSession `json:"session"`
	Landing string             `json:"landing,omitempty"`
}

type loginView struct {
	Notice  string             `json:"notice,omitempty"`
	Session domain.AuthSession `json:"session"`
}

type areaView struct {
	Area    string       `json:"area"`
	Allowed []string     `json:"allowed"`
	Role    string       `json:"role"`
	User    *domain.User `json:"user"`
}

func (s *Server) live(c *fiber.Ctx) error {
	body := fiber.Map{"status": "alive"}
	if s.refresh != nil {
		body["refresh"] = fiber.Map{"state": s.refresh.State(), "waiting": s.refresh.Waiting()}
	}
	return c.JSON(body)
}

func (s *Server) home(c *fiber.Ctx) error {
	snapshot := s.sessions.Snapshot()
	view := homeView{Session: snapshot}
	if snapshot.IsAuthenticated && snapshot.User != nil {
		view.Landing = snapshot.User.Role().LandingRoute()
	}
	return c.JSON(dto.OK(view, ""))
}

func (s *Server) loginPage(c *fiber.Ctx) error {
	view := loginView{Session: s.sessions.Snapshot()}
	if c.Query("error") == "session_expired" {
		view.Notice = sessionExpiredNotice
	}
	return c.JSON(dto.OK(view, ""))
}

func (s *Server) login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	if err := s.sessions.Login(c.UserContext(), req); err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, session.ErrMissingCredentials) {
			status = http.StatusBadRequest
		}
		return c.Status(status).JSON(dto.Fail(s.sessions.Snapshot().Error))
	}

	landing := s.sessions.Snapshot().User.Role().LandingRoute()
	if landing == "" {
		landing = "/"
	}
	return c.Redirect(landing, http.StatusFound)
}

func (s *Server) register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	message, err := s.sessions.Register(c.UserContext(), req)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(dto.Fail(s.sessions.Snapshot().Error))
	}
	return c.Status(http.StatusCreated).JSON(dto.OK[any](nil, message))
}

func (s *Server) logout(c *fiber.Ctx) error {
	if err := s.sessions.Logout(c.UserContext()); err != nil {
		s.logger.Error("logout left a stored token behind", zap.Error(err))
	}
	return c.Redirect(guard.LoginRoute, http.StatusFound)
}

func (s *Server) accessDenied(c *fiber.Ctx) error {
	return c.Status(http.StatusForbidden).JSON(dto.Fail("you do not have access to this page"))
}

func (s *Server) currentSession(c *fiber.Ctx) error {
	return c.JSON(dto.OK(s.sessions.Snapshot(), ""))
}

func (s *Server) drainNotifications(c *fiber.Ctx) error {
	return c.JSON(dto.OK(s.notifications.Drain(), ""))
}

// profile reloads the user from the backend so the page never shows stale data.
func (s *Server) profile(c *fiber.Ctx) error {
	user, err := s.profiles.Profile(c.UserContext())
	if err != nil {
		return err
	}
	s.sessions.SyncAuthState(session.SyncInput{User: user})
	return c.JSON(dto.OK(user, ""))
}

func (s *Server) checkout(c *fiber.Ctx) error {
	current, _ := guard.SessionFromContext(c)
	return c.JSON(dto.OK(fiber.Map{"user": current.User}, "ready to check out"))
}

func (s *Server) areaPage(area string, allowed []domain.Role) fiber.Handler {
	names := make([]string, 0, len(allowed))
	for _, r := range allowed {
		names = append(names, r.DisplayName())
	}
	return func(c *fiber.Ctx) error {
		current, _ := guard.SessionFromContext(c)
		return c.JSON(dto.OK(areaView{
			Area:    area,
			Allowed: names,
			Role:    current.User.Role().DisplayName(),
			User:    current.User,
		}, ""))
	}
}
