package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/adworks/ad-portal/internal/api/dto"
	"github.com/adworks/ad-portal/internal/domain"
	"github.com/adworks/ad-portal/internal/service"
)

// RefreshCookieName is the HttpOnly cookie carrying the refresh token.
const RefreshCookieName = "refresh_token"

// refreshCookiePath limits the cookie to the auth endpoints.
const refreshCookiePath = "/api/auth"

// Authenticator is the auth service surface the handlers use.
type Authenticator interface {
	Register(ctx context.Context, in service.RegisterInput) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*service.IssuedSession, error)
	Refresh(ctx context.Context, refreshToken string) (*service.IssuedSession, error)
	Logout(ctx context.Context, refreshToken string) error
	Profile(ctx context.Context, userID string) (*domain.User, error)
}

// AuthHandler exposes /api/auth.
type AuthHandler struct {
	auth         Authenticator
	cookieSecure bool
	logger       *zap.Logger
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService Authenticator, cookieSecure bool, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: authService, cookieSecure: cookieSecure, logger: logger}
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	if _, err := h.auth.Register(c.UserContext(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Phone:    req.Phone,
	}); err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.OK[any](nil, "account created, you can sign in now"))
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	issued, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	h.setRefreshCookie(c, issued.RefreshToken.Token, issued.RefreshToken.ExpiresAt)
	return c.JSON(dto.OK(dto.LoginResult{AccessToken: issued.AccessToken, User: *issued.User}, "login successful"))
}

// RefreshToken handles POST /api/auth/refresh-token.
func (h *AuthHandler) RefreshToken(c *fiber.Ctx) error {
	issued, err := h.auth.Refresh(c.UserContext(), c.Cookies(RefreshCookieName))
	if err != nil {
		h.clearRefreshCookie(c)
		return err
	}

	h.setRefreshCookie(c, issued.RefreshToken.Token, issued.RefreshToken.ExpiresAt)
	return c.JSON(dto.OK(dto.RefreshResult{AccessToken: issued.AccessToken, User: issued.User}, ""))
}

// Logout handles POST /api/auth/logout. The cookie is cleared even if
// revoking the token fails.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	token := c.Cookies(RefreshCookieName)
	h.clearRefreshCookie(c)
	if err := h.auth.Logout(c.UserContext(), token); err != nil {
		h.logger.Warn("failed to revoke refresh token", zap.Error(err))
	}
	return c.JSON(dto.OK[any](nil, "logged out"))
}

func (h *AuthHandler) setRefreshCookie(c *fiber.Ctx, value string, expires time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     RefreshCookieName,
		Value:    value,
		Path:     refreshCookiePath,
		Expires:  expires,
		Secure:   h.cookieSecure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   h.cookieSecure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
