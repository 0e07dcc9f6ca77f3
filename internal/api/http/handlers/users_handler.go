package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/adworks/ad-portal/internal/api/dto"
	"github.com/adworks/ad-portal/internal/auth"
	apperrors "github.com/adworks/ad-portal/pkg/util/errorutil"
)

// UsersHandler exposes /api/users.
type UsersHandler struct {
	auth Authenticator
}

// NewUsersHandler constructs handler.
func NewUsersHandler(authService Authenticator) *UsersHandler {
	return &UsersHandler{auth: authService}
}

// Profile handles GET /api/users/profile. It reloads the user so a role or
// status change shows up without a new login.
func (h *UsersHandler) Profile(c *fiber.Ctx) error {
	caller, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	user, err := h.auth.Profile(c.UserContext(), caller.ID)
	if err != nil {
		return err
	}
	return c.JSON(dto.OK(user, ""))
}
