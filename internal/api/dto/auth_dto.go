package dto

import "github.com/adworks/ad-portal/internal/domain"

// LoginRequest payload for POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// RegisterRequest payload for POST /api/auth/register.
type RegisterRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
	FullName string `json:"fullName" form:"fullName"`
	Phone    string `json:"phone" form:"phone"`
}

// LoginResult is the login result: the access token next to the user fields.
type LoginResult struct {
	AccessToken string `json:"accessToken"`
	domain.User
}

// RefreshResult is the refresh-token result.
type RefreshResult struct {
	AccessToken string       `json:"accessToken"`
	User        *domain.User `json:"user,omitempty"`
}
