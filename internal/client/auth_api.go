package client

import (
	"context"
	"errors"
	"net/http"

	"github.com/adworks/ad-portal/internal/api/dto"
	"github.com/adworks/ad-portal/internal/domain"
	"github.com/adworks/ad-portal/internal/refresh"
)

const (
	PathLogin        = "/api/auth/login"
	PathRegister     = "/api/auth/register"
	PathLogout       = "/api/auth/logout"
	PathRefreshToken = "/api/auth/refresh-token"
	PathProfile      = "/api/users/profile"
)

// AuthAPI wraps the /api/auth endpoints.
type AuthAPI struct {
	client *Client
}

// NewAuthAPI builds the auth endpoints on top of c.
func NewAuthAPI(c *Client) *AuthAPI {
	return &AuthAPI{client: c}
}

// Login exchanges credentials for an access token and the user record.
func (a *AuthAPI) Login(ctx context.Context, creds dto.LoginRequest) (*dto.LoginResult, error) {
	var result dto.LoginResult
	if _, err := a.client.doNoRefresh(ctx, http.MethodPost, PathLogin, creds, &result); err != nil {
		return nil, err
	}
	if result.AccessToken == "" {
		return nil, errors.New("login response missing access token")
	}
	return &result, nil
}

// Register creates an account and returns the server's message.
func (a *AuthAPI) Register(ctx context.Context, req dto.RegisterRequest) (string, error) {
	return a.client.doNoRefresh(ctx, http.MethodPost, PathRegister, req, nil)
}

// Logout ends the server-side session.
func (a *AuthAPI) Logout(ctx context.Context) error {
	_, err := a.client.doNoRefresh(ctx, http.MethodPost, PathLogout, nil, nil)
	return err
}

// RefreshToken asks for a new access token. It never goes through the 401
// interceptor, so it can back the refresh.Coordinator.
func (a *AuthAPI) RefreshToken(ctx context.Context) (refresh.Grant, error) {
	var result dto.RefreshResult
	if _, err := a.client.doNoRefresh(ctx, http.MethodPost, PathRefreshToken, nil, &result); err != nil {
		return refresh.Grant{}, err
	}
	return refresh.Grant{AccessToken: result.AccessToken, User: result.User}, nil
}

// UserAPI wraps the /api/users endpoints.
type UserAPI struct {
	client *Client
}

// NewUserAPI builds the user endpoints on top of c.
func NewUserAPI(c *Client) *UserAPI {
	return &UserAPI{client: c}
}

// Profile fetches the signed-in user.
func (u *UserAPI) Profile(ctx context.Context) (*domain.User, error) {
	var user domain.User
	if _, err := u.client.Do(ctx, http.MethodGet, PathProfile, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
