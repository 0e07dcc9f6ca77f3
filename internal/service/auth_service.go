package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/adworks/ad-portal/internal/auth"
	"github.com/adworks/ad-portal/internal/config"
	"github.com/adworks/ad-portal/internal/domain"
	"github.com/adworks/ad-portal/internal/repository"
	apperrors "github.com/adworks/ad-portal/pkg/util/errorutil"
)

const msgInvalidCredentials = "invalid email or password"

// RegisterInput carries a new account.
type RegisterInput struct {
	Email    string
	Password string
	FullName string
	Phone    string
}

// IssuedSession is what login and refresh hand back to the handler.
type IssuedSession struct {
	AccessToken     string
	AccessExpiresAt time.Time
	RefreshToken    *domain.RefreshToken
	User            *domain.User
}

// AuthService coordinates registration, login and token rotation.
type AuthService struct {
	users         repository.UserRepository
	refreshTokens repository.RefreshTokenRepository
	tokenMgr      *auth.TokenManager
	bcryptCost    int
	refreshTTL    time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

// AuthDependencies encapsulates repo requirements for auth service.
type AuthDependencies struct {
	UserRepo         repository.UserRepository
	RefreshTokenRepo repository.RefreshTokenRepository
	Logger           *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	refreshTTL := time.Duration(cfg.RefreshTokenTTLMinutes) * time.Minute
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:         deps.UserRepo,
		refreshTokens: deps.RefreshTokenRepo,
		tokenMgr:      auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		bcryptCost:    cfg.BcryptCost,
		refreshTTL:    refreshTTL,
		logger:        logger,
		now:           time.Now,
	}
}

// Register creates a customer account. It does not sign the user in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FullName = strings.TrimSpace(in.FullName)
	if in.Email == "" || in.Password == "" || in.FullName == "" {
		return nil, apperrors.NewValidationError("email, password and full name are required", nil)
	}

	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, apperrors.NewConflict("email already registered")
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		FullName:     in.FullName,
		Phone:        strings.TrimSpace(in.Phone),
		IsActive:     true,
		Roles:        domain.RoleRef{Name: domain.RoleCustomer},
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("user registered", zap.String("user_id", user.ID))
	return user, nil
}

// Login authenticates by email and password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*IssuedSession, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apperrors.NewValidationError("email and password are required", nil)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthorized(msgInvalidCredentials)
		}
		return nil, err
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthorized(msgInvalidCredentials)
	}
	if !user.CanSignIn() {
		return nil, apperrors.NewForbidden("account is disabled")
	}

	return s.issue(ctx, user)
}

// Refresh rotates a refresh token and issues a new access token. Every
// rejection is a 401 so the client ends the session.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*IssuedSession, error) {
	if refreshToken == "" {
		return nil, apperrors.NewUnauthorized("missing refresh token")
	}

	stored, err := s.refreshTokens.Consume(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			return nil, apperrors.NewUnauthorized("invalid refresh token")
		}
		return nil, err
	}
	if stored.Expired(s.now()) {
		return nil, apperrors.NewUnauthorized("refresh token expired")
	}

	user, err := s.users.GetByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthorized("user not found")
		}
		return nil, err
	}
	if !user.CanSignIn() {
		return nil, apperrors.NewUnauthorized("account is disabled")
	}

	return s.issue(ctx, user)
}

// Logout revokes the refresh token. Missing tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.refreshTokens.Delete(ctx, refreshToken)
}

// Profile loads the signed-in user.
func (s *AuthService) Profile(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user")
		}
		return nil, err
	}
	return user, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

// RefreshTTL is how long an issued refresh token stays valid.
func (s *AuthService) RefreshTTL() time.Duration {
	return s.refreshTTL
}

func (s *AuthService) issue(ctx context.Context, user *domain.User) (*IssuedSession, error) {
	accessToken, accessExp, err := s.tokenMgr.GenerateToken(user)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	now := s.now()
	refreshToken := &domain.RefreshToken{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.refreshTTL),
	}
	if err := s.refreshTokens.Create(ctx, refreshToken); err != nil {
		return nil, err
	}

	return &IssuedSession{
		AccessToken:     accessToken,
		AccessExpiresAt: accessExp,
		RefreshToken:    refreshToken,
		User:            user,
	}, nil
}
