package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adworks/ad-portal/internal/domain"
)

// ErrRefreshTokenNotFound is returned for unknown, expired or revoked tokens.
var ErrRefreshTokenNotFound = errors.New("refresh token not found")

const refreshTokenPrefix = "refresh_token:"

// RefreshTokenRepository stores refresh tokens until they expire or are revoked.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *domain.RefreshToken) error
	Get(ctx context.Context, token string) (*domain.RefreshToken, error)
	// Consume returns the token and deletes it atomically so a token can be
	// rotated only once.
	Consume(ctx context.Context, token string) (*domain.RefreshToken, error)
	Delete(ctx context.Context, token string) error
}

type refreshTokenRepository struct {
	client *redis.Client
}

// NewRefreshTokenRepository returns a Redis-backed implementation.
func NewRefreshTokenRepository(client *redis.Client) RefreshTokenRepository {
	return &refreshTokenRepository{client: client}
}

func (r *refreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("refresh token already expired")
	}
	payload, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, refreshTokenPrefix+token.Token, payload, ttl).Err()
}

func (r *refreshTokenRepository) Get(ctx context.Context, token string) (*domain.RefreshToken, error) {
	raw, err := r.client.Get(ctx, refreshTokenPrefix+token).Bytes()
	return decodeRefreshToken(raw, err)
}

func (r *refreshTokenRepository) Consume(ctx context.Context, token string) (*domain.RefreshToken, error) {
	raw, err := r.client.GetDel(ctx, refreshTokenPrefix+token).Bytes()
	return decodeRefreshToken(raw, err)
}

func (r *refreshTokenRepository) Delete(ctx context.Context, token string) error {
	return r.client.Del(ctx, refreshTokenPrefix+token).Err()
}

func decodeRefreshToken(raw []byte, err error) (*domain.RefreshToken, error) {
	if errors.Is(err, redis.Nil) {
		return nil, ErrRefreshTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	var token domain.RefreshToken
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("decode refresh token: %w", err)
	}
	return &token, nil
}
