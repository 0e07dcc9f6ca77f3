// Package tokenstore persists the single bearer access token of a session.
//
// Validity is never tracked here; only server responses decide whether the
// stored token is still good.
package tokenstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/adworks/ad-portal/internal/config"
)

// Store holds at most one access token. Get returns "" when none is stored.
type Store interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// New builds the store selected by cfg.Driver. The redis client is only
// required for the redis driver.
func New(cfg config.TokenStoreConfig, client *redis.Client) (Store, error) {
	switch cfg.Driver {
	case config.TokenStoreMemory:
		return NewMemoryStore(), nil
	case config.TokenStoreFile:
		return NewFileStore(cfg.Path), nil
	case config.TokenStoreRedis:
		if client == nil {
			return nil, fmt.Errorf("token store: redis driver requires a redis client")
		}
		return NewRedisStore(client, cfg.Key), nil
	default:
		return nil, fmt.Errorf("token store: unknown driver %q", cfg.Driver)
	}
}
