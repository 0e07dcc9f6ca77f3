package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TOKEN_STORE_DRIVER", "")
	t.Setenv("SESSION_REFRESH_INTERVAL_MINUTES", "")
	t.Setenv("SESSION_OPTIMISTIC_BACKGROUND", "")
	t.Setenv("BACKEND_BASE_URL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, TokenStoreFile, cfg.Token.Driver)
	assert.Equal(t, 25*time.Minute, cfg.Session.RefreshInterval())
	assert.True(t, cfg.Session.OptimisticBackground)
	assert.Equal(t, "http://127.0.0.1:8080", cfg.Backend.BaseURL)
	assert.Equal(t, "127.0.0.1:3000", cfg.Portal.Addr())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TOKEN_STORE_DRIVER", "Redis")
	t.Setenv("SESSION_REFRESH_INTERVAL_MINUTES", "0")
	t.Setenv("SESSION_OPTIMISTIC_BACKGROUND", "false")
	t.Setenv("BACKEND_BASE_URL", "https://api.example.com/")
	t.Setenv("BACKEND_TIMEOUT_SECONDS", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, TokenStoreRedis, cfg.Token.Driver)
	assert.Zero(t, cfg.Session.RefreshInterval())
	assert.False(t, cfg.Session.OptimisticBackground)
	assert.Equal(t, "https://api.example.com", cfg.Backend.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Backend.Timeout())
}

func TestLoad_RejectsUnknownTokenDriver(t *testing.T) {
	t.Setenv("TOKEN_STORE_DRIVER", "cookie")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsBadRedisDB(t *testing.T) {
	t.Setenv("TOKEN_STORE_DRIVER", "")
	t.Setenv("REDIS_DB", "one")

	_, err := Load()
	assert.Error(t, err)
}
