package tokenstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adworks/ad-portal/internal/config"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	token, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, store.Set(ctx, "abc"))
	token, err = store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	require.NoError(t, store.Set(ctx, "xyz"))
	token, err = store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "xyz", token)

	require.NoError(t, store.Clear(ctx))
	token, err = store.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)

	// clearing an empty store is not an error
	require.NoError(t, store.Clear(ctx))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	exerciseStore(t, NewFileStore(filepath.Join(t.TempDir(), "nested", "token")))
}

func TestFileStore_SurvivesNewInstance(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "token")

	require.NoError(t, NewFileStore(path).Set(ctx, "persisted"))

	token, err := NewFileStore(path).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "persisted", token)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestNew_SelectsDriver(t *testing.T) {
	store, err := New(config.TokenStoreConfig{Driver: config.TokenStoreMemory}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	store, err = New(config.TokenStoreConfig{Driver: config.TokenStoreFile, Path: filepath.Join(t.TempDir(), "t")}, nil)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	_, err = New(config.TokenStoreConfig{Driver: config.TokenStoreRedis}, nil)
	assert.Error(t, err)

	_, err = New(config.TokenStoreConfig{Driver: "cookie"}, nil)
	assert.Error(t, err)
}
