package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/adworks/ad-portal/internal/refresh"
	"github.com/adworks/ad-portal/internal/tokenstore"
)

type countingRefresher struct {
	calls int32
	err   error
}

func (r *countingRefresher) RefreshPassive(context.Context) (string, error) {
	atomic.AddInt32(&r.calls, 1)
	return "next", r.err
}

func TestTick_SkipsWithoutToken(t *testing.T) {
	r := &countingRefresher{}
	w := NewRefreshWorker(r, tokenstore.NewMemoryStore(), time.Minute, zap.NewNop())

	require.NoError(t, w.Tick(context.Background()))
	assert.Zero(t, atomic.LoadInt32(&r.calls))
}

func TestTick_RefreshesWithToken(t *testing.T) {
	ctx := context.Background()
	tokens := tokenstore.NewMemoryStore()
	require.NoError(t, tokens.Set(ctx, "abc"))
	r := &countingRefresher{}
	w := NewRefreshWorker(r, tokens, time.Minute, zap.NewNop())

	require.NoError(t, w.Tick(ctx))
	assert.Equal(t, int32(1), atomic.LoadInt32(&r.calls))
}

func TestTick_ReportsOptimisticFailure(t *testing.T) {
	ctx := context.Background()
	tokens := tokenstore.NewMemoryStore()
	require.NoError(t, tokens.Set(ctx, "abc"))
	w := NewRefreshWorker(&countingRefresher{err: refresh.ErrRefreshFailed}, tokens, time.Minute, zap.NewNop())

	assert.ErrorIs(t, w.Tick(ctx), refresh.ErrRefreshFailed)
}

func TestRun_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tokens := tokenstore.NewMemoryStore()
	require.NoError(t, tokens.Set(ctx, "abc"))
	r := &countingRefresher{}
	w := NewRefreshWorker(r, tokens, 10*time.Millisecond, zap.NewNop())

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&r.calls) >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
