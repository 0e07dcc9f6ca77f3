package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/adworks/ad-portal/internal/refresh"
	"github.com/adworks/ad-portal/internal/tokenstore"
)

// PassiveRefresher performs a background refresh through the shared coordinator.
type PassiveRefresher interface {
	RefreshPassive(ctx context.Context) (string, error)
}

// RefreshWorker keeps the access token fresh while a session exists.
type RefreshWorker struct {
	refresher PassiveRefresher
	tokens    tokenstore.Store
	interval  time.Duration
	logger    *zap.Logger
}

// NewRefreshWorker builds a worker; a non-positive interval disables it.
func NewRefreshWorker(refresher PassiveRefresher, tokens tokenstore.Store, interval time.Duration, logger *zap.Logger) *RefreshWorker {
	return &RefreshWorker{
		refresher: refresher,
		tokens:    tokens,
		interval:  interval,
		logger:    logger.With(zap.String("worker", "refresh")),
	}
}

// StartRefreshWorker runs w until ctx is done.
func StartRefreshWorker(ctx context.Context, w *RefreshWorker) {
	if w == nil || w.interval <= 0 {
		return
	}
	go w.Run(ctx)
}

// Run ticks every interval until ctx is done.
func (w *RefreshWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("refresh worker started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("refresh worker stopped")
			return
		case <-ticker.C:
			_ = w.Tick(ctx)
		}
	}
}

// Tick refreshes once if a token is stored.
func (w *RefreshWorker) Tick(ctx context.Context) error {
	token, err := w.tokens.Get(ctx)
	if err != nil {
		w.logger.Warn("failed to read token store", zap.Error(err))
		return err
	}
	if token == "" {
		w.logger.Debug("no session; skipping refresh")
		return nil
	}

	if _, err := w.refresher.RefreshPassive(ctx); err != nil {
		switch {
		case errors.Is(err, refresh.ErrRefreshFailed):
			w.logger.Warn("background refresh failed; keeping session", zap.Error(err))
		case errors.Is(err, refresh.ErrSessionExpired):
			w.logger.Warn("background refresh expired the session", zap.Error(err))
		default:
			w.logger.Error("background refresh error", zap.Error(err))
		}
		return err
	}
	w.logger.Debug("background refresh succeeded")
	return nil
}
