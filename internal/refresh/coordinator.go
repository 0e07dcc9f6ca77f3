// Package refresh serializes access token refreshes for a whole process.
//
// Every API client shares one Coordinator. However many requests fail with
// 401 at the same time, at most one refresh call is outstanding; the other
// callers wait on it and settle together with its outcome.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/adworks/ad-portal/internal/domain"
	"github.com/adworks/ad-portal/internal/events"
	"github.com/adworks/ad-portal/internal/observability"
	"github.com/adworks/ad-portal/internal/tokenstore"
)

var (
	// ErrSessionExpired means no valid token can be obtained; the user must sign in again.
	ErrSessionExpired = errors.New("session expired")
	// ErrRefreshFailed is returned to passive callers when the optimistic policy kept the session.
	ErrRefreshFailed = errors.New("token refresh failed")
	// ErrNotInitialized is returned before Init binds a refresh call.
	ErrNotInitialized = errors.New("refresh coordinator not initialized")
)

// LoginRedirect is where a session-expired user is sent.
const LoginRedirect = "/auth/login?error=session_expired"

const flightKey = "access-token"

// State is the coordinator's position in the refresh cycle.
type State string

const (
	StateIdle       State = "IDLE"
	StateRefreshing State = "REFRESHING"
)

// Grant is the result of a successful refresh call.
type Grant struct {
	AccessToken string
	User        *domain.User
}

// Refresher exchanges the current session for a new access token.
type Refresher func(ctx context.Context) (Grant, error)

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithOptimisticPassive controls what a failed passive refresh does. When
// true (the default) the failure is logged and the session is left alone.
func WithOptimisticPassive(optimistic bool) Option {
	return func(c *Coordinator) { c.optimisticPassive = optimistic }
}

// WithMetrics records refresh outcomes.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(c *Coordinator) { c.metrics = metrics }
}

// Coordinator owns the IDLE/REFRESHING flag and the queue of waiting callers.
//
// Each signed-in session is one epoch. StartSession, EndSession and Reset
// begin a new epoch; a flight that settles in a later epoch than the one it
// started in is dropped without touching the Token Store or publishing.
type Coordinator struct {
	store      tokenstore.Store
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics

	optimisticPassive bool

	mu        sync.Mutex
	refresher Refresher
	state     State
	waiting   int
	epoch     uint64
	group     singleflight.Group
}

type outcome struct {
	token      string
	err        error
	epoch      uint64
	superseded bool
	expired    sync.Once
}

// NewCoordinator builds an idle coordinator. Call Init before the first Refresh.
func NewCoordinator(store tokenstore.Store, dispatcher events.Dispatcher, logger *zap.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:             store,
		dispatcher:        dispatcher,
		logger:            logger,
		optimisticPassive: true,
		state:             StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init binds the refresh call. It may be called again to rebind.
func (c *Coordinator) Init(refresher Refresher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refresher = refresher
}

// Reset returns the coordinator to IDLE and forgets any in-flight refresh.
// Callers already waiting on the forgotten flight receive ErrSessionExpired
// and its result is discarded.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.newEpochLocked()
}

// StartSession stores the token of a fresh sign-in. A refresh still in
// flight from before cannot overwrite it.
func (c *Coordinator) StartSession(ctx context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.newEpochLocked()
	return c.store.Set(ctx, token)
}

// EndSession clears the Token Store. A refresh still in flight cannot
// restore the token or report the session refreshed or expired.
func (c *Coordinator) EndSession(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.newEpochLocked()
	return c.store.Clear(ctx)
}

func (c *Coordinator) newEpochLocked() {
	c.epoch++
	c.group.Forget(flightKey)
	c.state = StateIdle
}

// State reports whether a refresh is in flight.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Waiting reports how many callers are queued on the current refresh.
func (c *Coordinator) Waiting() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiting
}

// Refresh is called after a request sent with staleToken got 401. It returns
// a token to retry with, or ErrSessionExpired after the Token Store has been
// cleared.
func (c *Coordinator) Refresh(ctx context.Context, staleToken string) (string, error) {
	return c.refresh(ctx, staleToken, false)
}

// RefreshPassive refreshes proactively, e.g. on a timer. Its failure policy
// follows WithOptimisticPassive.
func (c *Coordinator) RefreshPassive(ctx context.Context) (string, error) {
	return c.refresh(ctx, "", true)
}

func (c *Coordinator) refresh(ctx context.Context, staleToken string, passive bool) (string, error) {
	c.mu.Lock()
	if c.refresher == nil {
		c.mu.Unlock()
		return "", ErrNotInitialized
	}

	current, err := c.store.Get(ctx)
	if err != nil {
		c.mu.Unlock()
		return "", fmt.Errorf("read token store: %w", err)
	}
	switch {
	case passive && current == "":
		c.mu.Unlock()
		return "", fmt.Errorf("%w: no stored token", ErrSessionExpired)
	case passive:
	case current != "" && current != staleToken:
		// Another refresh finished after this request was sent.
		c.mu.Unlock()
		c.metrics.RecordRefresh("reused")
		return current, nil
	case current == "" && staleToken != "":
		// The session already ended, by a failed refresh or a logout.
		c.mu.Unlock()
		c.metrics.RecordRefresh("ended")
		return "", fmt.Errorf("%w: token store was cleared", ErrSessionExpired)
	}

	refresher := c.refresher
	epoch := c.epoch
	c.waiting++
	ch := c.group.DoChan(flightKey, func() (interface{}, error) {
		return c.run(context.WithoutCancel(ctx), refresher, epoch, passive), nil
	})
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.waiting--
		c.mu.Unlock()
	}()

	var out *outcome
	select {
	case res := <-ch:
		out = res.Val.(*outcome)
	case <-ctx.Done():
		return "", ctx.Err()
	}

	if out.superseded {
		return "", fmt.Errorf("%w: session ended during refresh", ErrSessionExpired)
	}
	if out.err == nil {
		return out.token, nil
	}

	if passive && c.optimisticPassive {
		c.logger.Warn("background token refresh failed; keeping session", zap.Error(out.err))
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, out.err)
	}

	out.expired.Do(func() { c.expire(context.WithoutCancel(ctx), out) })
	return "", fmt.Errorf("%w: %v", ErrSessionExpired, out.err)
}

func (c *Coordinator) run(ctx context.Context, refresher Refresher, epoch uint64, passive bool) *outcome {
	c.mu.Lock()
	if c.epoch == epoch {
		c.state = StateRefreshing
	}
	c.mu.Unlock()

	c.logger.Debug("refreshing access token", zap.Bool("passive", passive))
	grant, err := refresher(ctx)
	token := grant.AccessToken
	if err == nil && token == "" {
		err = errors.New("refresh returned an empty token")
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		c.logger.Info("discarding refresh from an ended session", zap.Bool("passive", passive))
		c.metrics.RecordRefresh("discarded")
		return &outcome{epoch: epoch, superseded: true}
	}
	c.state = StateIdle
	if err == nil {
		// Stored under the lock so a late 401 either joins this flight or sees the new token.
		if storeErr := c.store.Set(ctx, token); storeErr != nil {
			err = fmt.Errorf("store refreshed token: %w", storeErr)
		}
	}
	c.mu.Unlock()

	if err != nil {
		c.metrics.RecordRefresh("failed")
		return &outcome{err: err, epoch: epoch}
	}
	c.metrics.RecordRefresh("succeeded")
	c.publish(ctx, events.New(events.EventTokenRefreshed, events.TokenRefreshedPayload{
		Passive:     passive,
		AccessToken: token,
		User:        grant.User,
	}))
	return &outcome{token: token, epoch: epoch}
}

func (c *Coordinator) expire(ctx context.Context, out *outcome) {
	c.mu.Lock()
	if c.epoch != out.epoch {
		c.mu.Unlock()
		return
	}
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Error("failed to clear token store", zap.Error(err))
	}
	c.mu.Unlock()

	c.logger.Warn("session expired", zap.Error(out.err))
	c.publish(ctx, events.New(events.EventSessionExpired, events.SessionExpiredPayload{
		Redirect: LoginRedirect,
		Reason:   out.err.Error(),
	}))
}

func (c *Coordinator) publish(ctx context.Context, event events.Event) {
	if c.dispatcher == nil {
		return
	}
	if err := c.dispatcher.Publish(ctx, event); err != nil {
		c.logger.Warn("event handler failed", zap.String("event", string(event.Type)), zap.Error(err))
	}
}
