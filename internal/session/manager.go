// Package session keeps the application-wide view of who is signed in and
// exposes the auth actions (login, register, logout, initialize, verify).
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/adworks/ad-portal/internal/api/dto"
	"github.com/adworks/ad-portal/internal/client"
	"github.com/adworks/ad-portal/internal/domain"
	"github.com/adworks/ad-portal/internal/events"
	"github.com/adworks/ad-portal/internal/tokenstore"
)

// ErrMissingCredentials is returned before any network call when a required field is empty.
var ErrMissingCredentials = errors.New("missing credentials")

const (
	msgSessionExpired = "session expired, please sign in again"
	msgUnreachable    = "unable to reach the server, please try again"
)

// AuthService is the subset of the auth API the manager needs.
type AuthService interface {
	Login(ctx context.Context, creds dto.LoginRequest) (*dto.LoginResult, error)
	Register(ctx context.Context, req dto.RegisterRequest) (string, error)
	Logout(ctx context.Context) error
}

// ProfileService loads the signed-in user.
type ProfileService interface {
	Profile(ctx context.Context) (*domain.User, error)
}

// Fence writes the token of a starting or ending session so that a refresh
// already in flight cannot undo it. *refresh.Coordinator implements it.
type Fence interface {
	StartSession(ctx context.Context, token string) error
	EndSession(ctx context.Context) error
}

type storeFence struct {
	tokens tokenstore.Store
}

func (f storeFence) StartSession(ctx context.Context, token string) error {
	return f.tokens.Set(ctx, token)
}

func (f storeFence) EndSession(ctx context.Context) error {
	return f.tokens.Clear(ctx)
}

// Option customizes a Manager.
type Option func(*Manager)

// WithFence routes sign-in and sign-out token writes through f.
func WithFence(f Fence) Option {
	return func(m *Manager) { m.fence = f }
}

// Manager is the dispatchable action set over the session Store.
type Manager struct {
	store      *Store
	tokens     tokenstore.Store
	fence      Fence
	auth       AuthService
	users      ProfileService
	dispatcher events.Dispatcher
	logger     *zap.Logger

	verify        singleflight.Group
	mu            sync.Mutex
	verifiedToken string
	unsubscribe   []func()

	// authMu orders local sign-in and sign-out against refresh and expiry events.
	authMu sync.Mutex
}

// NewManager wires the manager to the session events of dispatcher.
func NewManager(store *Store, tokens tokenstore.Store, auth AuthService, users ProfileService, dispatcher events.Dispatcher, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:      store,
		tokens:     tokens,
		fence:      storeFence{tokens: tokens},
		auth:       auth,
		users:      users,
		dispatcher: dispatcher,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if dispatcher != nil {
		m.unsubscribe = append(m.unsubscribe,
			dispatcher.Subscribe(events.EventSessionExpired, m.onSessionExpired),
			dispatcher.Subscribe(events.EventTokenRefreshed, m.onTokenRefreshed),
		)
	}
	return m
}

// Close detaches the manager from the dispatcher.
func (m *Manager) Close() {
	for _, unsubscribe := range m.unsubscribe {
		unsubscribe()
	}
	m.unsubscribe = nil
}

// Snapshot returns the current session.
func (m *Manager) Snapshot() domain.AuthSession {
	return m.store.Snapshot()
}

// Subscribe observes session changes.
func (m *Manager) Subscribe(l Listener) func() {
	return m.store.Subscribe(l)
}

// HasToken reports whether an access token is stored. Read errors count as absent.
func (m *Manager) HasToken(ctx context.Context) bool {
	token, err := m.tokens.Get(ctx)
	if err != nil {
		m.logger.Warn("failed to read token store", zap.Error(err))
		return false
	}
	return token != ""
}

// Login signs in with credentials. On failure the session carries a
// user-facing message and stays signed out.
func (m *Manager) Login(ctx context.Context, creds dto.LoginRequest) error {
	creds.Email = strings.TrimSpace(creds.Email)
	if creds.Email == "" || creds.Password == "" {
		m.store.loginFailed("email and password are required")
		return ErrMissingCredentials
	}

	m.store.begin()
	result, err := m.auth.Login(ctx, creds)
	if err != nil {
		m.store.loginFailed(userMessage(err, "login failed"))
		return fmt.Errorf("login: %w", err)
	}

	user := result.User
	m.authMu.Lock()
	if err := m.fence.StartSession(ctx, result.AccessToken); err != nil {
		m.authMu.Unlock()
		m.store.loginFailed("could not save the session")
		return fmt.Errorf("store access token: %w", err)
	}
	m.markVerified(result.AccessToken)
	m.store.authenticated(&user)
	m.authMu.Unlock()

	m.logger.Info("login succeeded", zap.String("user_id", user.ID), zap.String("role", string(user.Role())))
	m.publish(ctx, events.New(events.EventLoginSucceeded, events.LoginSucceededPayload{User: &user}))
	return nil
}

// Register creates an account. It does not sign the user in.
func (m *Manager) Register(ctx context.Context, req dto.RegisterRequest) (string, error) {
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" || strings.TrimSpace(req.FullName) == "" {
		m.store.failed("email, password and full name are required")
		return "", ErrMissingCredentials
	}

	m.store.begin()
	message, err := m.auth.Register(ctx, req)
	if err != nil {
		m.store.failed(userMessage(err, "registration failed"))
		return "", fmt.Errorf("register: %w", err)
	}
	m.store.succeeded()
	return message, nil
}

// Logout is best-effort remotely and always clears the local token and state.
func (m *Manager) Logout(ctx context.Context) error {
	var remoteErr string
	if err := m.auth.Logout(ctx); err != nil {
		remoteErr = err.Error()
		m.logger.Warn("remote logout failed; clearing local session anyway", zap.Error(err))
	}

	m.authMu.Lock()
	clearErr := m.fence.EndSession(ctx)
	if clearErr != nil {
		m.logger.Error("failed to clear token store", zap.Error(clearErr))
	}
	m.markVerified("")
	m.store.reset()
	m.authMu.Unlock()
	m.publish(ctx, events.New(events.EventLoggedOut, events.LoggedOutPayload{RemoteError: remoteErr}))

	if clearErr != nil {
		return fmt.Errorf("clear access token: %w", clearErr)
	}
	return nil
}

// SyncAuthState merges a partial update into the session.
func (m *Manager) SyncAuthState(in SyncInput) {
	m.store.sync(in)
}

// InitializeAuth settles the session at startup. Without a stored token it
// makes no network call. With one it loads the profile, refreshing through
// the client if needed.
func (m *Manager) InitializeAuth(ctx context.Context) error {
	token, err := m.tokens.Get(ctx)
	if err != nil {
		m.store.failed("could not read the stored session")
		return fmt.Errorf("read token store: %w", err)
	}
	if token == "" {
		m.store.settleUnauthenticated()
		return nil
	}

	m.store.begin()
	return m.loadProfile(ctx, token)
}

// VerifySession checks a stored token the in-memory state does not know
// about yet. Concurrent callers share one check and each token value is
// checked at most once. It reports whether the session is authenticated.
func (m *Manager) VerifySession(ctx context.Context) (bool, error) {
	token, err := m.tokens.Get(ctx)
	if err != nil {
		return false, fmt.Errorf("read token store: %w", err)
	}
	if token == "" {
		return m.store.Snapshot().IsAuthenticated, nil
	}

	if m.verified(token) {
		return m.store.Snapshot().IsAuthenticated, nil
	}

	_, err, _ = m.verify.Do(token, func() (interface{}, error) {
		if m.verified(token) {
			return nil, nil
		}
		m.store.begin()
		return nil, m.loadProfile(context.WithoutCancel(ctx), token)
	})
	return m.store.Snapshot().IsAuthenticated, err
}

func (m *Manager) loadProfile(ctx context.Context, token string) error {
	user, err := m.users.Profile(ctx)
	m.markVerified(token)
	if err != nil {
		if errors.Is(err, client.ErrSessionExpired) {
			// The expiry event has already reset the session.
			return err
		}
		// Passive checks keep whatever session state was already good.
		m.logger.Warn("session check failed", zap.Error(err))
		m.store.failed(userMessage(err, "could not verify the session"))
		return fmt.Errorf("load profile: %w", err)
	}

	m.authMu.Lock()
	defer m.authMu.Unlock()
	current, getErr := m.tokens.Get(ctx)
	if getErr == nil && current == "" {
		m.logger.Info("session ended while the profile was loading")
		return nil
	}
	if getErr == nil && current != token {
		m.markVerified(current)
	}
	m.store.authenticated(user)
	return nil
}

func (m *Manager) verified(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verifiedToken == token
}

func (m *Manager) markVerified(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifiedToken = token
}

func (m *Manager) onSessionExpired(ctx context.Context, _ events.Event) error {
	m.authMu.Lock()
	defer m.authMu.Unlock()
	// A sign-in that landed after the expiry cleared the store wins.
	if current, err := m.tokens.Get(ctx); err == nil && current != "" {
		return nil
	}
	m.markVerified("")
	m.store.expired(msgSessionExpired)
	return nil
}

func (m *Manager) onTokenRefreshed(ctx context.Context, e events.Event) error {
	payload, ok := e.Payload.(events.TokenRefreshedPayload)
	if !ok || payload.User == nil {
		return nil
	}
	m.authMu.Lock()
	defer m.authMu.Unlock()
	if payload.AccessToken != "" {
		if current, err := m.tokens.Get(ctx); err != nil || current != payload.AccessToken {
			return nil
		}
	}
	m.store.authenticated(payload.User)
	return nil
}

func (m *Manager) publish(ctx context.Context, event events.Event) {
	if m.dispatcher == nil {
		return
	}
	if err := m.dispatcher.Publish(ctx, event); err != nil {
		m.logger.Warn("event handler failed", zap.String("event", string(event.Type)), zap.Error(err))
	}
}

func userMessage(err error, fallback string) string {
	var apiErr *client.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return apiErr.Message
	case errors.Is(err, client.ErrSessionExpired):
		return msgSessionExpired
	case errors.Is(err, client.ErrTransport):
		return msgUnreachable
	default:
		return fallback
	}
}
