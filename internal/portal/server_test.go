package portal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/adworks/ad-portal/internal/api/dto"
	"github.com/adworks/ad-portal/internal/client"
	"github.com/adworks/ad-portal/internal/domain"
	"github.com/adworks/ad-portal/internal/events"
	"github.com/adworks/ad-portal/internal/observability"
	"github.com/adworks/ad-portal/internal/refresh"
	"github.com/adworks/ad-portal/internal/service"
	"github.com/adworks/ad-portal/internal/session"
	"github.com/adworks/ad-portal/internal/tokenstore"
)

// stubBackend answers auth calls for a fixed set of accounts.
type stubBackend struct {
	users      map[string]domain.User
	profileErr error
	logouts    int
}

func (b *stubBackend) Login(_ context.Context, creds dto.LoginRequest) (*dto.LoginResult, error) {
	user, ok := b.users[creds.Email]
	if !ok || creds.Password != "secret" {
		return nil, &client.APIError{StatusCode: http.StatusUnauthorized, Message: "invalid credentials"}
	}
	return &dto.LoginResult{AccessToken: "token-" + user.ID, User: user}, nil
}

func (b *stubBackend) Register(_ context.Context, req dto.RegisterRequest) (string, error) {
	if _, exists := b.users[req.Email]; exists {
		return "", &client.APIError{StatusCode: http.StatusConflict, Message: "email already registered"}
	}
	return "account created", nil
}

func (b *stubBackend) Logout(context.Context) error {
	b.logouts++
	return nil
}

func (b *stubBackend) Profile(context.Context) (*domain.User, error) {
	if b.profileErr != nil {
		return nil, b.profileErr
	}
	user := b.users["admin@example.com"]
	return &user, nil
}

type portalHarness struct {
	server     *Server
	backend    *stubBackend
	tokens     *tokenstore.MemoryStore
	dispatcher events.Dispatcher
	sessions   *session.Manager
	refresh    *refresh.Coordinator
}

func newPortalHarness(t *testing.T) *portalHarness {
	t.Helper()
	backend := &stubBackend{users: map[string]domain.User{
		"admin@example.com":    {ID: "1", FullName: "Root", IsActive: true, Roles: domain.RoleRef{Name: domain.RoleAdmin}},
		"customer@example.com": {ID: "2", FullName: "Cleo", IsActive: true, Roles: domain.RoleRef{Name: domain.RoleCustomer}},
		"sale@example.com":     {ID: "3", FullName: "Sam", IsActive: true, Roles: domain.RoleRef{Name: domain.RoleSale}},
	}}
	h := &portalHarness{
		backend:    backend,
		tokens:     tokenstore.NewMemoryStore(),
		dispatcher: events.NewInMemoryDispatcher(),
	}
	h.refresh = refresh.NewCoordinator(h.tokens, h.dispatcher, zap.NewNop())
	h.sessions = session.NewManager(session.NewStore(), h.tokens, backend, backend, h.dispatcher, zap.NewNop(), session.WithFence(h.refresh))
	t.Cleanup(h.sessions.Close)

	notifications := service.NewNotificationService(h.dispatcher, zap.NewNop())
	t.Cleanup(notifications.RegisterHandlers())

	h.server = New(Deps{
		Sessions:      h.sessions,
		Refresh:       h.refresh,
		Profiles:      backend,
		Notifications: notifications,
		Logger:        zap.NewNop(),
		Metrics:       observability.NewMetrics(),
		AppName:       "portal-test",
	})
	return h
}

func (h *portalHarness) do(t *testing.T, method, target string, form url.Values) *http.Response {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	resp, err := h.server.App().Test(req)
	require.NoError(t, err)
	return resp
}

func (h *portalHarness) login(t *testing.T, email string) *http.Response {
	t.Helper()
	return h.do(t, http.MethodPost, "/auth/login", url.Values{"email": {email}, "password": {"secret"}})
}

func decodeEnvelope[T any](t *testing.T, resp *http.Response) dto.Envelope[T] {
	t.Helper()
	defer resp.Body.Close()
	var env dto.Envelope[T]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

func TestLogin_RedirectsToLandingRoute(t *testing.T) {
	h := newPortalHarness(t)

	resp := h.login(t, "sale@example.com")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/sale", resp.Header.Get("Location"))

	token, _ := h.tokens.Get(context.Background())
	assert.Equal(t, "token-3", token)

	env := decodeEnvelope[[]service.Notification](t, h.do(t, http.MethodGet, "/notifications", nil))
	require.Len(t, env.Result, 1)
	assert.Equal(t, "Welcome back, Sam", env.Result[0].Message)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	h := newPortalHarness(t)

	resp := h.do(t, http.MethodPost, "/auth/login", url.Values{"email": {"admin@example.com"}, "password": {"nope"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	env := decodeEnvelope[any](t, resp)
	assert.False(t, env.Success)
	assert.Equal(t, "invalid credentials", env.Message)
}

func TestRoleAreas(t *testing.T) {
	h := newPortalHarness(t)
	h.login(t, "customer@example.com")

	resp := h.do(t, http.MethodGet, "/admin", nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/access-denied", resp.Header.Get("Location"))

	resp = h.do(t, http.MethodGet, "/checkout", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminReachesEveryArea(t *testing.T) {
	h := newPortalHarness(t)
	h.login(t, "admin@example.com")

	for _, area := range []string{"/admin", "/manager", "/sale", "/designer", "/manager/reports"} {
		resp := h.do(t, http.MethodGet, area, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, area)
	}
}

func TestGuardedPageWithoutSessionGoesToLogin(t *testing.T) {
	h := newPortalHarness(t)

	resp := h.do(t, http.MethodGet, "/profile", nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/auth/login", resp.Header.Get("Location"))
}

func TestStoredTokenIsVerifiedOnce(t *testing.T) {
	h := newPortalHarness(t)
	require.NoError(t, h.tokens.Set(context.Background(), "persisted"))

	resp := h.do(t, http.MethodGet, "/admin", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, h.sessions.Snapshot().IsAuthenticated)
}

func TestExpiredSessionRedirectsToLogin(t *testing.T) {
	h := newPortalHarness(t)
	h.login(t, "admin@example.com")
	h.backend.profileErr = refresh.ErrSessionExpired

	resp := h.do(t, http.MethodGet, "/profile", nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, refresh.LoginRedirect, resp.Header.Get("Location"))

	env := decodeEnvelope[loginView](t, h.do(t, http.MethodGet, refresh.LoginRedirect, nil))
	assert.Equal(t, sessionExpiredNotice, env.Result.Notice)
}

func TestLogout_IsIdempotent(t *testing.T) {
	h := newPortalHarness(t)
	h.login(t, "admin@example.com")

	for i := 0; i < 2; i++ {
		resp := h.do(t, http.MethodPost, "/auth/logout", nil)
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		env := decodeEnvelope[domain.AuthSession](t, h.do(t, http.MethodGet, "/api/session", nil))
		assert.Equal(t, domain.NewAuthSession(), env.Result)
	}
	assert.Equal(t, 2, h.backend.logouts)
}

func TestRegister(t *testing.T) {
	h := newPortalHarness(t)

	resp := h.do(t, http.MethodPost, "/auth/register", url.Values{
		"email": {"new@example.com"}, "password": {"pw"}, "fullName": {"Nova"},
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "account created", decodeEnvelope[any](t, resp).Message)

	resp = h.do(t, http.MethodPost, "/auth/register", url.Values{
		"email": {"admin@example.com"}, "password": {"pw"}, "fullName": {"Dup"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "email already registered", decodeEnvelope[any](t, resp).Message)
}

func TestLiveReportsRefreshState(t *testing.T) {
	h := newPortalHarness(t)

	resp := h.do(t, http.MethodGet, "/health/live", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status  string `json:"status"`
		Refresh struct {
			State   refresh.State `json:"state"`
			Waiting int           `json:"waiting"`
		} `json:"refresh"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "alive", body.Status)
	assert.Equal(t, refresh.StateIdle, body.Refresh.State)
	assert.Zero(t, body.Refresh.Waiting)
}
