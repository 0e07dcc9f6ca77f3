package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/adworks/ad-portal/internal/api/dto"
	"github.com/adworks/ad-portal/internal/events"
	"github.com/adworks/ad-portal/internal/refresh"
	"github.com/adworks/ad-portal/internal/tokenstore"
)

// fakeBackend accepts one bearer token as valid and counts every call.
type fakeBackend struct {
	mu            sync.Mutex
	validToken    string
	nextToken     string
	refreshOK     bool
	refreshCalls  int
	rejectAlways  bool
	hits          map[string][]string
	beforeRefresh func()
}

func newFakeBackend(valid, next string) *fakeBackend {
	return &fakeBackend{
		validToken:   valid,
		nextToken:    next,
		refreshOK:    true,
		hits:         make(map[string][]string),
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	auth := r.Header.Get("Authorization")

	if r.URL.Path == PathRefreshToken {
		if b.beforeRefresh != nil {
			b.beforeRefresh()
		}
		b.mu.Lock()
		b.refreshCalls++
		ok := b.refreshOK
		if ok {
			b.validToken = b.nextToken
		}
		next := b.nextToken
		b.mu.Unlock()

		if !ok {
			writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "refresh denied"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": map[string]any{"accessToken": next}})
		return
	}

	if r.URL.Path == PathLogin {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "invalid credentials"})
		return
	}

	b.mu.Lock()
	b.hits[r.URL.Path] = append(b.hits[r.URL.Path], auth)
	valid := !b.rejectAlways && auth == "Bearer "+b.validToken
	b.mu.Unlock()

	if !valid {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "token expired"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": map[string]any{"path": r.URL.Path}, "message": "ok"})
}

// waitForWaiters blocks until n callers are queued on the coordinator.
func waitForWaiters(c *refresh.Coordinator, n int) func() {
	return func() {
		deadline := time.Now().Add(2 * time.Second)
		for c.Waiting() < n && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}
}

func (b *fakeBackend) snapshot() (int, map[string][]string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	hits := make(map[string][]string, len(b.hits))
	for k, v := range b.hits {
		hits[k] = append([]string(nil), v...)
	}
	return b.refreshCalls, hits
}

type harness struct {
	store       *tokenstore.MemoryStore
	coordinator *refresh.Coordinator
	dispatcher  events.Dispatcher
	auth        *AuthAPI
	data        *Client
	users       *UserAPI
}

// newHarness wires two client instances to one coordinator, the way the app does.
func newHarness(t *testing.T, backend http.Handler, token string) *harness {
	t.Helper()
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	store := tokenstore.NewMemoryStore()
	if token != "" {
		require.NoError(t, store.Set(context.Background(), token))
	}
	dispatcher := events.NewInMemoryDispatcher()
	coordinator := refresh.NewCoordinator(store, dispatcher, zap.NewNop())

	httpClient := NewHTTPClient(5 * time.Second)
	authClient := New(Options{Name: "auth", BaseURL: server.URL, HTTPClient: httpClient}, store, coordinator, zap.NewNop())
	userClient := New(Options{Name: "users", BaseURL: server.URL, HTTPClient: httpClient}, store, coordinator, zap.NewNop())

	authAPI := NewAuthAPI(authClient)
	coordinator.Init(authAPI.RefreshToken)

	return &harness{
		store:       store,
		coordinator: coordinator,
		dispatcher:  dispatcher,
		auth:        authAPI,
		data:        userClient,
		users:       NewUserAPI(userClient),
	}
}

func TestClient_AttachesBearerFromStore(t *testing.T) {
	backend := newFakeBackend("abc", "xyz")
	h := newHarness(t, backend, "abc")

	var result map[string]string
	message, err := h.data.Do(context.Background(), http.MethodGet, "/a", nil, &result)
	require.NoError(t, err)
	assert.Equal(t, "ok", message)
	assert.Equal(t, "/a", result["path"])

	_, hits := backend.snapshot()
	assert.Equal(t, []string{"Bearer abc"}, hits["/a"])
}

func TestClient_NoTokenSendsUnauthenticated(t *testing.T) {
	gotAuth := make(chan string, 1)
	server := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	h := newHarness(t, server, "")

	_, err := h.data.Do(context.Background(), http.MethodGet, "/public", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, <-gotAuth)
}

func TestClient_ConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	backend := newFakeBackend("xyz", "xyz")
	h := newHarness(t, backend, "abc")
	backend.beforeRefresh = waitForWaiters(h.coordinator, 2)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, path := range []string{"/a", "/b"} {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			_, err := h.data.Do(context.Background(), http.MethodGet, path, nil, nil)
			errs <- err
		}(path)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	refreshCalls, hits := backend.snapshot()
	assert.Equal(t, 1, refreshCalls)
	assert.Equal(t, []string{"Bearer abc", "Bearer xyz"}, hits["/a"])
	assert.Equal(t, []string{"Bearer abc", "Bearer xyz"}, hits["/b"])

	stored, err := h.store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "xyz", stored)
}

func TestClient_NewRequestsUseRefreshedToken(t *testing.T) {
	backend := newFakeBackend("xyz", "xyz")
	h := newHarness(t, backend, "abc")

	_, err := h.data.Do(context.Background(), http.MethodGet, "/a", nil, nil)
	require.NoError(t, err)

	_, err = h.data.Do(context.Background(), http.MethodGet, "/c", nil, nil)
	require.NoError(t, err)

	refreshCalls, hits := backend.snapshot()
	assert.Equal(t, 1, refreshCalls)
	assert.Equal(t, []string{"Bearer xyz"}, hits["/c"])
}

func TestClient_RefreshFailureExpiresSession(t *testing.T) {
	backend := newFakeBackend("never", "unused")
	backend.refreshOK = false
	h := newHarness(t, backend, "abc")
	backend.beforeRefresh = waitForWaiters(h.coordinator, 2)

	var redirects []string
	var mu sync.Mutex
	h.dispatcher.Subscribe(events.EventSessionExpired, func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		redirects = append(redirects, e.Payload.(events.SessionExpiredPayload).Redirect)
		return nil
	})

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, path := range []string{"/a", "/b"} {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			_, err := h.data.Do(context.Background(), http.MethodGet, path, nil, nil)
			errs <- err
		}(path)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.ErrorIs(t, err, ErrSessionExpired)
	}

	refreshCalls, _ := backend.snapshot()
	assert.Equal(t, 1, refreshCalls)

	stored, err := h.store.Get(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.Equal(t, []string{"/auth/login?error=session_expired"}, redirects)
}

func TestClient_SecondUnauthorizedDoesNotRefreshAgain(t *testing.T) {
	backend := newFakeBackend("abc", "xyz")
	backend.rejectAlways = true
	h := newHarness(t, backend, "abc")

	_, err := h.data.Do(context.Background(), http.MethodGet, "/a", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.NotErrorIs(t, err, ErrSessionExpired)

	refreshCalls, hits := backend.snapshot()
	assert.Equal(t, 1, refreshCalls)
	assert.Equal(t, []string{"Bearer abc", "Bearer xyz"}, hits["/a"])
}

func TestAuthAPI_LoginRejectionSkipsRefresh(t *testing.T) {
	backend := newFakeBackend("abc", "xyz")
	h := newHarness(t, backend, "")

	_, err := h.auth.Login(context.Background(), dto.LoginRequest{Email: "a@example.com", Password: "bad"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "invalid credentials", apiErr.Message)

	refreshCalls, _ := backend.snapshot()
	assert.Zero(t, refreshCalls)
}

func TestClient_TransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	store := tokenstore.NewMemoryStore()
	coordinator := refresh.NewCoordinator(store, nil, zap.NewNop())
	c := New(Options{Name: "test", BaseURL: url, HTTPClient: NewHTTPClient(time.Second)}, store, coordinator, zap.NewNop())

	_, err := c.Do(context.Background(), http.MethodGet, "/a", nil, nil)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestDecode_SuccessFalseIsAPIError(t *testing.T) {
	server := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "nope"})
	})
	h := newHarness(t, server, "abc")

	_, err := h.data.Do(context.Background(), http.MethodGet, "/a", nil, nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "nope", apiErr.Message)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

func TestUserAPI_ProfileDecodesRole(t *testing.T) {
	server := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"success":true,"result":{"id":"u1","email":"a@example.com","fullName":"Ann","isActive":true,"roles":{"name":"DESIGNER"}}}`))
	})
	h := newHarness(t, server, "abc")

	user, err := h.users.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "/designer", user.Role().LandingRoute())
}

func TestUserAPI_ProfileRejectsUnknownRole(t *testing.T) {
	server := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"result":{"id":"u1","roles":{"name":"WIZARD"}}}`))
	})
	h := newHarness(t, server, "abc")

	_, err := h.users.Profile(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unknown role"))
}
