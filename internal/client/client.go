// Package client talks to the backend REST API on behalf of the session.
//
// Every request reads the Token Store and carries the bearer token when one
// exists. A 401 hands control to the shared refresh.Coordinator and the
// request is replayed once with the new token.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"go.uber.org/zap"

	"github.com/adworks/ad-portal/internal/api/dto"
	"github.com/adworks/ad-portal/internal/refresh"
	"github.com/adworks/ad-portal/internal/tokenstore"
)

const maxResponseBytes = 1 << 20

var (
	// ErrUnauthorized is returned when the backend rejects a request that was
	// already replayed after a refresh.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTransport wraps failures where no response was received.
	ErrTransport = errors.New("backend unreachable")
	// ErrSessionExpired is returned once refreshing has failed and the token was cleared.
	ErrSessionExpired = refresh.ErrSessionExpired
)

// APIError is a response the backend answered with a failure.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrUnauthorized) match a plain 401 answer.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// NewHTTPClient returns an http.Client with a cookie jar so the backend's
// refresh cookie follows the process.
func NewHTTPClient(timeout time.Duration) *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{Timeout: timeout, Jar: jar}
}

// Client is one API domain's view of the backend. Several clients may share
// the same Token Store and Coordinator.
type Client struct {
	name        string
	baseURL     string
	http        *http.Client
	tokens      tokenstore.Store
	coordinator *refresh.Coordinator
	logger      *zap.Logger
}

// Options configures a Client.
type Options struct {
	Name       string
	BaseURL    string
	HTTPClient *http.Client
}

// New builds a client. A nil HTTPClient gets a default one without timeout.
func New(opts Options, tokens tokenstore.Store, coordinator *refresh.Coordinator, logger *zap.Logger) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient(0)
	}
	return &Client{
		name:        opts.Name,
		baseURL:     opts.BaseURL,
		http:        httpClient,
		tokens:      tokens,
		coordinator: coordinator,
		logger:      logger.With(zap.String("client", opts.Name)),
	}
}

// pendingRequest is kept so it can be replayed after a refresh.
type pendingRequest struct {
	method      string
	path        string
	body        []byte
	retried     bool
	skipRefresh bool
}

// Do sends a JSON request and decodes the envelope's result into out (which
// may be nil). It returns the envelope message.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) (string, error) {
	return c.do(ctx, method, path, in, out, false)
}

// doNoRefresh is for auth endpoints where a 401 means bad credentials or an
// unusable session, never an expired access token.
func (c *Client) doNoRefresh(ctx context.Context, method, path string, in, out any) (string, error) {
	return c.do(ctx, method, path, in, out, true)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, skipRefresh bool) (string, error) {
	req := &pendingRequest{method: method, path: path, skipRefresh: skipRefresh}
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return "", fmt.Errorf("encode request: %w", err)
		}
		req.body = body
	}

	resp, err := c.execute(ctx, req)
	if err != nil {
		return "", err
	}
	return decode(resp, out)
}

func (c *Client) execute(ctx context.Context, req *pendingRequest) (*http.Response, error) {
	token, err := c.tokens.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("read token store: %w", err)
	}

	for {
		resp, err := c.send(ctx, req, token)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusUnauthorized || req.skipRefresh {
			return resp, nil
		}
		discard(resp)

		// A replayed request never re-enters the refresh cycle.
		if req.retried {
			return nil, fmt.Errorf("%w: %s %s rejected after refresh", ErrUnauthorized, req.method, req.path)
		}
		req.retried = true

		c.logger.Debug("access token rejected; refreshing", zap.String("path", req.path))
		token, err = c.coordinator.Refresh(ctx, token)
		if err != nil {
			return nil, err
		}
	}
}

func (c *Client) send(ctx context.Context, req *pendingRequest, token string) (*http.Response, error) {
	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, req.method, req.path, err)
	}
	return resp, nil
}

func decode(resp *http.Response, out any) (string, error) {
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %w", ErrTransport, err)
	}

	var env dto.Envelope[json.RawMessage]
	var decodeErr error
	if len(bytes.TrimSpace(raw)) > 0 {
		decodeErr = json.Unmarshal(raw, &env)
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !ok || decodeErr != nil || !env.Success {
		if ok && decodeErr != nil {
			return "", fmt.Errorf("decode response: %w", decodeErr)
		}
		message := env.Message
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return "", &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	if out != nil && len(env.Result) > 0 && string(env.Result) != "null" {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return "", fmt.Errorf("decode result: %w", err)
		}
	}
	return env.Message, nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	_ = resp.Body.Close()
}
