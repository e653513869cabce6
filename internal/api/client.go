// Package api implements the authenticated gateway to the chat backend.
//
// Every outbound call goes through the same protocol: attach the bearer
// token, issue the request, and on an authorization failure run at most one
// token refresh before retrying the original request exactly once. Refreshes
// are serialized so that concurrent failing calls share a single refresh
// request. A failed refresh clears the credential store and escalates to a
// forced logout through the expiry hook.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"ragchat/internal/credentials"
)

// MaxResponseSize is the maximum allowed response body size
const MaxResponseSize = 10 * 1024 * 1024

// Client handles communication with the chat backend
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      *credentials.Store
	logger     *zap.Logger

	// refreshGroup collapses concurrent refresh attempts into one request
	refreshGroup singleflight.Group

	// expiryHook runs after a failed refresh has cleared the store
	expiryHook func()
}

// NewClient creates a new backend client. The credential store doubles as
// the cookie jar so the backend's refresh cookie survives between runs.
func NewClient(baseURL string, timeout time.Duration, store *credentials.Store) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     store,
		},
		store:  store,
		logger: zap.NewNop(),
	}
}

// WithLogger sets the logger used for request tracing
func (c *Client) WithLogger(logger *zap.Logger) *Client {
	c.logger = logger
	return c
}

// SetExpiryHook registers the callback invoked when a refresh fails and the
// session is forcibly ended
func (c *Client) SetExpiryHook(hook func()) {
	c.expiryHook = hook
}

// isAuthEndpoint reports whether endpoint issues or renews credentials.
// A 401 from these endpoints must fail immediately, never trigger a refresh.
func isAuthEndpoint(endpoint string) bool {
	switch endpoint {
	case "/auth/login", "/auth/register", "/auth/refresh":
		return true
	}
	return false
}

// call issues an authenticated request. On an authorization failure it
// refreshes the token and re-issues the original request exactly once; a
// second failure surfaces as ErrAuthFailed without another refresh.
func (c *Client) call(ctx context.Context, method, endpoint, contentType string, payload []byte, out interface{}) error {
	err := c.do(ctx, method, endpoint, contentType, payload, out)
	if !errors.Is(err, ErrAuthFailed) || isAuthEndpoint(endpoint) {
		return err
	}

	if rerr := c.refresh(ctx); rerr != nil {
		// The refresh credential itself is no longer good. Clear both
		// token sinks and hand control to the forced-logout path.
		if cerr := c.store.Clear(); cerr != nil {
			c.logger.Warn("failed to clear credentials", zap.Error(cerr))
		}
		if c.expiryHook != nil {
			c.expiryHook()
		}
		return fmt.Errorf("%w: %v", ErrSessionExpired, rerr)
	}

	return c.do(ctx, method, endpoint, contentType, payload, out)
}

// refresh renews the access token. Concurrent callers share one in-flight
// refresh request and its outcome.
func (c *Client) refresh(ctx context.Context) error {
	_, err, _ := c.refreshGroup.Do("refresh", func() (interface{}, error) {
		var tok tokenResponse
		if err := c.do(ctx, http.MethodPost, "/auth/refresh", "", nil, &tok); err != nil {
			return nil, err
		}
		if err := c.store.Set(tok.AccessToken); err != nil {
			return nil, err
		}
		return nil, nil
	})
	return err
}

// do performs a single HTTP request against the backend
func (c *Client) do(ctx context.Context, method, endpoint, contentType string, payload []byte, out interface{}) error {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token, ok := c.store.Token(); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed",
			zap.String("method", method),
			zap.String("path", endpoint),
			zap.Error(err))
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	// Method, path, status and duration only. Never headers or bodies.
	c.logger.Debug("request",
		zap.String("method", method),
		zap.String("path", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode == http.StatusUnauthorized {
		if detail := decodeDetail(resp.Body); detail != "" {
			return fmt.Errorf("%w: %s", ErrAuthFailed, detail)
		}
		return ErrAuthFailed
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RequestError{Status: resp.StatusCode, Detail: decodeDetail(resp.Body)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	body, err := readResponse(resp)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}

// decodeDetail extracts the backend's structured detail message, if any
func decodeDetail(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	if err != nil {
		return ""
	}

	var eb errorBody
	if err := json.Unmarshal(data, &eb); err == nil && eb.Detail != "" {
		return eb.Detail
	}
	return strings.TrimSpace(string(data))
}

// readResponse reads the response body with a size limit
func readResponse(resp *http.Response) ([]byte, error) {
	limitedReader := io.LimitReader(resp.Body, MaxResponseSize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}

	return body, nil
}
