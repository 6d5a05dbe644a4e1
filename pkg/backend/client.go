// Package backend is a client for the cache dashboard REST API.
package backend

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/speedrun-hq/cachekeeper/pkg/circuitbreaker"
	"github.com/speedrun-hq/cachekeeper/pkg/logger"
	"github.com/speedrun-hq/cachekeeper/pkg/metrics"
)

const apiPrefix = "/api/v1"

var (
	// ErrServiceUnavailable means the backend could not be reached or failed internally.
	// It is distinct from on-chain failures.
	ErrServiceUnavailable = errors.New("backend service unavailable")
	// ErrNotFound means the requested resource does not exist
	ErrNotFound = errors.New("resource not found")
	// ErrUnauthorized means the request needs a valid session
	ErrUnauthorized = errors.New("unauthorized")
)

// APIError is a non-2xx response that is not a backend outage
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps well-known statuses onto sentinels
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	}
	return nil
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	HTTPClient *http.Client
	// RateLimit caps requests per second; zero or negative disables limiting
	RateLimit float64
	Breaker   *circuitbreaker.CircuitBreaker
	// Signer, when set, keeps a session alive: the client logs in before requests
	// once the token nears expiry and once more after a 401
	Signer *ecdsa.PrivateKey
}

// Client talks to the backend
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *circuitbreaker.CircuitBreaker
	logger     logger.Logger

	signer  *ecdsa.PrivateKey
	loginMu sync.Mutex
	authMu  sync.Mutex
	auth    *session
}

// New creates a backend client for baseURL
func New(baseURL string, opts Options, log logger.Logger) *Client {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = createHTTPClient()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		limiter:    limiter,
		breaker:    opts.Breaker,
		signer:     opts.Signer,
		logger:     log,
	}
}

// BaseURL returns the configured base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ping checks that the backend answers
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/health", nil, nil, nil, "")
}

// do sends one authenticated request. body is JSON-encoded when non-nil; out is
// decoded from a 2xx response when non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	if c.signer != nil {
		if err := c.EnsureLogin(ctx, c.signer); err != nil {
			c.logger.Notice("Backend login failed, sending %s %s without a fresh session: %v", method, path, err)
		}
	}

	token := c.token()
	err := c.call(ctx, method, path, query, body, out, token)
	if c.signer == nil || !errors.Is(err, ErrUnauthorized) {
		return err
	}

	if loginErr := c.relogin(ctx, token); loginErr != nil {
		return fmt.Errorf("%w (re-login failed: %v)", err, loginErr)
	}
	return c.call(ctx, method, path, query, body, out, c.token())
}

// call sends one request through the circuit breaker and the rate limiter. Only
// outages count against the breaker.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, body, out interface{}, token string) error {
	send := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return c.send(ctx, method, path, query, body, out, token)
	}
	if c.breaker == nil {
		return send()
	}

	err := c.breaker.Do(send, func(err error) bool { return errors.Is(err, ErrServiceUnavailable) })
	if errors.Is(err, circuitbreaker.ErrOpen) {
		metrics.BackendRequests.WithLabelValues(method, "circuit_open").Inc()
		return fmt.Errorf("%w: %s", ErrServiceUnavailable, err)
	}
	return err
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body, out interface{}, token string) error {
	endpoint := c.baseURL + apiPrefix + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.BackendRequests.WithLabelValues(method, "error").Inc()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s %s: %v", ErrServiceUnavailable, method, path, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Error("Failed to close response body: %v", closeErr)
		}
	}()

	metrics.BackendRequests.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response body: %v", ErrServiceUnavailable, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		c.logger.Debug("Backend request %s %s (%s) failed: %d", method, path, requestID, resp.StatusCode)
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrServiceUnavailable, method, path, resp.StatusCode, errorMessage(bodyBytes))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(bodyBytes)}
	}

	if out == nil || len(bytes.TrimSpace(bodyBytes)) == 0 {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w, body: %s", path, err, string(bodyBytes))
	}
	return nil
}

// errorMessage extracts {"error": "..."} or {"message": "..."} when present
func errorMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return string(bytes.TrimSpace(body))
}

// decodeList accepts either a bare JSON array or an object wrapping the array in
// "data", "results" or the named field
func decodeList(raw json.RawMessage, field string, out interface{}) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '[' {
		return json.Unmarshal(trimmed, out)
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return err
	}
	for _, key := range []string{field, "data", "results"} {
		if inner, ok := wrapper[key]; ok {
			return json.Unmarshal(inner, out)
		}
	}
	return nil
}

// Helper function to create an HTTP client with timeouts
func createHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
