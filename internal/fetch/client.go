// Package fetch provides the bounded JSON fetch layer between LawnCast and
// every upstream weather API. All outbound JSON calls are routed through a
// Client, which enforces a hard per-request timeout, uniform error
// classification, and a circuit breaker that fails fast after repeated
// upstream failures.
//
// This layer never retries. Retry and fallback policy belongs to callers:
// the forecast adapter degrades to an empty map, and the observed-precip
// reconciler walks its source fallback chain.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"lawncast/internal/types"
)

// DefaultTimeout is the per-request deadline applied when a Client is
// constructed with a zero timeout.
const DefaultTimeout = 5 * time.Second

// maxErrorBodyBytes caps how much of an error response body is embedded in
// the returned error message.
const maxErrorBodyBytes = 4 << 10 // 4 KB

// Client issues single HTTP GET/JSON requests with a hard timeout and
// uniform error classification. One Client is created per upstream service
// so each upstream gets its own circuit breaker and User-Agent.
type Client struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	timeout    time.Duration
	userAgent  string
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client. Intended for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithUserAgent sets the User-Agent header injected into every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New creates a Client for the named upstream with the given per-request
// timeout. A zero timeout selects DefaultTimeout.
func New(name string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	c := &Client{
		httpClient: &http.Client{},
		breaker:    cb,
		timeout:    timeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// GetJSON issues one GET request for url, decodes the JSON response into out,
// and classifies every failure mode into a types.AppError:
//
//   - upstream_timeout: no response within the client timeout
//   - upstream_http_status: non-2xx status; the message embeds the numeric
//     status and body text verbatim ("HTTP <status>: <body>")
//   - upstream_network: transport failure (DNS, connection refused, breaker open)
//   - upstream_parse: response body is not valid JSON
//
// The extra headers are applied after the User-Agent injection, so callers
// can override it per request if an upstream demands a specific identity.
func (c *Client) GetJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamNetwork,
			fmt.Sprintf("building request for %s", url), err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		return c.httpClient.Do(req)
	})
	if err != nil {
		return c.classifyTransport(ctx, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamHTTPStatus,
			fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)),
			nil,
			map[string]any{"status": resp.StatusCode, "url": url},
		)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamParse,
			fmt.Sprintf("decoding response from %s", url), err)
	}

	return nil
}

// GetBytes issues one GET request and returns the raw response body. It is
// used by the raster adapter, which consumes binary GeoTIFF payloads rather
// than JSON. Error classification matches GetJSON except that no parse
// errors are possible at this layer.
func (c *Client) GetBytes(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamNetwork,
			fmt.Sprintf("building request for %s", url), err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		return c.httpClient.Do(req)
	})
	if err != nil {
		return nil, c.classifyTransport(ctx, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamHTTPStatus,
			fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)),
			nil,
			map[string]any{"status": resp.StatusCode, "url": url},
		)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamNetwork,
			fmt.Sprintf("reading response from %s", url), err)
	}

	return data, nil
}

// classifyTransport maps transport-level failures to the error taxonomy.
func (c *Client) classifyTransport(ctx context.Context, url string, err error) *types.AppError {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return types.NewAppError(types.ErrCodeUpstreamNetwork,
			fmt.Sprintf("circuit breaker open for %s", url), err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return types.NewAppError(types.ErrCodeUpstreamTimeout,
			fmt.Sprintf("request to %s timed out after %s", url, c.timeout), err)
	default:
		return types.NewAppError(types.ErrCodeUpstreamNetwork,
			fmt.Sprintf("request to %s failed: %v", url, err), err)
	}
}
