// Package httpclient wraps http.Client with bounded timeouts, retries
// with exponential backoff, and JSON helpers. Used for advisor-directory
// lookups and webhook dispatch; never on a state-machine critical path.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Client is an http.Client with retry logic and structured errors.
type Client struct {
	httpClient     *http.Client
	retryConfig    RetryConfig
	serviceName    string
	defaultHeaders map[string]string
}

// RetryConfig defines retry behavior.
type RetryConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	RetryableStatuses []int
}

// DefaultRetryConfig returns sensible defaults for retries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		RetryableStatuses: []int{
			http.StatusRequestTimeout,
			http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

// Option configures a Client.
type Option func(*Client)

// WithRetry overrides the retry configuration.
func WithRetry(rc RetryConfig) Option {
	return func(c *Client) { c.retryConfig = rc }
}

// WithAPIKey attaches an API key header to every request.
func WithAPIKey(header, key string) Option {
	return func(c *Client) { c.defaultHeaders[header] = key }
}

// NewClient creates a client identified by serviceName in logs, with a
// hard per-request timeout.
func NewClient(serviceName string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		httpClient:     &http.Client{Timeout: timeout},
		retryConfig:    DefaultRetryConfig(),
		serviceName:    serviceName,
		defaultHeaders: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do executes a request with retry and backoff. The request body, if any,
// must be replayable (builder requests are).
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	for k, v := range c.defaultHeaders {
		req.Header.Set(k, v)
	}

	var lastErr error
	backoff := c.retryConfig.InitialBackoff

	for attempt := 0; attempt <= c.retryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			slog.DebugContext(ctx, "retrying request",
				"service", c.serviceName,
				"attempt", attempt,
				"method", req.Method,
				"url", req.URL.String(),
				"backoff", backoff,
			)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}

			backoff *= 2
			if backoff > c.retryConfig.MaxBackoff {
				backoff = c.retryConfig.MaxBackoff
			}
		}

		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("rewind body: %w", err)
			}
			req.Body = body
		}

		resp, err := c.httpClient.Do(req.WithContext(ctx))
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		if c.isRetryableStatus(resp.StatusCode) {
			resp.Body.Close()
			lastErr = fmt.Errorf("retryable status code: %d", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded for %s: %w", req.URL.String(), lastErr)
}

func (c *Client) isRetryableStatus(statusCode int) bool {
	for _, s := range c.retryConfig.RetryableStatuses {
		if s == statusCode {
			return true
		}
	}
	return false
}

// HTTPError represents a non-2xx HTTP response.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *HTTPError) Error() string {
	if len(e.Body) > 0 {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, string(e.Body))
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}

func drainError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return &HTTPError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       body,
	}
}
