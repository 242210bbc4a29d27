package labeling

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// HTTPClientConfig configures the HTTP transport.
type HTTPClientConfig struct {
	// Timeout is the request timeout for HTTP operations.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxRetries is the maximum number of retry attempts for idempotent requests.
	MaxRetries int

	// RetryDelay is the base delay between retries.
	RetryDelay time.Duration

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// APIKey is an optional API key sent in the X-API-Key header.
	APIKey string
}

// HTTPClient wraps http.Client with rate limiting and retries.
// It is safe for concurrent use.
type HTTPClient struct {
	client  *http.Client
	limiter *rate.Limiter
	config  HTTPClientConfig
}

// NewHTTPClient creates a new rate-limited HTTP client.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 5
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Helixir-DocumentReviewService/1.0"
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.BurstSize),
		config:  cfg,
	}
}

// Do executes an idempotent request, retrying on network errors, 429 and
// 5xx responses. Retry-After is honoured when present.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	return c.do(req, c.config.MaxRetries)
}

// DoOnce executes a request exactly once. It is used for calls that must
// not be repeated, such as job creation.
func (c *HTTPClient) DoOnce(req *http.Request) (*http.Response, error) {
	return c.do(req, 0)
}

func (c *HTTPClient) do(req *http.Request, maxRetries int) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.APIKey != "" {
		req.Header.Set("X-API-Key", c.config.APIKey)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt < maxRetries {
				if err := c.waitForRetry(req.Context(), c.config.RetryDelay); err != nil {
					return nil, err
				}
				if err := resetRequestBody(req); err != nil {
					return nil, fmt.Errorf("cannot retry request: %w", err)
				}
				continue
			}
			return nil, lastErr
		}

		if !shouldRetry(resp.StatusCode) || attempt == maxRetries {
			return resp, nil
		}

		delay := c.retryDelay(resp)
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		lastErr = fmt.Errorf("server returned status %d", resp.StatusCode)
		if err := c.waitForRetry(req.Context(), delay); err != nil {
			return nil, err
		}
		if err := resetRequestBody(req); err != nil {
			return nil, fmt.Errorf("cannot retry request: %w", err)
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("unexpected error: no response received")
}

func shouldRetry(statusCode int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	return statusCode >= 500 && statusCode < 600
}

// retryDelay honours Retry-After (seconds or HTTP date) and falls back to
// the configured delay.
func (c *HTTPClient) retryDelay(resp *http.Response) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return c.config.RetryDelay
	}
	if seconds, err := strconv.ParseInt(retryAfter, 10, 64); err == nil {
		if seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		return c.config.RetryDelay
	}
	if t, err := http.ParseTime(retryAfter); err == nil {
		if delay := time.Until(t); delay > 0 {
			return delay
		}
	}
	return c.config.RetryDelay
}

func (c *HTTPClient) waitForRetry(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func resetRequestBody(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("failed to get request body for retry: %w", err)
	}
	req.Body = body
	return nil
}
