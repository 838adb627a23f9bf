// Package fetch wraps outbound HTTP with retry, backoff and per-host rate
// limiting. Every network-facing component in the pipeline composes on top
// of this client; SEC fair-access rules are enforced here, not at call sites.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// UserAgent is required by SEC EDGAR on every request.
const UserAgent = "InstitutionalHoldings/1.0 (research@leadscope.example.com)"

// RetryPolicy bounds the retry loop for a single logical request.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
}

// DefaultRetryPolicy matches the pacing SEC tolerates in practice.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, InitialDelay: 1 * time.Second}

// Client is a retrying HTTP client with a token-bucket limiter per host.
type Client struct {
	httpClient *http.Client
	policy     RetryPolicy
	log        *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perHost  rate.Limit
	burst    int
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.policy = p }
}

// WithRateLimit sets the per-host request rate and burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.perHost = rate.Limit(rps)
		c.burst = burst
	}
}

// NewClient builds a Client. SEC allows 10 req/s; the default stays well
// under that because discovery and resolution already serialize their work.
func NewClient(log *zap.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		policy:     DefaultRetryPolicy,
		log:        log.Named("fetch"),
		limiters:   make(map[string]*rate.Limiter),
		perHost:    rate.Limit(5),
		burst:      1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) limiter(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	lim, ok := c.limiters[host]
	if !ok {
		lim = rate.NewLimiter(c.perHost, c.burst)
		c.limiters[host] = lim
	}
	return lim
}

// retryable reports whether a response status warrants another attempt.
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// Get fetches rawURL and returns the response body. It retries transient
// network errors and 429/5xx responses with exponential backoff (the delay
// doubles each attempt). The last error is surfaced after attempts are
// exhausted, never swallowed.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	lim := c.limiter(u.Host)

	delay := c.policy.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return nil, err
		}

		body, status, err := c.doOnce(ctx, rawURL, headers)
		if err == nil && status == http.StatusOK {
			return body, nil
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = &StatusError{URL: rawURL, Status: status}
			if !retryable(status) {
				return nil, lastErr
			}
		}

		if attempt < c.policy.MaxAttempts {
			c.log.Debug("retrying request",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", c.policy.MaxAttempts, lastErr)
}

// GetJSON fetches rawURL with a JSON Accept header.
func (c *Client) GetJSON(ctx context.Context, rawURL string) ([]byte, error) {
	return c.Get(ctx, rawURL, map[string]string{"Accept": "application/json"})
}

// PostJSON sends a JSON body and returns the response body. Unlike Get it
// does not retry: the mapping API callers own their own 429 handling.
func (c *Client) PostJSON(ctx context.Context, rawURL string, payload []byte, headers map[string]string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if err := c.limiter(u.Host).Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: rawURL, Status: resp.StatusCode}
	}
	return body, nil
}

func (c *Client) doOnce(ctx context.Context, rawURL string, headers map[string]string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}
