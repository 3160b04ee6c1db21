// Package fetch downloads provider submission feeds with rate limiting and
// bounded retries.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/litcat/litrec/internal/conflict"
	"github.com/litcat/litrec/internal/importer"
	"github.com/litcat/litrec/internal/logging"
	"github.com/litcat/litrec/internal/submission"
)

const (
	// DefaultTimeout bounds a single feed request.
	DefaultTimeout = 5 * time.Minute

	// DefaultRateLimit is requests per second across all feeds of a client.
	DefaultRateLimit = 2.0

	// DefaultMaxAttempts is the number of tries before a fetch is reported as
	// an upstream failure.
	DefaultMaxAttempts = 4

	DefaultInitialBackoff = 1 * time.Second
	DefaultMaxBackoff     = 30 * time.Second
)

// Client is a rate-limited HTTP client for provider feeds.
type Client struct {
	httpClient     *http.Client
	limiter        *rate.Limiter
	token          string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	log            *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithRateLimit sets the request rate in requests per second.
func WithRateLimit(perSecond float64) ClientOption {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithMaxAttempts sets how many times a request is tried.
func WithMaxAttempts(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBackoff sets the first retry delay and the cap on later ones.
func WithBackoff(initial, ceiling time.Duration) ClientOption {
	return func(c *Client) {
		if initial > 0 {
			c.initialBackoff = initial
		}
		if ceiling > 0 {
			c.maxBackoff = ceiling
		}
	}
}

// WithToken sets a bearer token sent with every request.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithLogger sets the logger used for retry messages.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		c.log = logging.OrNop(l)
	}
}

// NewClient creates a feed client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient:     &http.Client{Timeout: DefaultTimeout},
		limiter:        rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
		maxAttempts:    DefaultMaxAttempts,
		initialBackoff: DefaultInitialBackoff,
		maxBackoff:     DefaultMaxBackoff,
		log:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch downloads url. Network errors, 429 and 5xx responses are retried
// with exponential backoff; once attempts run out the error is an
// UpstreamFetchFailure for subject.
func (c *Client) Fetch(ctx context.Context, subject, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		body, wait, err := c.get(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable(err) || attempt == c.maxAttempts {
			break
		}

		if wait <= 0 {
			wait = c.backoff(attempt)
		}
		c.log.Warn("feed request failed, retrying",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, conflict.Wrap(conflict.UpstreamFetchFailure, subject, ctx.Err())
		case <-time.After(wait):
		}
	}
	return nil, conflict.Wrap(conflict.UpstreamFetchFailure, subject, lastErr)
}

// FetchRecords downloads and parses a provider submission file. Entries the
// importer dropped are returned alongside the records.
func (c *Client) FetchRecords(ctx context.Context, provider, url string) ([]submission.Record, []error, error) {
	body, err := c.Fetch(ctx, provider, url)
	if err != nil {
		return nil, nil, err
	}
	if !json.Valid(body) {
		return nil, nil, conflict.Wrap(conflict.UpstreamFetchFailure, provider,
			fmt.Errorf("%w: body from %s is not JSON", ErrInvalidResponse, url))
	}
	records, drops := importer.ParseSubmissionFile(body, provider)
	return records, drops, nil
}

// backoff returns the delay before retry number attempt (1-based).
func (c *Client) backoff(attempt int) time.Duration {
	shift := min(attempt-1, 10)
	d := c.initialBackoff * time.Duration(1<<shift)
	return min(d, c.maxBackoff)
}

// get performs one request. wait is the server's Retry-After hint, if any.
func (c *Client) get(ctx context.Context, url string) (body []byte, wait time.Duration, err error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, c.retryAfter(resp), fmt.Errorf("%w: %s", ErrRateLimited, url)
	}
	if resp.StatusCode >= 400 {
		return nil, 0, &StatusError{StatusCode: resp.StatusCode, URL: url}
	}

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: reading body: %v", ErrNetworkError, err)
	}
	return body, 0, nil
}

func (c *Client) retryAfter(resp *http.Response) time.Duration {
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, c.maxBackoff)
}
