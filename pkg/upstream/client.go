// Package upstream implements the client for the protected downstream
// dependency that relayed requests are forwarded to.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"RelayGuard/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/time/rate"
)

// RetryBackoffs are the waits between transient-failure attempts.
var RetryBackoffs = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// Defaults applied when configuration leaves fields unset.
const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 3

	// Local outbound ceiling per instance. This is a courtesy throttle in
	// front of the distributed limiter, not the admission decision itself.
	localRateLimit = 50
	localRateBurst = 100
)

// Sentinel errors classified from transport failures. The relay service maps
// these onto the public error taxonomy.
var (
	ErrTimeout     = errors.New("upstream timed out")
	ErrUnavailable = errors.New("upstream unavailable")
)

// Response is the upstream's reply to a relayed request.
type Response struct {
	StatusCode int
	Body       json.RawMessage
}

// Client forwards JSON payloads to the upstream with bearer auth, bounded
// retries and a local token-bucket throttle.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	limiter    *rate.Limiter
	logger     *log.Helper
}

// NewClient builds the upstream client from configuration.
func NewClient(c *conf.Bootstrap, logger log.Logger) *Client {
	guard := c.Guard.Upstream
	timeout := DefaultTimeout
	if guard.Timeout != nil {
		timeout = guard.Timeout.AsDuration()
	}
	maxRetries := DefaultMaxRetries
	if guard.MaxRetries > 0 {
		maxRetries = int(guard.MaxRetries)
	}
	return &Client{
		baseURL:    guard.BaseUrl,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		limiter:    rate.NewLimiter(rate.Limit(localRateLimit), localRateBurst),
		logger:     log.NewHelper(logger),
	}
}

// Relay posts the payload to the upstream path using the given bearer token.
// Transient failures (transport errors, 5xx) are retried with fixed
// backoffs; 4xx responses are returned as-is since retrying them cannot
// succeed. Timeouts and exhausted retries surface as the package's sentinel
// errors.
func (c *Client) Relay(ctx context.Context, path, token string, payload json.RawMessage) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	attempts := c.maxRetries
	if attempts > len(RetryBackoffs)+1 {
		attempts = len(RetryBackoffs) + 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := RetryBackoffs[attempt-1]
			c.logger.Infow("retrying upstream call",
				"attempt", attempt+1,
				"backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := c.doOnce(ctx, path, token, payload)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, path, token string, payload json.RawMessage) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path,
		bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
