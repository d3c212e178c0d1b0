// Package httpretry wraps an HTTP client with bounded retries and
// exponential backoff with full jitter.
package httpretry

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/ignite/studio-automation/internal/pkg/logger"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both *http.Client and *RetryClient satisfy this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultStatuses are the transient statuses retried unless overridden.
var DefaultStatuses = []int{
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// RetryClient wraps an HTTPDoer with retry logic.
type RetryClient struct {
	client       HTTPDoer
	maxRetries   int
	baseDelay    time.Duration
	maxDelay     time.Duration
	statuses     map[int]bool
	networkRetry bool
}

// Option configures a RetryClient.
type Option func(*RetryClient)

// WithStatuses replaces the set of retried status codes.
func WithStatuses(codes ...int) Option {
	return func(rc *RetryClient) {
		rc.statuses = make(map[int]bool, len(codes))
		for _, c := range codes {
			rc.statuses[c] = true
		}
	}
}

// WithoutNetworkRetry stops retries after transport errors. Use it for
// requests that are not idempotent, where a timed-out attempt may still
// have been processed by the server.
func WithoutNetworkRetry() Option {
	return func(rc *RetryClient) { rc.networkRetry = false }
}

// WithBackoff sets the base and maximum delay between attempts.
func WithBackoff(base, max time.Duration) Option {
	return func(rc *RetryClient) {
		rc.baseDelay = base
		rc.maxDelay = max
	}
}

// NewRetryClient creates a RetryClient that wraps the given HTTPDoer.
// If client is nil, a default http.Client with 30s timeout is used.
// maxRetries is the number of retry attempts after the initial request (default 3).
func NewRetryClient(client HTTPDoer, maxRetries int, opts ...Option) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	rc := &RetryClient{
		client:       client,
		maxRetries:   maxRetries,
		baseDelay:    1 * time.Second,
		maxDelay:     30 * time.Second,
		networkRetry: true,
	}
	WithStatuses(DefaultStatuses...)(rc)
	for _, o := range opts {
		o(rc)
	}
	return rc
}

// Do executes the request, retrying on configured statuses and, unless
// disabled, transport errors. Context cancellation is never retried. On
// the final attempt the response is returned as-is so the caller can
// inspect the status and body.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= rc.maxRetries; attempt++ {
		if req.Context().Err() != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, req.Context().Err()
		}

		if attempt > 0 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("httpretry: failed to reset request body: %w", err)
				}
				req.Body = body
			}

			delay := rc.calculateDelay(attempt)
			logger.Debug("httpretry: retrying request", "attempt", attempt, "max_retries", rc.maxRetries,
				"method", req.Method, "host", req.URL.Host, "path", req.URL.Path, "delay", delay.String())

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-req.Context().Done():
				timer.Stop()
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, req.Context().Err()
			}
		}

		resp, err := rc.client.Do(req)
		if err != nil {
			if req.Context().Err() != nil || !rc.networkRetry {
				return nil, err
			}
			lastErr = err
			continue
		}

		if !rc.statuses[resp.StatusCode] || attempt == rc.maxRetries {
			return resp, nil
		}

		// Drain for connection reuse.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: server returned retryable status %d", resp.StatusCode)
	}

	return nil, lastErr
}

// calculateDelay uses full jitter: random(0, min(maxDelay, baseDelay * 2^(attempt-1))),
// floored at a tenth of the base delay.
func (rc *RetryClient) calculateDelay(attempt int) time.Duration {
	expDelay := float64(rc.baseDelay) * math.Pow(2, float64(attempt-1))
	if expDelay > float64(rc.maxDelay) {
		expDelay = float64(rc.maxDelay)
	}
	jittered := time.Duration(rand.Float64() * expDelay)
	if floor := rc.baseDelay / 10; jittered < floor {
		jittered = floor
	}
	return jittered
}
