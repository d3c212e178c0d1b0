package httpretry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statusSequence(t *testing.T, codes ...int) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		i := int(n) - 1
		if i >= len(codes) {
			i = len(codes) - 1
		}
		w.WriteHeader(codes[i])
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func post(t *testing.T, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader("Body=hi"))
	require.NoError(t, err)
	return req
}

func TestRetriesTransientStatus(t *testing.T) {
	srv, calls := statusSequence(t, http.StatusServiceUnavailable, http.StatusServiceUnavailable, http.StatusCreated)
	rc := NewRetryClient(srv.Client(), 3, WithBackoff(time.Millisecond, 5*time.Millisecond))

	resp, err := rc.Do(post(t, srv.URL))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestDoesNotRetryClientErrors(t *testing.T) {
	srv, calls := statusSequence(t, http.StatusBadRequest)
	rc := NewRetryClient(srv.Client(), 3, WithBackoff(time.Millisecond, time.Millisecond))

	resp, err := rc.Do(post(t, srv.URL))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestWithStatusesNarrowsRetries(t *testing.T) {
	srv, calls := statusSequence(t, http.StatusInternalServerError, http.StatusCreated)
	rc := NewRetryClient(srv.Client(), 3, WithStatuses(http.StatusTooManyRequests), WithBackoff(time.Millisecond, time.Millisecond))

	resp, err := rc.Do(post(t, srv.URL))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestReturnsLastResponseWhenExhausted(t *testing.T) {
	srv, calls := statusSequence(t, http.StatusTooManyRequests)
	rc := NewRetryClient(srv.Client(), 2, WithBackoff(time.Millisecond, time.Millisecond))

	resp, err := rc.Do(post(t, srv.URL))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

type failingDoer struct{ calls int32 }

func (f *failingDoer) Do(*http.Request) (*http.Response, error) {
	atomic.AddInt32(&f.calls, 1)
	return nil, errors.New("connection reset by peer")
}

func TestNetworkRetryCanBeDisabled(t *testing.T) {
	d := &failingDoer{}
	rc := NewRetryClient(d, 3, WithoutNetworkRetry(), WithBackoff(time.Millisecond, time.Millisecond))
	_, err := rc.Do(post(t, "http://example.invalid"))
	assert.Error(t, err)
	assert.Equal(t, int32(1), d.calls)

	d = &failingDoer{}
	rc = NewRetryClient(d, 2, WithBackoff(time.Millisecond, time.Millisecond))
	_, err = rc.Do(post(t, "http://example.invalid"))
	assert.Error(t, err)
	assert.Equal(t, int32(3), d.calls)
}

func TestStopsOnCancelledContext(t *testing.T) {
	d := &failingDoer{}
	rc := NewRetryClient(d, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := post(t, "http://example.invalid").WithContext(ctx)
	_, err := rc.Do(req)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), d.calls)
}

func TestCalculateDelayBounds(t *testing.T) {
	rc := NewRetryClient(nil, 3, WithBackoff(100*time.Millisecond, 300*time.Millisecond))
	for attempt := 1; attempt <= 5; attempt++ {
		d := rc.calculateDelay(attempt)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 300*time.Millisecond)
	}
}
