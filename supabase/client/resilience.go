package client

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/qkgalias/capstone-hub/internal/logging"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	// Jitter adds randomness to backoff (0.0 to 1.0)
	Jitter               float64
	RetryableStatusCodes []int
}

// DefaultRetryConfig returns the defaults used against Supabase.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryableStatusCodes: []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

func (c RetryConfig) isZero() bool {
	return c.MaxRetries == 0 && c.InitialBackoff == 0 && len(c.RetryableStatusCodes) == 0
}

func (c RetryConfig) backoff(attempt int) time.Duration {
	mult := c.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}
	backoff := float64(c.InitialBackoff) * math.Pow(mult, float64(attempt-1))
	if c.MaxBackoff > 0 && backoff > float64(c.MaxBackoff) {
		backoff = float64(c.MaxBackoff)
	}
	if c.Jitter > 0 {
		backoff += backoff * c.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(backoff)
}

func (c RetryConfig) retryableStatus(code int) bool {
	for _, retryable := range c.RetryableStatusCodes {
		if code == retryable {
			return true
		}
	}
	return false
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes that close it again.
	SuccessThreshold int
	// Timeout is how long the circuit stays open before probing.
	Timeout       time.Duration
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns the defaults used against Supabase.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// ErrCircuitOpen is returned when the circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker stops calling a backend that keeps failing.
type CircuitBreaker struct {
	mu sync.Mutex

	config CircuitBreakerConfig
	state  CircuitState
	now    func() time.Time

	failures  int
	successes int
	lastError error
	openedAt  time.Time
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 1
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	return &CircuitBreaker{
		config: config,
		state:  CircuitClosed,
		now:    time.Now,
	}
}

// Allow reports whether a request may proceed.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen {
		if cb.now().Sub(cb.openedAt) < cb.config.Timeout {
			return ErrCircuitOpen
		}
		cb.transitionTo(CircuitHalfOpen)
	}
	return nil
}

// RecordSuccess records a successful request.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transitionTo(CircuitClosed)
		}
	}
}

// RecordFailure records a failed request.
func (cb *CircuitBreaker) RecordFailure(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastError = err

	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transitionTo(CircuitOpen)
	}
}

func (cb *CircuitBreaker) transitionTo(newState CircuitState) {
	oldState := cb.state
	cb.state = newState

	switch newState {
	case CircuitClosed:
		cb.failures = 0
		cb.successes = 0
	case CircuitOpen:
		cb.openedAt = cb.now()
		cb.successes = 0
	case CircuitHalfOpen:
		cb.successes = 0
	}

	if cb.config.OnStateChange != nil {
		go cb.config.OnStateChange(oldState, newState)
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// LastError returns the last recorded failure.
func (cb *CircuitBreaker) LastError() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.lastError
}

// ResilientTransport is an http.RoundTripper that retries transient failures
// and trips a circuit breaker when Supabase keeps failing. It forwards the
// request trace id as X-Request-ID.
type ResilientTransport struct {
	base    http.RoundTripper
	retry   RetryConfig
	breaker *CircuitBreaker

	total   int64
	retried int64
	failed  int64
}

// NewResilientTransport wraps base (http.DefaultTransport when nil). Zero
// configs fall back to the defaults.
func NewResilientTransport(base http.RoundTripper, retry RetryConfig, breaker CircuitBreakerConfig) *ResilientTransport {
	if base == nil {
		base = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		}
	}
	if retry.isZero() {
		retry = DefaultRetryConfig()
	}
	if breaker.FailureThreshold == 0 && breaker.Timeout == 0 {
		breaker = DefaultCircuitBreakerConfig()
	}
	return &ResilientTransport{
		base:    base,
		retry:   retry,
		breaker: NewCircuitBreaker(breaker),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *ResilientTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	atomic.AddInt64(&t.total, 1)

	if err := t.breaker.Allow(); err != nil {
		atomic.AddInt64(&t.failed, 1)
		return nil, err
	}

	ctx := req.Context()
	maxRetries := t.retry.MaxRetries
	if !replayable(req.Method) {
		maxRetries = 0
	}
	var (
		resp    *http.Response
		lastErr error
	)
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			atomic.AddInt64(&t.retried, 1)
			select {
			case <-ctx.Done():
				t.breaker.RecordFailure(ctx.Err())
				atomic.AddInt64(&t.failed, 1)
				return nil, ctx.Err()
			case <-time.After(t.retry.backoff(attempt)):
			}
		}

		attemptReq, err := rewind(req)
		if err != nil {
			return nil, err
		}

		resp, lastErr = t.base.RoundTrip(attemptReq)
		if lastErr != nil {
			if retryableError(lastErr) && attempt < maxRetries {
				continue
			}
			t.breaker.RecordFailure(lastErr)
			atomic.AddInt64(&t.failed, 1)
			return nil, lastErr
		}

		if t.retry.retryableStatus(resp.StatusCode) {
			lastErr = &HTTPError{StatusCode: resp.StatusCode}
			if attempt < maxRetries {
				resp.Body.Close()
				continue
			}
			// Out of retries: hand the final response to the caller so the
			// backend's error body still reaches the user.
			t.breaker.RecordFailure(lastErr)
			atomic.AddInt64(&t.failed, 1)
			return resp, nil
		}

		t.breaker.RecordSuccess()
		return resp, nil
	}

	t.breaker.RecordFailure(lastErr)
	atomic.AddInt64(&t.failed, 1)
	return nil, lastErr
}

// replayable reports whether a request can be sent again without a second
// side effect. PostgREST inserts and GoTrue token grants are POSTs and are
// sent once. PATCH is included because every update here writes fixed
// values to id-scoped rows.
func replayable(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// rewind clones req for one attempt, resetting the body and stamping the trace id.
func rewind(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		out.Body = body
	}
	if traceID := logging.GetTraceID(req.Context()); traceID != "" && out.Header.Get("X-Request-ID") == "" {
		out.Header.Set("X-Request-ID", traceID)
	}
	return out, nil
}

func retryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// HTTPError is a retryable status seen by the transport.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return http.StatusText(e.StatusCode)
}

// Metrics returns transport counters.
func (t *ResilientTransport) Metrics() map[string]int64 {
	return map[string]int64{
		"total_requests":   atomic.LoadInt64(&t.total),
		"retried_requests": atomic.LoadInt64(&t.retried),
		"failed_requests":  atomic.LoadInt64(&t.failed),
	}
}

// CircuitState returns the current circuit breaker state.
func (t *ResilientTransport) CircuitState() CircuitState {
	return t.breaker.State()
}
