package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/qkgalias/capstone-hub/internal/logging"
)

func fastRetry(codes ...int) RetryConfig {
	return RetryConfig{
		MaxRetries:           3,
		InitialBackoff:       time.Millisecond,
		MaxBackoff:           5 * time.Millisecond,
		BackoffMultiplier:    2.0,
		RetryableStatusCodes: codes,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.InitialBackoff != 100*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 100ms", cfg.InitialBackoff)
	}
	if !cfg.retryableStatus(http.StatusTooManyRequests) || cfg.retryableStatus(http.StatusBadRequest) {
		t.Error("default retryable codes should include 429 and exclude 400")
	}
}

func TestRetryConfig_BackoffCapped(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 250 * time.Millisecond, BackoffMultiplier: 2}

	if got := cfg.backoff(1); got != 100*time.Millisecond {
		t.Errorf("backoff(1) = %v, want 100ms", got)
	}
	if got := cfg.backoff(2); got != 200*time.Millisecond {
		t.Errorf("backoff(2) = %v, want 200ms", got)
	}
	if got := cfg.backoff(5); got != 250*time.Millisecond {
		t.Errorf("backoff(5) = %v, want cap 250ms", got)
	}
}

func TestCircuitBreaker_OpenOnFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          time.Minute,
	})

	for i := 0; i < 3; i++ {
		cb.RecordFailure(errors.New("boom"))
	}

	if cb.State() != CircuitOpen {
		t.Fatalf("State() = %v, want %v", cb.State(), CircuitOpen)
	}
	if err := cb.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Allow() error = %v, want ErrCircuitOpen", err)
	}
	if cb.LastError() == nil || cb.LastError().Error() != "boom" {
		t.Errorf("LastError() = %v", cb.LastError())
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, Timeout: time.Minute})

	cb.RecordFailure(errors.New("a"))
	cb.RecordFailure(errors.New("b"))
	cb.RecordSuccess()
	cb.RecordFailure(errors.New("c"))

	if cb.State() != CircuitClosed {
		t.Errorf("State() = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenTransitions(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	})
	cb.now = func() time.Time { return now }

	cb.RecordFailure(errors.New("down"))
	if cb.State() != CircuitOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}

	now = now.Add(31 * time.Second)
	if err := cb.Allow(); err != nil {
		t.Fatalf("Allow() after timeout = %v", err)
	}
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("State() = %v, want half-open", cb.State())
	}

	cb.RecordFailure(errors.New("still down"))
	if cb.State() != CircuitOpen {
		t.Fatalf("half-open failure should reopen, got %v", cb.State())
	}

	now = now.Add(31 * time.Second)
	_ = cb.Allow()
	cb.RecordSuccess()
	cb.RecordSuccess()
	if cb.State() != CircuitClosed {
		t.Errorf("State() = %v, want closed after successes", cb.State())
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var mu sync.Mutex
	var transitions []string
	done := make(chan struct{}, 1)

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		Timeout:          time.Minute,
		OnStateChange: func(from, to CircuitState) {
			mu.Lock()
			transitions = append(transitions, from.String()+"->"+to.String())
			mu.Unlock()
			done <- struct{}{}
		},
	})
	cb.RecordFailure(errors.New("x"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnStateChange not called")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != 1 || transitions[0] != "closed->open" {
		t.Errorf("transitions = %v", transitions)
	}
}

func TestResilientTransport_RetriesServerErrors(t *testing.T) {
	var attempts int32
	var bodies []string
	var mu sync.Mutex

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(raw))
		mu.Unlock()
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tr := NewResilientTransport(nil, fastRetry(http.StatusServiceUnavailable), DefaultCircuitBreakerConfig())
	client := &http.Client{Transport: tr}

	req, err := http.NewRequest(http.MethodPatch, server.URL, strings.NewReader(`{"sort_order":1}`))
	if err != nil {
		t.Fatalf("NewRequest() error: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	mu.Lock()
	defer mu.Unlock()
	for i, b := range bodies {
		if b != `{"sort_order":1}` {
			t.Errorf("attempt %d body = %q, want replayed body", i, b)
		}
	}
	if tr.Metrics()["retried_requests"] != 2 {
		t.Errorf("retried_requests = %d, want 2", tr.Metrics()["retried_requests"])
	}
}

func TestResilientTransport_PostIsSentOnce(t *testing.T) {
	var inserts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			atomic.AddInt32(&inserts, 1)
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	tr := NewResilientTransport(nil, fastRetry(http.StatusBadGateway), DefaultCircuitBreakerConfig())
	client := &http.Client{Transport: tr}

	resp, err := client.Post(server.URL, "application/json", strings.NewReader(`{"title":"Docs"}`))
	if err != nil {
		t.Fatalf("Post() error: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d, want 502", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&inserts); got != 1 {
		t.Errorf("inserts = %d, want 1", got)
	}
	if tr.Metrics()["retried_requests"] != 0 {
		t.Errorf("retried_requests = %d, want 0", tr.Metrics()["retried_requests"])
	}
}

func TestResilientTransport_ReturnsFinalErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"message":"upstream down"}`))
	}))
	defer server.Close()

	cfg := fastRetry(http.StatusBadGateway)
	cfg.MaxRetries = 1
	client := &http.Client{Transport: NewResilientTransport(nil, cfg, DefaultCircuitBreakerConfig())}

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusBadGateway || !strings.Contains(string(raw), "upstream down") {
		t.Errorf("got %d %q", resp.StatusCode, raw)
	}
}

func TestResilientTransport_CircuitOpens(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := fastRetry(http.StatusServiceUnavailable)
	cfg.MaxRetries = 0
	tr := NewResilientTransport(nil, cfg, CircuitBreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute})
	client := &http.Client{Transport: tr}

	for i := 0; i < 2; i++ {
		resp, err := client.Get(server.URL)
		if err != nil {
			t.Fatalf("Get() #%d error: %v", i, err)
		}
		resp.Body.Close()
	}

	_, err := client.Get(server.URL)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Get() error = %v, want ErrCircuitOpen", err)
	}
	if tr.CircuitState() != CircuitOpen {
		t.Errorf("CircuitState() = %v, want open", tr.CircuitState())
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Errorf("server hits = %d, want 2", got)
	}
}

func TestResilientTransport_ForwardsTraceID(t *testing.T) {
	got := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("X-Request-ID")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := &http.Client{Transport: NewResilientTransport(nil, RetryConfig{}, CircuitBreakerConfig{})}
	ctx := logging.WithTraceID(context.Background(), "trace-42")
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	resp.Body.Close()

	if id := <-got; id != "trace-42" {
		t.Errorf("X-Request-ID = %q, want trace-42", id)
	}
}

func TestResilientTransport_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := &http.Client{Transport: NewResilientTransport(nil, fastRetry(), DefaultCircuitBreakerConfig())}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)

	if _, err := client.Do(req); err == nil {
		t.Error("Do() should fail when the context expires")
	}
}

func TestHTTPError_Error(t *testing.T) {
	err := &HTTPError{StatusCode: http.StatusNotFound}
	if err.Error() != "Not Found" {
		t.Errorf("Error() = %s, want Not Found", err.Error())
	}
}
