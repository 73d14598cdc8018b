package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/relay/internal/upstreamtest"
)

type fakeObserver struct {
	mu        sync.Mutex
	latencies []string
	errors    []string
	health    []bool
}

func (o *fakeObserver) RecordProviderLatency(provider, model string, latency float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.latencies = append(o.latencies, provider+"/"+model)
}

func (o *fakeObserver) RecordProviderError(provider, errorType string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors = append(o.errors, errorType)
}

func (o *fakeObserver) UpdateProviderHealth(provider string, healthy bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.health = append(o.health, healthy)
}

func newTestHTTPProvider(t *testing.T, config ProviderConfig) *HTTPProvider {
	t.Helper()
	if config.Name == "" {
		config.Name = "test-provider"
	}
	if config.RetryBackoff == 0 {
		config.RetryBackoff = time.Millisecond
	}
	p := NewHTTPProvider(config)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestHTTPProvider_RetryOn5xx(t *testing.T) {
	upstream := upstreamtest.NewServer(t)
	upstream.SetResponse("/test",
		upstreamtest.ErrorResponse(http.StatusInternalServerError, "internal"),
		upstreamtest.ErrorResponse(http.StatusBadGateway, "gateway"),
		upstreamtest.Response{Body: `{"message":"success"}`},
	)
	p := newTestHTTPProvider(t, ProviderConfig{MaxRetries: 3})

	resp, err := p.DoRequest(context.Background(), "POST", upstream.URL()+"/test", []byte(`{"test":true}`), nil)
	if err != nil {
		t.Fatalf("DoRequest() error = %v, want success after retries", err)
	}
	defer resp.Body.Close()

	if got := upstream.RequestCount(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if !p.IsHealthy() {
		t.Error("provider unhealthy after a successful retry")
	}
	h := p.Health()
	if h.TotalRequests != 3 || h.FailedRequests != 2 {
		t.Errorf("TotalRequests = %d, FailedRequests = %d, want 3 and 2", h.TotalRequests, h.FailedRequests)
	}
	if got := upstream.Requests()[0].Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
}

func TestHTTPProvider_NoRetryOn4xx(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{"400 bad request", http.StatusBadRequest, func(err error) bool {
			var e *ProviderError
			return errors.As(err, &e) && e.StatusCode == http.StatusBadRequest
		}},
		{"401 unauthorized", http.StatusUnauthorized, func(err error) bool {
			var e *AuthError
			return errors.As(err, &e)
		}},
		{"403 forbidden", http.StatusForbidden, func(err error) bool {
			var e *AuthError
			return errors.As(err, &e) && e.StatusCode == http.StatusForbidden
		}},
		{"429 rate limit", http.StatusTooManyRequests, func(err error) bool {
			var e *RateLimitError
			return errors.As(err, &e)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := upstreamtest.NewServer(t)
			upstream.SetResponse("/test", upstreamtest.ErrorResponse(tt.status, "client error"))
			p := newTestHTTPProvider(t, ProviderConfig{MaxRetries: 3})

			resp, err := p.DoRequest(context.Background(), "POST", upstream.URL()+"/test", nil, nil)
			if resp != nil {
				resp.Body.Close()
				t.Error("response returned alongside an error status")
			}
			if !tt.check(err) {
				t.Errorf("error = %T %v, unexpected type", err, err)
			}
			if got := upstream.RequestCount(); got != 1 {
				t.Errorf("attempts = %d, want 1", got)
			}
		})
	}
}

func TestHTTPProvider_MaxRetries(t *testing.T) {
	upstream := upstreamtest.NewServer(t)
	upstream.SetResponse("/test", upstreamtest.ErrorResponse(http.StatusServiceUnavailable, "down"))
	p := newTestHTTPProvider(t, ProviderConfig{MaxRetries: 2})

	_, err := p.DoRequest(context.Background(), "GET", upstream.URL()+"/test", nil, nil)

	var provErr *ProviderError
	if !errors.As(err, &provErr) || provErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("error = %v, want ProviderError with status 503", err)
	}
	if got := upstream.RequestCount(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	if got := p.Health().ConsecutiveFailures; got != 1 {
		t.Errorf("ConsecutiveFailures = %d, want 1 per exhausted call", got)
	}
}

func TestHTTPProvider_ExponentialBackoff(t *testing.T) {
	var times []time.Time
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		times = append(times, time.Now())
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	p := newTestHTTPProvider(t, ProviderConfig{MaxRetries: 2, RetryBackoff: 20 * time.Millisecond})
	_, _ = p.DoRequest(context.Background(), "GET", server.URL, nil, nil)

	mu.Lock()
	defer mu.Unlock()
	if len(times) != 3 {
		t.Fatalf("attempts = %d, want 3", len(times))
	}
	if gap := times[1].Sub(times[0]); gap < 20*time.Millisecond {
		t.Errorf("first backoff = %v, want >= 20ms", gap)
	}
	if gap := times[2].Sub(times[1]); gap < 40*time.Millisecond {
		t.Errorf("second backoff = %v, want >= 40ms", gap)
	}
}

func TestHTTPProvider_TimeoutDuringRetry(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	p := newTestHTTPProvider(t, ProviderConfig{MaxRetries: 5, RetryBackoff: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.DoRequest(ctx, "GET", server.URL, nil, nil)
		done <- err
	}()

	deadline := time.Now().Add(5 * time.Second)
	for attempts.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		var timeErr *TimeoutError
		if !errors.As(err, &timeErr) {
			t.Fatalf("error = %T %v, want *TimeoutError", err, err)
		}
		if !errors.Is(err, context.Canceled) {
			t.Error("TimeoutError does not wrap context.Canceled")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("DoRequest did not return after cancellation")
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestHTTPProvider_CancelWhileWaitingForHeaders(t *testing.T) {
	upstream := upstreamtest.NewServer(t)
	upstream.SetResponse("/slow", upstreamtest.Response{Delay: time.Minute})
	p := newTestHTTPProvider(t, ProviderConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.DoRequest(ctx, "GET", upstream.URL()+"/slow", nil, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want wrapped DeadlineExceeded", err)
	}
	if got := p.Health().ConsecutiveFailures; got != 0 {
		t.Errorf("ConsecutiveFailures = %d, want 0 for caller cancellation", got)
	}
}

func TestHTTPProvider_WrapTransport(t *testing.T) {
	upstream := upstreamtest.NewServer(t)
	upstream.SetResponse("/test", upstreamtest.Response{Body: `{}`})

	var wrapped atomic.Int32
	p := newTestHTTPProvider(t, ProviderConfig{
		WrapTransport: func(base http.RoundTripper) http.RoundTripper {
			return roundTripFunc(func(r *http.Request) (*http.Response, error) {
				wrapped.Add(1)
				r.Header.Set("X-Wrapped", "yes")
				return base.RoundTrip(r)
			})
		},
	})

	resp, err := p.DoRequest(context.Background(), "GET", upstream.URL()+"/test", nil, nil)
	if err != nil {
		t.Fatalf("DoRequest() error = %v", err)
	}
	resp.Body.Close()

	if wrapped.Load() != 1 {
		t.Errorf("wrapper calls = %d, want 1", wrapped.Load())
	}
	if got := upstream.Requests()[0].Header.Get("X-Wrapped"); got != "yes" {
		t.Errorf("X-Wrapped = %q, want yes", got)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func TestHTTPProvider_Observer(t *testing.T) {
	obs := &fakeObserver{}
	upstream := upstreamtest.NewServer(t)
	upstream.SetResponse("/test", upstreamtest.ErrorResponse(http.StatusUnauthorized, "bad key"))
	p := newTestHTTPProvider(t, ProviderConfig{Name: "openai", Observer: obs})

	for i := 0; i < 3; i++ {
		_, err := p.DoRequest(context.Background(), "GET", upstream.URL()+"/test", nil, nil)
		p.Observe("gpt-4o", time.Now(), err)
	}
	p.Observe("gpt-4o", time.Now(), nil)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.errors) != 3 || obs.errors[0] != "auth" {
		t.Errorf("errors = %v, want three auth errors", obs.errors)
	}
	if len(obs.latencies) != 1 || obs.latencies[0] != "openai/gpt-4o" {
		t.Errorf("latencies = %v, want one for openai/gpt-4o", obs.latencies)
	}
	if len(obs.health) != 1 || obs.health[0] {
		t.Errorf("health updates = %v, want one transition to unhealthy", obs.health)
	}
	if p.IsHealthy() {
		t.Error("provider healthy after three auth failures")
	}
}

func TestHTTPProvider_DoJSONRequest(t *testing.T) {
	upstream := upstreamtest.NewServer(t)
	upstream.SetResponse("/ok", upstreamtest.Response{Body: map[string]any{"value": 42}})
	upstream.SetResponse("/bad", upstreamtest.Response{Body: "not json"})
	p := newTestHTTPProvider(t, ProviderConfig{})

	var out struct {
		Value int `json:"value"`
	}
	if err := p.DoJSONRequest(context.Background(), "POST", upstream.URL()+"/ok", map[string]string{"q": "x"}, &out, nil); err != nil {
		t.Fatalf("DoJSONRequest() error = %v", err)
	}
	if out.Value != 42 {
		t.Errorf("Value = %d, want 42", out.Value)
	}
	if got := string(upstream.Requests()[0].Body); got != `{"q":"x"}` {
		t.Errorf("request body = %s, want {\"q\":\"x\"}", got)
	}

	err := p.DoJSONRequest(context.Background(), "GET", upstream.URL()+"/bad", nil, &out, nil)
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Errorf("error = %v, want *ParseError", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"", 0},
		{"5", 5 * time.Second},
		{"-1", 0},
		{"soon", 0},
		{time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat), 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.header); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}

	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(future); got <= 0 || got > time.Minute {
		t.Errorf("parseRetryAfter(date) = %v, want within a minute", got)
	}
}
