package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/relay/internal/providertest"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/diagnostics"
	"mercator-hq/relay/pkg/faults"
	"mercator-hq/relay/pkg/providerfactory"
	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/telemetry/metrics"
)

const chatBody = `{"model":"fake-model","messages":[{"role":"user","content":"hi"}]}`

type fixture struct {
	cfg      *config.Config
	fake     *providertest.Provider
	registry *diagnostics.Registry
	server   *Server
}

func newFixture(t *testing.T, modify func(*config.Config)) *fixture {
	t.Helper()

	cfg := config.Default()
	cfg.Routing.DefaultProvider = "fake"
	if modify != nil {
		modify(cfg)
	}

	fake := providertest.New("fake")
	fake.Response = &providers.CompletionResponse{
		ID:           "resp-1",
		Model:        "fake-model",
		Content:      "hello",
		FinishReason: providers.FinishReasonStop,
		Usage:        providers.TokenUsage{PromptTokens: 3, CompletionTokens: 1, TotalTokens: 4},
	}

	manager := providerfactory.NewManager(providerfactory.Options{DisableHealthChecks: true})
	manager.Register(fake)
	if err := manager.SetRoutes(cfg.Routing); err != nil {
		t.Fatalf("SetRoutes() error = %v", err)
	}
	t.Cleanup(func() { manager.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := diagnostics.New(diagnostics.Options{Logger: logger})

	s, err := New(Options{
		Config:    cfg,
		Manager:   manager,
		Registry:  registry,
		Collector: metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry()),
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &fixture{cfg: cfg, fake: fake, registry: registry, server: s}
}

func (f *fixture) do(t *testing.T, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("New() without config succeeded")
	}
	if _, err := New(Options{Config: config.Default()}); err == nil {
		t.Error("New() without manager succeeded")
	}

	cfg := config.Default()
	cfg.Security.TLS.Enabled = true
	manager := providerfactory.NewManager(providerfactory.Options{DisableHealthChecks: true})
	if _, err := New(Options{Config: cfg, Manager: manager}); err == nil {
		t.Error("New() with TLS and no certificate succeeded")
	}
}

func TestServer_ChatCompletion(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodPost, ChatCompletionsPath, chatBody, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Object  string `json:"object"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Content != "hello" {
		t.Errorf("choices = %+v, want one with content hello", resp.Choices)
	}

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}

	if got := f.registry.Metrics().TotalRequests; got != 1 {
		t.Errorf("TotalRequests = %d, want 1", got)
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	f := newFixture(t, nil)
	if w := f.do(t, http.MethodGet, ChatCompletionsPath, "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET %s status = %d, want 405", ChatCompletionsPath, w.Code)
	}
}

func TestServer_Authentication(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Security.Authentication.Enabled = true
		cfg.Security.Authentication.Keys = []config.APIKeyConfig{{Key: "sk-good", UserID: "team"}}
	})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		auth   string
		want   int
	}{
		{name: "missing key", method: http.MethodPost, path: ChatCompletionsPath, body: chatBody, want: http.StatusUnauthorized},
		{name: "wrong key", method: http.MethodPost, path: ChatCompletionsPath, body: chatBody, auth: "Bearer sk-bad", want: http.StatusUnauthorized},
		{name: "good key", method: http.MethodPost, path: ChatCompletionsPath, body: chatBody, auth: "Bearer sk-good", want: http.StatusOK},
		{name: "liveness unauthenticated", method: http.MethodGet, path: "/health", want: http.StatusOK},
		{name: "provider health unauthenticated", method: http.MethodGet, path: ProviderHealthPath, want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.auth != "" {
				h.Set("Authorization", tt.auth)
			}
			if w := f.do(t, tt.method, tt.path, tt.body, h); w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}

	if got := len(f.fake.Requests()); got != 1 {
		t.Errorf("upstream requests = %d, want 1", got)
	}
}

func TestServer_RateLimit(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Limits.RateLimit.Enabled = true
		cfg.Limits.RateLimit.Requests = 2
		cfg.Limits.RateLimit.Window = time.Hour
		cfg.Limits.RateLimit.KeyBy = "ip"
	})

	for i := 0; i < 2; i++ {
		if w := f.do(t, http.MethodPost, ChatCompletionsPath, chatBody, nil); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, w.Code)
		}
	}
	w := f.do(t, http.MethodPost, ChatCompletionsPath, chatBody, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After missing")
	}
	var body faults.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != faults.CodeRateLimitExceeded {
		t.Errorf("code = %q, want %q", body.Error.Code, faults.CodeRateLimitExceeded)
	}

	// Probes are never limited.
	if w := f.do(t, http.MethodGet, "/health", "", nil); w.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200", w.Code)
	}
}

func TestServer_ObservabilityRoutes(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodPost, ChatCompletionsPath, chatBody, nil)

	tests := []struct {
		path     string
		want     int
		contains string
	}{
		{path: "/health", want: http.StatusOK},
		{path: "/ready", want: http.StatusOK},
		{path: "/version", want: http.StatusOK},
		{path: "/metrics", want: http.StatusOK, contains: "requests_total"},
		{path: "/debug/lifecycle/metrics", want: http.StatusOK, contains: "total_requests"},
		{path: "/debug/lifecycle/requests", want: http.StatusOK},
		{path: ProviderHealthPath, want: http.StatusOK, contains: "fake"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := f.do(t, http.MethodGet, tt.path, "", nil)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
			if tt.contains != "" && !strings.Contains(w.Body.String(), tt.contains) {
				t.Errorf("body does not contain %q: %s", tt.contains, w.Body.String())
			}
		})
	}
}

func TestServer_DiagnosticsDisabled(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Diagnostics.Enabled = false
		cfg.Telemetry.Metrics.Enabled = false
	})
	for _, path := range []string{"/debug/lifecycle/metrics", "/metrics"} {
		if w := f.do(t, http.MethodGet, path, "", nil); w.Code != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", path, w.Code)
		}
	}
}

func TestServer_ApplyConfig(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Security.Authentication.Enabled = true
		cfg.Security.Authentication.Keys = []config.APIKeyConfig{{Key: "sk-old"}}
	})

	next := *f.cfg
	next.Security.Authentication.Keys = []config.APIKeyConfig{{Key: "sk-new"}}
	next.Timeouts.Base = 42 * time.Second
	f.server.ApplyConfig(&next)

	h := http.Header{"Authorization": {"Bearer sk-old"}}
	if w := f.do(t, http.MethodPost, ChatCompletionsPath, chatBody, h); w.Code != http.StatusUnauthorized {
		t.Errorf("old key status = %d, want 401", w.Code)
	}
	h.Set("Authorization", "Bearer sk-new")
	if w := f.do(t, http.MethodPost, ChatCompletionsPath, chatBody, h); w.Code != http.StatusOK {
		t.Errorf("new key status = %d, want 200", w.Code)
	}
	if got := f.server.timeouts.Load().Base; got != 42*time.Second {
		t.Errorf("base timeout = %v, want 42s", got)
	}
	if f.server.Config() != &next {
		t.Error("Config() does not return the applied configuration")
	}
}

func TestOriginPatterns(t *testing.T) {
	tests := []struct {
		name string
		cors config.CORSConfig
		want []string
	}{
		{name: "disabled", cors: config.CORSConfig{AllowedOrigins: []string{"*"}}},
		{name: "wildcard", cors: config.CORSConfig{Enabled: true, AllowedOrigins: []string{"https://a.example", "*"}}, want: []string{"*"}},
		{name: "hosts", cors: config.CORSConfig{Enabled: true, AllowedOrigins: []string{"https://a.example", "b.example:8443"}}, want: []string{"a.example", "b.example:8443"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := originPatterns(tt.cors)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("originPatterns() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestServer_ServeAndShutdown(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Proxy.ShutdownTimeout = 100 * time.Millisecond
	})
	f.fake.Chunks = providertest.TextChunks("fake-model", "partial")[:1]
	f.fake.Hold = true

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- f.server.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String()
	body := `{"model":"fake-model","stream":true,"messages":[{"role":"user","content":"hi"}]}`
	resp, err := http.Post(url+ChatCompletionsPath, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	// Wait for the first frame so the stream is known to be live.
	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil || !strings.HasPrefix(line, "data: ") {
		t.Fatalf("first line = %q, %v", line, err)
	}

	cancel()

	select {
	case err := <-served:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Serve() error = %v, want shutdown deadline exceeded", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after shutdown")
	}

	select {
	case <-f.fake.Cancelled():
	case <-time.After(time.Second):
		t.Error("upstream call was not cancelled by forced cleanup")
	}
	if f.registry.Len() != 0 {
		t.Errorf("registry holds %d requests after shutdown, want 0", f.registry.Len())
	}
	if f.server.Health().CheckReadiness(context.Background()).Ready() {
		t.Error("readiness reports ready after shutdown")
	}
}
