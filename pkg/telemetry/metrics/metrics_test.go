package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	testclock "k8s.io/utils/clock/testing"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/diagnostics"
	"mercator-hq/relay/pkg/lifecycle"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testConfig() *config.MetricsConfig {
	return &config.MetricsConfig{
		Enabled:                true,
		Namespace:              "test",
		Subsystem:              "metrics",
		RequestDurationBuckets: []float64{0.1, 0.5, 1.0, 5.0},
	}
}

func TestCollector_NewCollector(t *testing.T) {
	cfg := testConfig()
	registry := prometheus.NewRegistry()

	collector := NewCollector(cfg, registry)

	if collector.config != cfg {
		t.Error("Collector config not set correctly")
	}
	if collector.Registry() != registry {
		t.Error("Collector registry not set correctly")
	}
}

func TestCollector_Defaults(t *testing.T) {
	cfg := &config.MetricsConfig{Enabled: true}
	collector := NewCollector(cfg, nil)

	if cfg.Namespace != "mercator" || cfg.Subsystem != "relay" {
		t.Errorf("namespace/subsystem = %s/%s, want mercator/relay", cfg.Namespace, cfg.Subsystem)
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		t.Error("RequestDurationBuckets not defaulted")
	}

	// The default registry carries the runtime collectors.
	families, err := collector.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "go_goroutines" {
			found = true
		}
	}
	if !found {
		t.Error("go_goroutines not registered on default registry")
	}
}

func TestCollector_RecordRequest(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	tests := []struct {
		name     string
		provider string
		model    string
		status   string
		duration time.Duration
	}{
		{"success", "openai", "gpt-4o", "success", 1200 * time.Millisecond},
		{"upstream failure", "anthropic", "claude-3-5-sonnet", "upstream_error", 500 * time.Millisecond},
		{"timeout", "openai", "gpt-4o", "timeout", 60 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector.RecordRequest(tt.provider, tt.model, tt.status, tt.duration)

			count := testutil.ToFloat64(collector.requestMetrics.requestsTotal.WithLabelValues(tt.provider, tt.model, tt.status))
			if count != 1 {
				t.Errorf("requests_total = %v, want 1", count)
			}
		})
	}
}

func TestCollector_RecordTokens(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.RecordTokens("openai", "gpt-4o", 100, 50)
	collector.RecordTokens("openai", "gpt-4o", 0, 25)

	tests := []struct {
		typ  string
		want float64
	}{
		{"prompt", 100},
		{"completion", 75},
	}
	for _, tt := range tests {
		got := testutil.ToFloat64(collector.requestMetrics.tokensTotal.WithLabelValues("openai", "gpt-4o", tt.typ))
		if got != tt.want {
			t.Errorf("tokens{type=%s} = %v, want %v", tt.typ, got, tt.want)
		}
	}
}

func TestCollector_ProviderMetrics(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	t.Run("update health", func(t *testing.T) {
		collector.UpdateProviderHealth("openai", true)
		if got := testutil.ToFloat64(collector.providerMetrics.health.WithLabelValues("openai")); got != 1.0 {
			t.Errorf("health = %v, want 1", got)
		}

		collector.UpdateProviderHealth("openai", false)
		if got := testutil.ToFloat64(collector.providerMetrics.health.WithLabelValues("openai")); got != 0.0 {
			t.Errorf("health = %v, want 0", got)
		}
	})

	t.Run("record latency", func(t *testing.T) {
		collector.RecordProviderLatency("openai", "gpt-4o", 0.95)
		if got := testutil.ToFloat64(collector.providerMetrics.requests.WithLabelValues("openai", "gpt-4o")); got != 1 {
			t.Errorf("provider_requests_total = %v, want 1", got)
		}
		if got := testutil.CollectAndCount(collector.providerMetrics.latency); got != 1 {
			t.Errorf("latency series = %d, want 1", got)
		}
	})

	t.Run("record error", func(t *testing.T) {
		collector.RecordProviderError("openai", "rate_limited")
		if got := testutil.ToFloat64(collector.providerMetrics.errors.WithLabelValues("openai", "rate_limited")); got != 1 {
			t.Errorf("provider_errors_total = %v, want 1", got)
		}
	})
}

func TestCollector_LifecycleRecorder(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())
	clk := testclock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	reg := diagnostics.New(diagnostics.Options{Clock: clk, Recorder: collector})

	for _, id := range []string{"a", "b"} {
		reg.Register(lifecycle.NewRequestContext(id, lifecycle.KindIncremental, clk), nil)
	}
	lm := collector.lifecycleMetrics

	if got := testutil.ToFloat64(lm.active.WithLabelValues("incremental")); got != 2 {
		t.Errorf("active = %v, want 2", got)
	}

	clk.Step(3 * time.Second)
	reg.TrackTimeoutEvent("a", lifecycle.TimerInactivity)
	reg.Complete("a", lifecycle.ReasonInactivityTimeout, "")
	reg.TrackRaceEvent("a", "concurrent_terminate", "")

	if got := testutil.ToFloat64(lm.active.WithLabelValues("incremental")); got != 1 {
		t.Errorf("active after completion = %v, want 1", got)
	}
	if got := testutil.ToFloat64(lm.terminations.WithLabelValues("incremental", "inactivity_timeout")); got != 1 {
		t.Errorf("terminations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(lm.timeouts.WithLabelValues("inactivity")); got != 1 {
		t.Errorf("timeouts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(lm.races.WithLabelValues("concurrent_terminate")); got != 1 {
		t.Errorf("races = %v, want 1", got)
	}
	if got := testutil.ToFloat64(lm.started.WithLabelValues("incremental")); got != 2 {
		t.Errorf("started = %v, want 2", got)
	}
}

func TestCollector_SweepCompleted(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.SweepCompleted(diagnostics.Metrics{
		TrackedRequests:  4,
		TrackedResources: 2,
		HangingRequests:  1,
		LeakedResources:  1,
		HangingRate:      25,
		LeakRate:         12.5,
	})

	lm := collector.lifecycleMetrics
	tests := []struct {
		name  string
		gauge prometheus.Gauge
		want  float64
	}{
		{"tracked requests", lm.tracked.WithLabelValues("requests"), 4},
		{"tracked resources", lm.tracked.WithLabelValues("resources"), 2},
		{"hanging", lm.tracked.WithLabelValues("hanging"), 1},
		{"leaked", lm.tracked.WithLabelValues("leaked"), 1},
		{"hanging rate", lm.rates.WithLabelValues("hanging"), 25},
		{"leak rate", lm.rates.WithLabelValues("leak"), 12.5},
		{"race rate", lm.rates.WithLabelValues("race"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.gauge); got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
	if got := testutil.ToFloat64(lm.sweeps); got != 1 {
		t.Errorf("sweeps_total = %v, want 1", got)
	}
}

func TestCollector_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	collector := NewCollector(cfg, prometheus.NewRegistry())

	collector.RecordRequest("openai", "gpt-4o", "success", time.Second)
	collector.UpdateProviderHealth("openai", true)
	collector.RequestStarted("plain")
	collector.SweepCompleted(diagnostics.Metrics{TrackedRequests: 3})

	if got := testutil.ToFloat64(collector.requestMetrics.requestsTotal.WithLabelValues("openai", "gpt-4o", "success")); got != 0 {
		t.Errorf("requests_total = %v, want 0 when disabled", got)
	}
	if got := testutil.ToFloat64(collector.lifecycleMetrics.active.WithLabelValues("plain")); got != 0 {
		t.Errorf("active = %v, want 0 when disabled", got)
	}
}

func TestCardinalityLimiter(t *testing.T) {
	limiter := NewCardinalityLimiter(3)

	for _, label := range []string{"label1", "label2", "label3"} {
		if !limiter.Allow(label) {
			t.Errorf("Allow(%q) = false, want true", label)
		}
	}
	if limiter.Allow("label4") {
		t.Error("Allow(label4) = true, want false over the limit")
	}
	if !limiter.Allow("label1") {
		t.Error("Allow(label1) = false, want true for a known label")
	}
	if got := limiter.Count(); got != 3 {
		t.Errorf("Count() = %d, want 3", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())
	collector.RecordRequest("openai", "gpt-4o", "success", time.Second)
	collector.TimeoutFired("base")

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`test_metrics_requests_total{model="gpt-4o",provider="openai",status="success"} 1`,
		`test_metrics_lifecycle_timeouts_total{timer="base"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				collector.RecordRequest("openai", "gpt-4o", "success", time.Second)
				collector.RequestStarted("plain")
				collector.RequestTerminated("plain", "completed", time.Second)
			}
		}()
	}
	wg.Wait()

	if got := testutil.ToFloat64(collector.requestMetrics.requestsTotal.WithLabelValues("openai", "gpt-4o", "success")); got != 1000 {
		t.Errorf("requests_total = %v, want 1000", got)
	}
	if got := testutil.ToFloat64(collector.lifecycleMetrics.active.WithLabelValues("plain")); got != 0 {
		t.Errorf("active = %v, want 0", got)
	}
}
