package metrics

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/diagnostics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Collector owns every Prometheus metric exported by the relay. It also
// implements diagnostics.Recorder, so the request registry reports
// lifecycle events straight into it.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry
	logger   *slog.Logger

	requestMetrics   *RequestMetrics
	providerMetrics  *ProviderMetrics
	lifecycleMetrics *LifecycleMetrics

	cardinalityLimiter *CardinalityLimiter
}

var _ diagnostics.Recorder = (*Collector)(nil)

// NewCollector creates a new metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a fresh registry carrying the
// Go runtime and process collectors is created.
//
// Example:
//
//	cfg := &config.MetricsConfig{
//		Enabled:    true,
//		Namespace:  "mercator",
//		Subsystem:  "relay",
//	}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		// Streaming completions run long; cover 100ms to 10 minutes.
		cfg.RequestDurationBuckets = []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600}
	}

	c := &Collector{
		config:             cfg,
		registry:           registry,
		logger:             slog.Default().With("component", "metrics"),
		cardinalityLimiter: NewCardinalityLimiter(10000),
	}

	c.requestMetrics = NewRequestMetrics(cfg, registry)
	c.providerMetrics = NewProviderMetrics(cfg, registry)
	c.lifecycleMetrics = NewLifecycleMetrics(cfg, registry)

	return c
}

// RecordRequest records a completed client request.
//
// Parameters:
//   - provider: upstream provider name (e.g., "openai", "anthropic")
//   - model: requested model
//   - status: fault code, or "success"
//   - duration: time from arrival to termination
func (c *Collector) RecordRequest(provider, model, status string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}

	labelSet := fmt.Sprintf("request:%s:%s:%s", provider, model, status)
	if !c.cardinalityLimiter.Allow(labelSet) {
		model = "other"
	}

	c.requestMetrics.RecordRequest(provider, model, status, duration)
}

// RecordTokens records prompt and completion token usage.
func (c *Collector) RecordTokens(provider, model string, promptTokens, completionTokens int) {
	if !c.config.Enabled {
		return
	}
	if !c.cardinalityLimiter.Allow(fmt.Sprintf("tokens:%s:%s", provider, model)) {
		model = "other"
	}
	c.requestMetrics.RecordTokens(provider, model, promptTokens, completionTokens)
}

// RecordProviderLatency records the latency of one upstream call, in seconds.
func (c *Collector) RecordProviderLatency(provider, model string, latency float64) {
	if !c.config.Enabled {
		return
	}

	c.providerMetrics.RecordRequest(provider, model)
	c.providerMetrics.RecordLatency(provider, model, latency)
}

// UpdateProviderHealth updates the health gauge of a provider.
func (c *Collector) UpdateProviderHealth(provider string, healthy bool) {
	if !c.config.Enabled {
		return
	}

	c.providerMetrics.UpdateHealth(provider, healthy)
}

// RecordProviderError records an upstream failure by fault code.
func (c *Collector) RecordProviderError(provider, errorType string) {
	if !c.config.Enabled {
		return
	}

	c.providerMetrics.RecordError(provider, errorType)
}

// RequestStarted implements diagnostics.Recorder.
func (c *Collector) RequestStarted(kind string) {
	if !c.config.Enabled {
		return
	}
	c.lifecycleMetrics.Started(kind)
}

// RequestTerminated implements diagnostics.Recorder.
func (c *Collector) RequestTerminated(kind, reason string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.lifecycleMetrics.Terminated(kind, reason, duration)
}

// TimeoutFired implements diagnostics.Recorder.
func (c *Collector) TimeoutFired(timer string) {
	if !c.config.Enabled {
		return
	}
	c.lifecycleMetrics.Timeout(timer)
}

// RaceObserved implements diagnostics.Recorder.
func (c *Collector) RaceObserved(kind string) {
	if !c.config.Enabled {
		return
	}
	c.lifecycleMetrics.Race(kind)
}

// SweepCompleted implements diagnostics.Recorder.
func (c *Collector) SweepCompleted(m diagnostics.Metrics) {
	if !c.config.Enabled {
		return
	}
	c.lifecycleMetrics.Sweep(m)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label combinations per metric.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether labelSet is already known or still fits under the
// limit.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
