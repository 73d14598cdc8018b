package metrics

import (
	"mercator-hq/relay/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// ProviderMetrics tracks upstream calls made by the provider adapters.
//
// Metrics:
//   - mercator_relay_provider_health: 1 when the last probe succeeded
//   - mercator_relay_provider_latency_seconds: time to first upstream byte
//   - mercator_relay_provider_errors_total: upstream failures by fault code
//   - mercator_relay_provider_requests_total: upstream calls
type ProviderMetrics struct {
	health   *prometheus.GaugeVec
	latency  *prometheus.HistogramVec
	errors   *prometheus.CounterVec
	requests *prometheus.CounterVec
}

// NewProviderMetrics creates and registers provider metrics with the provided registry.
func NewProviderMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ProviderMetrics {
	pm := &ProviderMetrics{
		health: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "provider_health",
				Help:      "Provider health status (1=healthy, 0=unhealthy)",
			},
			[]string{"provider"},
		),

		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "provider_latency_seconds",
				Help:      "Time to the first upstream response byte in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"provider", "model"},
		),

		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "provider_errors_total",
				Help:      "Total number of upstream failures by fault code",
			},
			[]string{"provider", "error_type"},
		),

		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "provider_requests_total",
				Help:      "Total number of requests to each provider",
			},
			[]string{"provider", "model"},
		),
	}

	registry.MustRegister(
		pm.health,
		pm.latency,
		pm.errors,
		pm.requests,
	)

	return pm
}

// UpdateHealth sets the health gauge of a provider.
//
// Parameters:
//   - provider: Provider name (e.g., "openai", "anthropic")
//   - healthy: Result of the most recent health probe
//
// The gauge is 1 when healthy and 0 otherwise.
func (pm *ProviderMetrics) UpdateHealth(provider string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	pm.health.WithLabelValues(provider).Set(value)
}

// RecordLatency observes one upstream latency in seconds.
//
// Parameters:
//   - provider: Provider name
//   - model: Model name sent upstream
//   - latencySeconds: Time until the first upstream byte arrived
func (pm *ProviderMetrics) RecordLatency(provider, model string, latencySeconds float64) {
	pm.latency.WithLabelValues(provider, model).Observe(latencySeconds)
}

// RecordError counts an upstream failure.
//
// Parameters:
//   - provider: Provider name
//   - errorType: Fault code of the failure
//
// Common error types:
//   - "provider_error": Provider returned an error status
//   - "rate_limit_exceeded": Provider rate limit hit
//   - "provider_unavailable": Provider overloaded or unreachable
func (pm *ProviderMetrics) RecordError(provider, errorType string) {
	pm.errors.WithLabelValues(provider, errorType).Inc()
}

// RecordRequest counts an upstream call.
//
// Parameters:
//   - provider: Provider name
//   - model: Model name sent upstream
func (pm *ProviderMetrics) RecordRequest(provider, model string) {
	pm.requests.WithLabelValues(provider, model).Inc()
}
