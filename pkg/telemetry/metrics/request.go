package metrics

import (
	"time"

	"mercator-hq/relay/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics tracks client-facing chat completion requests.
//
// Metrics:
//   - mercator_relay_requests_total: requests by provider, model, status
//   - mercator_relay_request_duration_seconds: time from arrival to termination
//   - mercator_relay_request_tokens_total: prompt and completion tokens
type RequestMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokensTotal     *prometheus.CounterVec
}

// NewRequestMetrics creates and registers request metrics with the provided registry.
func NewRequestMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "requests_total",
				Help:      "Total number of chat completion requests",
			},
			[]string{"provider", "model", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_duration_seconds",
				Help:      "Duration of chat completion requests in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"provider", "model"},
		),

		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_tokens_total",
				Help:      "Total number of tokens reported by providers",
			},
			[]string{"provider", "model", "type"},
		),
	}

	registry.MustRegister(
		rm.requestsTotal,
		rm.requestDuration,
		rm.tokensTotal,
	)

	return rm
}

// RecordRequest records one finished request.
//
// Parameters:
//   - provider: Provider that served the request, or "none" if routing failed
//   - model: Model name as requested by the client
//   - status: "success", the fault code of a failed producer, or the
//     termination reason (e.g. "client_disconnect", "inactivity_timeout")
//   - duration: Time from arrival until teardown finished
func (rm *RequestMetrics) RecordRequest(provider, model, status string, duration time.Duration) {
	rm.requestsTotal.WithLabelValues(provider, model, status).Inc()
	rm.requestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
}

// RecordTokens records token counts separately for prompt and completion.
//
// Parameters:
//   - provider: Provider name
//   - model: Model name
//   - promptTokens: Tokens in the prompt, as reported by the provider
//   - completionTokens: Tokens generated, including streamed deltas
//
// Zero counts are skipped so requests without usage add nothing.
func (rm *RequestMetrics) RecordTokens(provider, model string, promptTokens, completionTokens int) {
	if promptTokens > 0 {
		rm.tokensTotal.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		rm.tokensTotal.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}
