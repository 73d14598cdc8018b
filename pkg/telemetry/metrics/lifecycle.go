package metrics

import (
	"time"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/diagnostics"

	"github.com/prometheus/client_golang/prometheus"
)

// LifecycleMetrics mirrors request registry events.
//
// Metrics:
//   - mercator_relay_lifecycle_active_requests: requests not yet terminated, by kind
//   - mercator_relay_lifecycle_terminations_total: terminations by kind and reason
//   - mercator_relay_lifecycle_request_lifetime_seconds: creation to termination
//   - mercator_relay_lifecycle_timeouts_total: timer firings by timer name
//   - mercator_relay_lifecycle_races_total: races by kind
//   - mercator_relay_lifecycle_tracked: registry gauges from the last sweep
//   - mercator_relay_lifecycle_rate: detector rates from the last sweep
type LifecycleMetrics struct {
	started      *prometheus.CounterVec
	active       *prometheus.GaugeVec
	terminations *prometheus.CounterVec
	lifetime     *prometheus.HistogramVec
	timeouts     *prometheus.CounterVec
	races        *prometheus.CounterVec
	sweeps       prometheus.Counter
	tracked      *prometheus.GaugeVec
	rates        *prometheus.GaugeVec
}

// NewLifecycleMetrics creates and registers lifecycle metrics with the
// provided registry.
func NewLifecycleMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *LifecycleMetrics {
	subsystem := cfg.Subsystem + "_lifecycle"

	lm := &LifecycleMetrics{
		started: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: subsystem,
				Name:      "requests_started_total",
				Help:      "Total number of requests registered",
			},
			[]string{"kind"},
		),

		active: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: subsystem,
				Name:      "active_requests",
				Help:      "Requests registered but not yet terminated",
			},
			[]string{"kind"},
		),

		terminations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: subsystem,
				Name:      "terminations_total",
				Help:      "Total number of request terminations by reason",
			},
			[]string{"kind", "reason"},
		),

		lifetime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: subsystem,
				Name:      "request_lifetime_seconds",
				Help:      "Time from request creation to termination in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"kind"},
		),

		timeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: subsystem,
				Name:      "timeouts_total",
				Help:      "Total number of lifecycle timer firings",
			},
			[]string{"timer"},
		),

		races: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: subsystem,
				Name:      "races_total",
				Help:      "Total number of termination races observed",
			},
			[]string{"kind"},
		),

		sweeps: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: subsystem,
				Name:      "sweeps_total",
				Help:      "Total number of registry sweeps",
			},
		),

		tracked: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: subsystem,
				Name:      "tracked",
				Help:      "Registry counts observed by the last sweep",
			},
			[]string{"what"},
		),

		rates: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: subsystem,
				Name:      "rate",
				Help:      "Detector rates in percent observed by the last sweep",
			},
			[]string{"detector"},
		),
	}

	registry.MustRegister(
		lm.started,
		lm.active,
		lm.terminations,
		lm.lifetime,
		lm.timeouts,
		lm.races,
		lm.sweeps,
		lm.tracked,
		lm.rates,
	)

	return lm
}

// Started counts a newly registered request.
func (lm *LifecycleMetrics) Started(kind string) {
	lm.started.WithLabelValues(kind).Inc()
	lm.active.WithLabelValues(kind).Inc()
}

// Terminated records a request reaching Terminated.
func (lm *LifecycleMetrics) Terminated(kind, reason string, lifetime time.Duration) {
	lm.active.WithLabelValues(kind).Dec()
	lm.terminations.WithLabelValues(kind, reason).Inc()
	lm.lifetime.WithLabelValues(kind).Observe(lifetime.Seconds())
}

// Timeout counts a timer firing.
func (lm *LifecycleMetrics) Timeout(timer string) {
	lm.timeouts.WithLabelValues(timer).Inc()
}

// Race counts an observed race.
func (lm *LifecycleMetrics) Race(kind string) {
	lm.races.WithLabelValues(kind).Inc()
}

// Sweep publishes a registry snapshot.
func (lm *LifecycleMetrics) Sweep(m diagnostics.Metrics) {
	lm.sweeps.Inc()

	lm.tracked.WithLabelValues("requests").Set(float64(m.TrackedRequests))
	lm.tracked.WithLabelValues("resources").Set(float64(m.TrackedResources))
	lm.tracked.WithLabelValues("hanging").Set(float64(m.HangingRequests))
	lm.tracked.WithLabelValues("leaked").Set(float64(m.LeakedResources))

	lm.rates.WithLabelValues("hanging").Set(m.HangingRate)
	lm.rates.WithLabelValues("leak").Set(m.LeakRate)
	lm.rates.WithLabelValues("race").Set(m.RaceRate)
	lm.rates.WithLabelValues("timeout_conflict").Set(m.TimeoutConflictRate)
}
