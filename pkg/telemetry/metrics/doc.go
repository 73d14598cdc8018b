// Package metrics provides Prometheus metrics collection for Mercator Relay.
//
// # Metrics Categories
//
//   - Request Metrics: request count, duration and tokens per provider and model
//   - Provider Metrics: upstream health, latency and failures
//   - Lifecycle Metrics: active requests, terminations by reason, timer
//     firings, termination races and the gauges published by each registry
//     sweep
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	// Feed registry events into Prometheus.
//	registry := diagnostics.New(diagnostics.Options{Recorder: collector})
//
//	// Record request metrics when a response terminates.
//	collector.RecordRequest("openai", "gpt-4o", "success", time.Second)
//
//	// Expose metrics.
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
// # Cardinality
//
// Model names come from clients. Once 10,000 label sets have been seen,
// new models are recorded as "other".
package metrics
