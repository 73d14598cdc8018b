// Package telemetry groups the relay's observability packages.
//
// # Components
//
//   - logging: slog setup, request-scoped attributes and secret redaction
//   - metrics: Prometheus collectors for requests, providers and the
//     response lifecycle
//   - tracing: OpenTelemetry spans per request, ended when the request's
//     coordinator terminates
//   - health: liveness, readiness and version endpoints
//
// # Usage
//
//	cfg := config.GetConfig()
//	logger, _ := logging.Setup(logging.Config{Level: cfg.Telemetry.Logging.Level})
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	tracer, _ := tracing.New(&cfg.Telemetry.Tracing, version)
//	defer tracer.Shutdown(context.Background())
//
// The metrics collector implements diagnostics.Recorder, so passing it to
// diagnostics.New wires terminations, timeouts, races and sweep results into
// Prometheus without further glue.
package telemetry
