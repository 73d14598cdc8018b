// Package tracing provides OpenTelemetry distributed tracing for Mercator Relay.
//
// Every relayed request gets a server span that continues any W3C trace
// context sent by the client. The span stays open until the request's
// coordinator terminates and records the termination reason, so a trace
// shows whether a stream completed, timed out or lost its client. Upstream
// provider calls run through Transport, which adds a client span and
// forwards traceparent to the provider.
//
// # Usage
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	defer tracer.Shutdown(ctx)
//
//	r, span := tracer.StartRequest(r, "chat.completions", requestID)
//	c := ingress.Begin(w, r, requestID, kind)
//	tracing.EndOnTerminate(span, c)
//
// # Sampling Strategies
//
// Three sampling strategies are supported:
//   - always: Sample all traces (development/debugging)
//   - never: Sample no traces
//   - ratio: Sample a fraction of traces by trace ID
//
// Every strategy respects the sampling decision of an inbound parent.
//
// # Export
//
// Spans are batched and exported over OTLP gRPC to the configured
// endpoint. When tracing is disabled a noop tracer is used.
package tracing
