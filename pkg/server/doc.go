// Package server assembles the relay's HTTP server.
//
// # Routes
//
//   - POST /v1/chat/completions: chat completion, plain or event stream
//   - GET /v1/chat/completions/ws: chat completion streamed over WebSocket
//   - GET /health/providers: per-provider health
//   - GET /health, /ready, /version: probes and build information
//   - GET /metrics: Prometheus exposition, when metrics are enabled
//   - /debug/lifecycle/*: request registry diagnostics, when enabled
//
// # Middleware Chain
//
// Outermost first:
//
//	Recovery -> RequestID -> Logging -> SecurityHeaders -> CORS -> trace context -> mux
//
// The /v1 routes additionally run Auth -> RateLimit before the handler.
// Per-request timeouts are not middleware; every chat request runs under a
// lifecycle coordinator whose watchdogs read the current timeout
// configuration.
//
// # Shutdown
//
// When the Serve context is cancelled the readiness probe starts failing,
// the listener stops accepting, and in-flight requests get the configured
// shutdown timeout to finish. Requests still live afterwards, including
// hijacked WebSocket streams, are terminated with force_cleanup through
// the diagnostics registry so that every coordinator runs its teardown.
//
// # Reload
//
// ApplyConfig swaps lifecycle timeouts, client API keys and model routes
// without a restart. Requests already running keep the timeouts they
// started with.
package server
