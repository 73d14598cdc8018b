// Package proxy holds the request and response plumbing shared by the
// relay's HTTP handlers and middleware.
//
// The relay accepts OpenAI-compatible chat completion requests and forwards
// them to a configured provider. This package owns the translation at both
// edges; the lifecycle of each response is owned by pkg/lifecycle.
//
// # Subpackages
//
//   - handlers: chat completions over HTTP and WebSocket, provider health
//   - middleware: request IDs, logging, recovery, CORS, security headers
//     and rate limiting
//   - types: the OpenAI-compatible wire bodies
//
// # Requests
//
// ParseChatCompletionRequest reads a bounded body and validates it. Every
// failure is a *faults.Fault, so handlers can answer it before a
// coordinator exists:
//
//	req, err := proxy.ParseChatCompletionRequest(r, cfg.Proxy.MaxBodyBytes)
//	if err != nil {
//	    proxy.WriteError(w, err, requestID)
//	    return
//	}
//	upstream := proxy.ToProviderRequest(req, requestID)
//
// ToProviderRequest flattens content-part arrays to their text parts and
// carries the request ID as relay-only metadata.
//
// # Responses
//
// FormatChatCompletionResponse and FormatStreamChunk turn provider output
// back into OpenAI shapes. The model field always echoes the model the
// client asked for. Stream chunks share one response ID.
//
// # Errors
//
// HandleError and WriteError classify any error with providers.Classify.
// Provider bodies and internal causes are logged, never returned to the
// client.
//
// # Metadata
//
// RequestMetadata collects the request ID, model, user and a redacted API
// key for logs and for the diagnostics registry.
package proxy
