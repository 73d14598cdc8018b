// Package providers defines the relay's upstream abstraction.
//
// # Overview
//
// A Provider sends a neutral CompletionRequest to one upstream and returns a
// CompletionResponse, or a channel of StreamChunks for streaming requests.
// Adapters (packages anthropic and openai) translate between the neutral
// form and each upstream's wire format. They embed HTTPProvider, which
// supplies:
//
//   - a pooled transport, optionally wrapped (tracing)
//   - retries with exponential backoff for network failures and 5xx replies
//   - typed errors for 401/403, 429 and other 4xx replies
//   - passive health tracking plus an optional periodic health checker
//   - an Observer hook for latency, error and health metrics
//
// # Cancellation
//
// Every call takes a context. The relay cancels it when the owning request
// terminates; a cancelled call returns a *TimeoutError wrapping the context
// error, and stream channels close without an error chunk.
//
// # Errors
//
// Classify maps any error returned by a provider to the *faults.Fault the
// client sees. Upstream bodies are logged, never forwarded.
//
//	f := providers.Classify(err)
//	// f.Status, f.Type(), f.Code, f.Message
//
// # Streaming
//
// EventReader splits an upstream event stream. StreamReader implementations
// turn events into chunks and Pump forwards them onto a channel:
//
//	chunks := providers.Pump(ctx, reader, 100)
//	for chunk := range chunks {
//	    if chunk.Error != nil {
//	        return chunk.Error
//	    }
//	    fmt.Print(chunk.Delta)
//	}
package providers
