// Package handlers provides the relay's HTTP endpoints.
//
//   - ChatHandler: POST /v1/chat/completions, plain or Server-Sent Events
//   - WebSocketHandler: GET /v1/chat/completions/ws, streaming over a WebSocket
//   - ProviderHealthHandler: GET /health/providers
//
// # Request Flow
//
// The chat handlers share one path:
//
//  1. Parse and validate the body. Failures are answered directly, before
//     any coordinator exists.
//  2. Begin a lifecycle coordinator for the request. From here on every
//     exit, including timeouts and client disconnects, goes through the
//     coordinator's single termination path.
//  3. Inside the emitter's error boundary, route the model to a provider,
//     track the upstream call and its cancel function as resources, and
//     relay the response.
//  4. Wait for termination, then record metrics.
//
// Errors before the first streamed byte produce one structured error
// response. Errors after it produce an in-band error event followed by
// "data: [DONE]".
package handlers
