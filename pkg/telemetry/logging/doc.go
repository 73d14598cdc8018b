// Package logging configures log/slog for the relay.
//
// New builds a JSON or text logger whose handler copies request metadata
// from the context into every record, so components only need to log with
// the *Context variants:
//
//	logger, _ := logging.Setup(logging.Config{Level: "info", Format: "json"})
//	ctx = logging.WithRequestID(ctx, id)
//	slog.InfoContext(ctx, "request started")  // carries request_id
//
// With RedactSecrets enabled, values under credential-looking keys and any
// string matching an API key or bearer token are masked before output.
package logging
