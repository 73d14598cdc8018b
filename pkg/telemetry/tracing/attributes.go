package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Custom attribute keys use the "mercator.*" namespace.
const (
	AttrProvider = "mercator.provider"
	AttrModel    = "mercator.model"

	AttrRequestID = "mercator.request_id"
	AttrKind      = "mercator.request.kind"
	AttrStream    = "mercator.request.stream"
	AttrUser      = "mercator.user"

	AttrTokensPrompt     = "mercator.tokens.prompt"
	AttrTokensCompletion = "mercator.tokens.completion"
	AttrTokensTotal      = "mercator.tokens.total"

	AttrReason        = "mercator.lifecycle.reason"
	AttrTimeoutEvents = "mercator.lifecycle.timeout_events"
	AttrRaceEvents    = "mercator.lifecycle.race_events"

	AttrErrorKind = "mercator.error.kind"
	AttrErrorCode = "mercator.error.code"
)

// SetProviderAttributes sets provider-related attributes on a span.
func SetProviderAttributes(span trace.Span, provider, model string) {
	span.SetAttributes(
		attribute.String(AttrProvider, provider),
		attribute.String(AttrModel, model),
	)
}

// SetRequestAttributes sets request identity on a span. Empty values are
// skipped.
func SetRequestAttributes(span trace.Span, requestID, user string, stream bool) {
	attrs := []attribute.KeyValue{attribute.Bool(AttrStream, stream)}
	if requestID != "" {
		attrs = append(attrs, attribute.String(AttrRequestID, requestID))
	}
	if user != "" {
		attrs = append(attrs, attribute.String(AttrUser, user))
	}
	span.SetAttributes(attrs...)
}

// SetTokenAttributes records token usage.
func SetTokenAttributes(span trace.Span, promptTokens, completionTokens int) {
	span.SetAttributes(
		attribute.Int(AttrTokensPrompt, promptTokens),
		attribute.Int(AttrTokensCompletion, completionTokens),
		attribute.Int(AttrTokensTotal, promptTokens+completionTokens),
	)
}

// SetFaultAttributes records the kind and code of a client-visible fault.
func SetFaultAttributes(span trace.Span, kind, code string) {
	span.SetAttributes(
		attribute.String(AttrErrorKind, kind),
		attribute.String(AttrErrorCode, code),
	)
}
