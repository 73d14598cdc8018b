package logging

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// ProviderKey is the context key for provider names.
	ProviderKey contextKey = "provider"

	// ModelKey is the context key for model names.
	ModelKey contextKey = "model"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestIDFrom retrieves the request ID from the context.
func RequestIDFrom(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithProvider adds a provider name to the context.
func WithProvider(ctx context.Context, provider string) context.Context {
	return context.WithValue(ctx, ProviderKey, provider)
}

// ProviderFrom retrieves the provider name from the context.
func ProviderFrom(ctx context.Context) string {
	if provider, ok := ctx.Value(ProviderKey).(string); ok {
		return provider
	}
	return ""
}

// WithModel adds a model name to the context.
func WithModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, ModelKey, model)
}

// ModelFrom retrieves the model name from the context.
func ModelFrom(ctx context.Context) string {
	if model, ok := ctx.Value(ModelKey).(string); ok {
		return model
	}
	return ""
}

// contextAttrs extracts the known fields from ctx.
func contextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if v := RequestIDFrom(ctx); v != "" {
		attrs = append(attrs, slog.String(string(RequestIDKey), v))
	}
	if v := ProviderFrom(ctx); v != "" {
		attrs = append(attrs, slog.String(string(ProviderKey), v))
	}
	if v := ModelFrom(ctx); v != "" {
		attrs = append(attrs, slog.String(string(ModelKey), v))
	}
	return attrs
}

// ContextHandler adds request metadata from the record's context to every
// record. Attributes already set on the logger are not duplicated.
type ContextHandler struct {
	next slog.Handler
	set  map[string]bool
}

// NewContextHandler wraps next.
func NewContextHandler(next slog.Handler) *ContextHandler {
	return &ContextHandler{next: next}
}

// Enabled reports whether next handles level.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle adds the context fields and passes r on.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		for _, a := range contextAttrs(ctx) {
			if !h.set[a.Key] {
				r.AddAttrs(a)
			}
		}
	}
	return h.next.Handle(ctx, r)
}

// WithAttrs remembers which context keys the logger already carries.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	set := make(map[string]bool, len(h.set)+len(attrs))
	for k := range h.set {
		set[k] = true
	}
	for _, a := range attrs {
		switch contextKey(a.Key) {
		case RequestIDKey, ProviderKey, ModelKey:
			set[a.Key] = true
		}
	}
	return &ContextHandler{next: h.next.WithAttrs(attrs), set: set}
}

// WithGroup returns a handler that nests subsequent attributes under name.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{next: h.next.WithGroup(name), set: h.set}
}
