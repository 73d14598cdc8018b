package proxy

import (
	"net/http"
	"strconv"

	"mercator-hq/relay/pkg/lifecycle"
	"mercator-hq/relay/pkg/proxy/types"
	"mercator-hq/relay/pkg/telemetry/logging"
)

// RequestMetadata is what the relay records about an inbound request for
// logs, traces and diagnostics.
type RequestMetadata struct {
	RequestID string
	Model     string
	Stream    bool
	Messages  int
	Tools     int
	MaxTokens int

	// UserID is the request's user field, or the X-User-ID header.
	UserID string

	// APIKey is redacted.
	APIKey string

	UserAgent  string
	RemoteAddr string
}

// ExtractRequestMetadata collects metadata from an HTTP request and its
// parsed body.
func ExtractRequestMetadata(r *http.Request, req *types.ChatCompletionRequest, requestID string) *RequestMetadata {
	m := &RequestMetadata{
		RequestID:  requestID,
		Model:      req.Model,
		Stream:     req.Stream,
		Messages:   len(req.Messages),
		Tools:      len(req.Tools),
		UserID:     req.User,
		APIKey:     logging.RedactAPIKey(ExtractAPIKey(r)),
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
	}
	if m.UserID == "" {
		m.UserID = ExtractUserID(r)
	}
	if req.MaxTokens != nil {
		m.MaxTokens = *req.MaxTokens
	}
	return m
}

// Kind is the response shape the request asks for.
func (m *RequestMetadata) Kind() lifecycle.Kind {
	if m.Stream {
		return lifecycle.KindIncremental
	}
	return lifecycle.KindPlain
}

// LogAttrs returns the metadata as slog key-value pairs.
func (m *RequestMetadata) LogAttrs() []any {
	attrs := []any{
		"request_id", m.RequestID,
		"model", m.Model,
		"stream", m.Stream,
		"messages", m.Messages,
		"remote_addr", m.RemoteAddr,
	}
	if m.UserID != "" {
		attrs = append(attrs, "user_id", m.UserID)
	}
	if m.APIKey != "" {
		attrs = append(attrs, "api_key", m.APIKey)
	}
	return attrs
}

// Record copies the metadata onto a request context so diagnostics can
// show it.
func (m *RequestMetadata) Record(rc *lifecycle.RequestContext) {
	rc.SetMetadata("model", m.Model)
	rc.SetMetadata("stream", strconv.FormatBool(m.Stream))
	rc.SetMetadata("messages", strconv.Itoa(m.Messages))
	if m.UserID != "" {
		rc.SetMetadata("user_id", m.UserID)
	}
	if m.UserAgent != "" {
		rc.SetMetadata("user_agent", m.UserAgent)
	}
}
