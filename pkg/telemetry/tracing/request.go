package tracing

import (
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/relay/pkg/lifecycle"
)

// StartRequest extracts any inbound trace context and starts the server
// span for a relayed request. The returned request carries the span so
// coordinators created from it inherit the trace.
func (t *Tracer) StartRequest(r *http.Request, name, requestID string) (*http.Request, trace.Span) {
	ctx := Extract(r.Context(), r.Header)
	ctx, span := t.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
			attribute.String(AttrRequestID, requestID),
		),
	)
	return r.WithContext(ctx), span
}

// EndOnTerminate ends span when c terminates and records how it ended.
// If c is already terminating the span is ended immediately.
func EndOnTerminate(span trace.Span, c *lifecycle.Coordinator) {
	end := func() {
		rc := c.Request()
		reason := c.Reason()
		span.SetAttributes(
			attribute.String(AttrKind, string(rc.Kind)),
			attribute.String(AttrReason, string(reason)),
			attribute.Int(AttrTimeoutEvents, len(rc.TimeoutEvents())),
			attribute.Int(AttrRaceEvents, len(rc.RaceEvents())),
		)
		if reason != lifecycle.ReasonCompleted {
			span.SetStatus(codes.Error, string(reason))
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
	if !c.OnTerminate(end) {
		end()
	}
}

// Transport wraps base so every upstream call gets a client span and
// carries the trace context in its headers.
func (t *Tracer) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &roundTripper{tracer: t, base: base}
}

type roundTripper struct {
	tracer *Tracer
	base   http.RoundTripper
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, span := rt.tracer.Start(req.Context(), fmt.Sprintf("upstream %s", req.Method),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.url", req.URL.Redacted()),
		),
	)

	req = req.Clone(ctx)
	Inject(ctx, req.Header)

	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		SetError(span, err)
		span.End()
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= 500 {
		span.SetStatus(codes.Error, resp.Status)
	}
	// The span covers time to headers; bodies may stream for minutes.
	span.End()
	return resp, nil
}
