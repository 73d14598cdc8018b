package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/relay/pkg/lifecycle"
	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/proxy"
	"mercator-hq/relay/pkg/proxy/middleware"
	"mercator-hq/relay/pkg/proxy/types"
	"mercator-hq/relay/pkg/security/auth"
	"mercator-hq/relay/pkg/telemetry/tracing"
)

// ChatHandler serves POST /v1/chat/completions. Every parsed request runs
// under a lifecycle coordinator created before any upstream work, and the
// handler returns only after the coordinator has terminated.
type ChatHandler struct {
	Router  Router
	Ingress *lifecycle.Ingress

	// Tracer is optional.
	Tracer *tracing.Tracer

	// Metrics is optional.
	Metrics Recorder

	// MaxBodyBytes limits request bodies. Zero uses proxy.DefaultMaxBodyBytes.
	MaxBodyBytes int64

	Logger *slog.Logger
}

// NewChatHandler creates a chat handler. The ingress should classify
// errors with providers.Classify so upstream failures are remapped.
func NewChatHandler(router Router, ingress *lifecycle.Ingress) *ChatHandler {
	return &ChatHandler{
		Router:  router,
		Ingress: ingress,
		Logger:  slog.Default().With("component", "proxy"),
	}
}

// ServeHTTP implements http.Handler.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFor(r)

	req, err := proxy.ParseChatCompletionRequest(r, h.MaxBodyBytes)
	if err != nil {
		h.Logger.WarnContext(r.Context(), "invalid chat request", "request_id", requestID, "error", err)
		f, _ := proxy.HandleError(err, requestID)
		h.recordRequest("none", "unknown", f.Code, 0)
		proxy.WriteError(w, err, requestID)
		return
	}
	meta := requestMetadata(r, req, requestID)

	r, span := h.startSpan(r, "chat.completions", meta)
	c := h.Ingress.Begin(w, r, requestID, meta.Kind())
	h.serve(c, req, meta, span)
}

// requestMetadata defaults the user to the authenticated key's owner.
func requestMetadata(r *http.Request, req *types.ChatCompletionRequest, requestID string) *proxy.RequestMetadata {
	meta := proxy.ExtractRequestMetadata(r, req, requestID)
	if info, ok := auth.GetAPIKeyInfo(r.Context()); ok && meta.UserID == "" {
		meta.UserID = info.UserID
	}
	return meta
}

func (h *ChatHandler) startSpan(r *http.Request, name string, meta *proxy.RequestMetadata) (*http.Request, trace.Span) {
	if h.Tracer == nil {
		return r, nil
	}
	r, span := h.Tracer.StartRequest(r, name, meta.RequestID)
	tracing.SetRequestAttributes(span, meta.RequestID, meta.UserID, meta.Stream)
	return r, span
}

// serve runs one request to termination. It blocks until c is done.
func (h *ChatHandler) serve(c *lifecycle.Coordinator, req *types.ChatCompletionRequest, meta *proxy.RequestMetadata, span trace.Span) {
	meta.Record(c.Request())
	if span != nil {
		tracing.EndOnTerminate(span, c)
	}
	h.Logger.Info("chat request received", meta.LogAttrs()...)

	x := &exchange{h: h, c: c, req: req, span: span}
	producer := x.plain
	if req.Stream {
		producer = x.stream
	}
	runErr := c.Emitter().Run(producer, x.onFault)
	<-c.Done()
	x.finish(runErr)
}

// exchange is the state of one relayed request. Its fields are written by
// the producer and read after the coordinator is done, all on the handler
// goroutine.
type exchange struct {
	h    *ChatHandler
	c    *lifecycle.Coordinator
	req  *types.ChatCompletionRequest
	span trace.Span

	provider string
	usage    *providers.TokenUsage
}

// route selects the provider and registers the request's upstream
// resources with the coordinator so teardown releases them.
func (x *exchange) route(ctx context.Context) (providers.Provider, context.Context, error) {
	p, err := x.h.Router.Route(x.req.Model)
	if err != nil {
		return nil, nil, err
	}
	x.provider = p.Name()
	x.c.Request().SetMetadata("provider", p.Name())
	if x.span != nil {
		tracing.SetProviderAttributes(x.span, p.Name(), x.req.Model)
	}

	ctx, cancel := context.WithCancel(ctx)
	x.c.TrackResource("cancel:"+x.c.ID(), cancel)
	x.c.TrackResource(fmt.Sprintf("upstream:%s:%s", p.Name(), x.c.ID()), nil)
	return p, ctx, nil
}

func (x *exchange) plain(ctx context.Context, e *lifecycle.Emitter) error {
	p, ctx, err := x.route(ctx)
	if err != nil {
		return err
	}

	resp, err := p.SendCompletion(ctx, proxy.ToProviderRequest(x.req, x.c.ID()))
	if err != nil {
		return err
	}
	x.setUsage(&resp.Usage)

	e.WriteJSON(http.StatusOK, proxy.FormatChatCompletionResponse(resp, x.req.Model))
	return nil
}

func (x *exchange) stream(ctx context.Context, e *lifecycle.Emitter) error {
	p, ctx, err := x.route(ctx)
	if err != nil {
		return err
	}

	// Failures before the first byte become a structured error response.
	chunks, err := p.StreamCompletion(ctx, proxy.ToProviderRequest(x.req, x.c.ID()))
	if err != nil {
		return err
	}
	if !e.Start(nil) {
		return nil
	}

	var id string
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case chunk, ok := <-chunks:
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				e.EmitTerminalSentinel()
				return nil
			}
			if chunk.Error != nil {
				return chunk.Error
			}
			if chunk.Usage != nil {
				x.setUsage(chunk.Usage)
			}

			out := proxy.FormatStreamChunk(chunk, x.req.Model, id)
			if id == "" {
				if out.ID == "" {
					out.ID = "chatcmpl-" + x.c.ID()
				}
				id = out.ID
			}
			if !e.Emit(out, "") {
				return nil
			}
		}
	}
}

func (x *exchange) setUsage(u *providers.TokenUsage) {
	x.usage = u
	if x.span != nil {
		tracing.SetTokenAttributes(x.span, u.PromptTokens, u.CompletionTokens)
	}
}

// onFault runs inside the error boundary before the fault is delivered.
func (x *exchange) onFault(err error) {
	if x.c.Context().Err() != nil {
		x.h.Logger.Debug("producer stopped by teardown", "request_id", x.c.ID(), "error", err)
		return
	}
	f := providers.Classify(err)
	if x.span != nil {
		tracing.SetFaultAttributes(x.span, string(f.Kind), f.Code)
		tracing.SetError(x.span, err)
	}
	x.h.Logger.Warn("chat request failed",
		"request_id", x.c.ID(),
		"provider", x.provider,
		"model", x.req.Model,
		"kind", f.Kind,
		"code", f.Code,
		"error", err,
	)
}

// finish records metrics once the coordinator is done.
func (x *exchange) finish(runErr error) {
	provider := x.provider
	if provider == "" {
		provider = "none"
	}
	duration := x.c.TerminationStarted().Sub(x.c.Request().CreatedAt)
	x.h.recordRequest(provider, x.req.Model, status(x.c.Reason(), runErr), duration)

	if x.usage != nil && x.h.Metrics != nil {
		x.h.Metrics.RecordTokens(provider, x.req.Model, x.usage.PromptTokens, x.usage.CompletionTokens)
	}
}

// status is the metric label for a finished request: "success", the
// fault code of a producer failure, or the termination reason.
func status(reason lifecycle.Reason, runErr error) string {
	switch reason {
	case lifecycle.ReasonCompleted:
		return "success"
	case lifecycle.ReasonUpstreamError, lifecycle.ReasonErrorBoundary:
		if runErr != nil {
			return providers.Classify(runErr).Code
		}
	}
	return string(reason)
}

func (h *ChatHandler) recordRequest(provider, model, status string, d time.Duration) {
	if h.Metrics == nil {
		return
	}
	h.Metrics.RecordRequest(provider, model, status, d)
}

func requestIDFor(r *http.Request) string {
	if id := middleware.GetRequestID(r.Context()); id != "" {
		return id
	}
	return uuid.NewString()
}
