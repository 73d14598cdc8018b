package lifecycle

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"mercator-hq/relay/pkg/faults"
)

// Ingress creates coordinators for inbound requests.
type Ingress struct {
	Clock    Clock
	Reporter Reporter

	// Timeouts is read once per request so configuration reloads apply to
	// new requests only.
	Timeouts func() TimeoutConfig

	Classify func(error) *faults.Fault
	Logger   *slog.Logger
}

func (in *Ingress) options(parent context.Context) Options {
	timeouts := DefaultTimeouts()
	if in.Timeouts != nil {
		timeouts = in.Timeouts()
	}
	return Options{
		Clock:    in.Clock,
		Timeouts: timeouts,
		Reporter: in.Reporter,
		Classify: in.Classify,
		Parent:   parent,
		Logger:   in.Logger,
	}
}

// Begin creates the coordinator for an HTTP request before any production
// logic runs. Client disconnects terminate the request with
// ReasonClientDisconnect. The caller must not return from its handler until
// the coordinator is done.
func (in *Ingress) Begin(w http.ResponseWriter, r *http.Request, id string, kind Kind) *Coordinator {
	rc := NewRequestContext(id, kind, in.Clock)
	rc.SetMetadata("method", r.Method)
	rc.SetMetadata("path", r.URL.Path)
	rc.SetMetadata("remote_addr", r.RemoteAddr)

	c := NewCoordinator(rc, NewSink(NewHTTPTransport(w)), in.options(r.Context()))
	in.watchDisconnect(r.Context(), c)
	return c
}

// BeginWebSocket creates the coordinator for a streaming request carried
// over an accepted WebSocket. ctx should end when the peer goes away, as
// returned by conn.CloseRead.
func (in *Ingress) BeginWebSocket(ctx context.Context, conn *websocket.Conn, id string) *Coordinator {
	rc := NewRequestContext(id, KindIncremental, in.Clock)
	rc.SetMetadata("transport", "websocket")

	opts := in.options(ctx)
	opts.Framer = MessageFramer{}
	c := NewCoordinator(rc, NewSink(NewWebSocketTransport(context.WithoutCancel(ctx), conn)), opts)
	in.watchDisconnect(ctx, c)
	return c
}

func (in *Ingress) watchDisconnect(ctx context.Context, c *Coordinator) {
	stop := context.AfterFunc(ctx, func() { c.Disconnect() })
	c.OnTerminate(func() { stop() })
}
