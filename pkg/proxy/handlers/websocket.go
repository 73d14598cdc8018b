package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"mercator-hq/relay/pkg/proxy"
)

// requestReadTimeout bounds the wait for the request message after upgrade.
const requestReadTimeout = 30 * time.Second

// WebSocketHandler serves GET /v1/chat/completions/ws. The client sends
// one chat completion request as a text message; the relay answers with one
// message per chunk, then "[DONE]", then a normal close. Failures before the
// first chunk arrive as a single error message and a policy-violation or
// internal-error close.
type WebSocketHandler struct {
	Chat *ChatHandler

	// OriginPatterns are the cross-origin hosts allowed to connect.
	OriginPatterns []string
}

// NewWebSocketHandler creates a WebSocket handler that relays through chat.
func NewWebSocketHandler(chat *ChatHandler) *WebSocketHandler {
	return &WebSocketHandler{Chat: chat}
}

// ServeHTTP implements http.Handler.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFor(r)
	logger := h.Chat.Logger.With("request_id", requestID)

	// The server's read deadline would otherwise outlive the upgrade. The
	// lifecycle timers bound the stream instead.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.OriginPatterns})
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.CloseNow()

	limit := h.Chat.MaxBodyBytes
	if limit <= 0 {
		limit = proxy.DefaultMaxBodyBytes
	}
	conn.SetReadLimit(limit)

	readCtx, cancel := context.WithTimeout(r.Context(), requestReadTimeout)
	typ, data, err := conn.Read(readCtx)
	cancel()
	if err != nil {
		logger.Debug("websocket closed before request", "error", err)
		return
	}
	if typ != websocket.MessageText {
		conn.Close(websocket.StatusUnsupportedData, "expected a text message")
		return
	}

	req, err := proxy.DecodeChatCompletionRequest(data)
	if err != nil {
		logger.Warn("invalid websocket chat request", "error", err)
		f, _ := proxy.HandleError(err, requestID)
		h.Chat.recordRequest("none", "unknown", f.Code, 0)
		if werr := conn.Write(r.Context(), websocket.MessageText, f.JSON(requestID)); werr == nil {
			conn.Close(websocket.StatusPolicyViolation, f.Code)
		}
		return
	}
	req.Stream = true
	meta := requestMetadata(r, req, requestID)

	r, span := h.Chat.startSpan(r, "chat.completions.ws", meta)
	// CloseRead ends peerCtx when the client closes or sends anything else.
	peerCtx := conn.CloseRead(r.Context())
	c := h.Chat.Ingress.BeginWebSocket(peerCtx, conn, requestID)
	h.Chat.serve(c, req, meta, span)
}
