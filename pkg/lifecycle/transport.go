package lifecycle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Transport is the raw outbound channel a Sink owns. Implementations need
// not be idempotent; the Sink guarantees WriteHeader and Finish are called at
// most once. Abort may be called concurrently with any other method.
type Transport interface {
	WriteHeader(status int, header http.Header) error
	Write(p []byte) error
	Finish() error
	Abort() error
}

// Framer encodes units for a transport.
type Framer interface {
	// Frame encodes one event. eventType may be empty.
	Frame(eventType string, data []byte) []byte

	// Sentinel returns the end-of-stream marker.
	Sentinel() []byte
}

// SSEFramer encodes Server-Sent Events:
//
//	event: <type>
//	data: <json>
//
// The stream ends with "data: [DONE]".
type SSEFramer struct{}

var sseSentinel = []byte("data: [DONE]\n\n")

// Frame encodes one SSE event.
func (SSEFramer) Frame(eventType string, data []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(data) + len(eventType) + 16)
	if eventType != "" {
		buf.WriteString("event: ")
		buf.WriteString(eventType)
		buf.WriteByte('\n')
	}
	buf.WriteString("data: ")
	buf.Write(data)
	buf.WriteString("\n\n")
	return buf.Bytes()
}

// Sentinel returns the SSE terminal frame.
func (SSEFramer) Sentinel() []byte {
	return sseSentinel
}

// MessageFramer encodes one unit per WebSocket message. Typed events are
// wrapped as {"event":"<type>","data":<json>}.
type MessageFramer struct{}

// Frame encodes one message.
func (MessageFramer) Frame(eventType string, data []byte) []byte {
	if eventType == "" {
		return data
	}
	out, err := json.Marshal(struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}{eventType, data})
	if err != nil {
		return data
	}
	return out
}

// Sentinel returns the terminal message.
func (MessageFramer) Sentinel() []byte {
	return []byte("[DONE]")
}

// HTTPTransport writes to an http.ResponseWriter, flushing after every write.
type HTTPTransport struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// NewHTTPTransport wraps w.
func NewHTTPTransport(w http.ResponseWriter) *HTTPTransport {
	return &HTTPTransport{w: w, rc: http.NewResponseController(w)}
}

// WriteHeader copies header into the response and sends the status line.
func (t *HTTPTransport) WriteHeader(status int, header http.Header) error {
	h := t.w.Header()
	for k, v := range header {
		h[k] = v
	}
	t.w.WriteHeader(status)
	return nil
}

// Write writes p and flushes it to the client.
func (t *HTTPTransport) Write(p []byte) error {
	if _, err := t.w.Write(p); err != nil {
		return err
	}
	return t.flush()
}

// Finish flushes buffered output. The response completes when the handler returns.
func (t *HTTPTransport) Finish() error {
	return t.flush()
}

// Abort fails any in-flight and future writes on the connection.
func (t *HTTPTransport) Abort() error {
	err := t.rc.SetWriteDeadline(time.Now())
	if errors.Is(err, http.ErrNotSupported) {
		return nil
	}
	return err
}

func (t *HTTPTransport) flush() error {
	err := t.rc.Flush()
	if errors.Is(err, http.ErrNotSupported) {
		return nil
	}
	return err
}

// WebSocketTransport sends each write as one text message. The HTTP status
// passed to WriteHeader selects the close code sent by Finish.
type WebSocketTransport struct {
	conn *websocket.Conn
	ctx  context.Context

	mu        sync.Mutex
	closeCode websocket.StatusCode
}

// NewWebSocketTransport wraps an accepted connection. ctx bounds each write.
func NewWebSocketTransport(ctx context.Context, conn *websocket.Conn) *WebSocketTransport {
	return &WebSocketTransport{conn: conn, ctx: ctx, closeCode: websocket.StatusNormalClosure}
}

// WriteHeader records the close code for non-2xx statuses.
func (t *WebSocketTransport) WriteHeader(status int, _ http.Header) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case status >= 500:
		t.closeCode = websocket.StatusInternalError
	case status >= 400:
		t.closeCode = websocket.StatusPolicyViolation
	}
	return nil
}

// Write sends p as a text message.
func (t *WebSocketTransport) Write(p []byte) error {
	if err := t.conn.Write(t.ctx, websocket.MessageText, p); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// Finish performs the close handshake.
func (t *WebSocketTransport) Finish() error {
	t.mu.Lock()
	code := t.closeCode
	t.mu.Unlock()
	return t.conn.Close(code, "")
}

// Abort closes the underlying connection without a handshake.
func (t *WebSocketTransport) Abort() error {
	return t.conn.CloseNow()
}
