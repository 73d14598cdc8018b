package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"mercator-hq/relay/pkg/faults"
)

// Producer generates a response through an Emitter. ctx is cancelled when
// the request terminates for any reason.
type Producer func(ctx context.Context, e *Emitter) error

// Emitter writes framed events for one request. It refuses to write once
// the coordinator has left the Active state.
type Emitter struct {
	c *Coordinator
}

// Coordinator returns the owning coordinator.
func (e *Emitter) Coordinator() *Coordinator {
	return e.c
}

// Start writes the event-stream headers and arms the streaming and
// inactivity timers. A false result means another source already finalized
// the response and the producer must stop.
func (e *Emitter) Start(extra http.Header) bool {
	if e.c.State() != StateActive {
		return false
	}
	h := http.Header{}
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	for k, v := range extra {
		h[k] = v
	}
	if !e.c.sink.WriteHeaders(http.StatusOK, h) {
		return false
	}
	e.c.rc.Touch()
	e.c.armStreaming()
	return true
}

// Emit serializes event as JSON and writes one frame. []byte and
// json.RawMessage values are written as is. It returns false, without
// writing, if the response can no longer accept output.
func (e *Emitter) Emit(event any, eventType string) bool {
	if e.c.State() != StateActive || !e.c.sink.CanWrite() {
		return false
	}
	data, err := encode(event)
	if err != nil {
		e.c.logger.Warn("failed to encode stream event", "error", err)
		return false
	}
	if !e.c.sink.WriteChunk(e.c.framer.Frame(eventType, data)) {
		return false
	}
	e.c.rc.Touch()
	return true
}

// EmitTerminalSentinel writes the end-of-stream marker.
func (e *Emitter) EmitTerminalSentinel() bool {
	if e.c.State() != StateActive {
		return false
	}
	return e.c.sink.WriteChunk(e.c.framer.Sentinel())
}

// WriteJSON sends a complete JSON response. It is used for plain responses.
func (e *Emitter) WriteJSON(status int, v any) bool {
	if e.c.State() != StateActive {
		return false
	}
	data, err := json.Marshal(v)
	if err != nil {
		e.c.logger.Warn("failed to encode response", "error", err)
		return false
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	if !e.c.sink.Respond(status, h, data) {
		return false
	}
	e.c.rc.Touch()
	return true
}

// Run executes producer inside an error boundary. When the producer
// returns nil the request terminates as completed, unless another source
// already terminated it. When it fails or
// panics, the fault is handed to onFault (if non-nil, with panics isolated),
// delivered to the client best-effort, and the request terminates. Run
// returns the producer's error.
func (e *Emitter) Run(producer Producer, onFault func(error)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.c.logger.Error("producer panicked", "panic", r, "stack", string(debug.Stack()))
			err = faults.Internal("An internal error occurred. Please try again later.", fmt.Errorf("panic: %v", r))
			e.fail(err, onFault)
		}
	}()

	if err = producer(e.c.ctx, e); err != nil {
		e.fail(err, onFault)
		return err
	}
	// A producer that stops because its output was refused is not a
	// competing termination source.
	e.c.terminate(ReasonCompleted, nil, e.c.ctx.Err() == nil)
	return nil
}

func (e *Emitter) fail(err error, onFault func(error)) {
	if onFault != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.c.logger.Error("fault handler panicked", "panic", r)
				}
			}()
			onFault(err)
		}()
	}

	// A producer failing because teardown already cancelled it is not a
	// competing termination source. The fault kind travels in the reported
	// details.
	e.c.terminate(ReasonErrorBoundary, err, !e.c.errCanceled(err))
}

func encode(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	}
	return json.Marshal(v)
}
