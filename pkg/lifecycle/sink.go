package lifecycle

import (
	"net/http"
	"sync"
	"sync/atomic"
)

// Sink guards a Transport with one-way latches. Headers are written at most
// once and the transport is finished at most once. After End or Destroy every
// operation is a no-op that returns false.
//
// All methods are safe for concurrent use. Latch checks, latch sets and the
// transport call happen under one mutex so no writer interleaves with another.
// Destroy and the Can* queries never wait for that mutex.
type Sink struct {
	mu        sync.Mutex
	transport Transport

	headersSent atomic.Bool
	ended       atomic.Bool
	destroyed   atomic.Bool

	// onError is called, outside the lock, when the transport fails a write.
	onError func(error)
}

// NewSink creates a sink owning t.
func NewSink(t Transport) *Sink {
	return &Sink{transport: t}
}

// OnWriteError installs the transport failure hook. It must be called
// before the sink is shared.
func (s *Sink) OnWriteError(fn func(error)) {
	s.onError = fn
}

// CanWrite reports whether chunks can still be written.
func (s *Sink) CanWrite() bool {
	return !s.ended.Load() && !s.destroyed.Load()
}

// CanWriteHeaders reports whether headers can still be written.
func (s *Sink) CanWriteHeaders() bool {
	return !s.headersSent.Load() && s.CanWrite()
}

// HeadersSent reports whether headers have been written.
func (s *Sink) HeadersSent() bool {
	return s.headersSent.Load()
}

// Ended reports whether the sink has been ended or destroyed.
func (s *Sink) Ended() bool {
	return s.ended.Load()
}

// Destroyed reports whether Destroy has been called.
func (s *Sink) Destroyed() bool {
	return s.destroyed.Load()
}

// WriteHeaders sends the status line and headers.
func (s *Sink) WriteHeaders(status int, header http.Header) bool {
	s.mu.Lock()
	if !s.CanWriteHeaders() {
		s.mu.Unlock()
		return false
	}
	err := s.writeHeadersLocked(status, header)
	s.mu.Unlock()
	return s.done(err)
}

// WriteChunk writes p, sending implicit 200 headers first if needed.
func (s *Sink) WriteChunk(p []byte) bool {
	s.mu.Lock()
	if !s.CanWrite() {
		s.mu.Unlock()
		return false
	}
	err := s.writeLocked(p)
	s.mu.Unlock()
	return s.done(err)
}

// End writes any final frames and finishes the transport. It works whether
// or not headers were already sent.
func (s *Sink) End(frames ...[]byte) bool {
	s.mu.Lock()
	if !s.CanWrite() {
		s.mu.Unlock()
		return false
	}
	s.ended.Store(true)
	var err error
	for _, p := range frames {
		if err = s.writeLocked(p); err != nil {
			break
		}
	}
	if err == nil {
		if !s.headersSent.Load() {
			err = s.writeHeadersLocked(http.StatusOK, nil)
		}
		if err == nil {
			err = s.transport.Finish()
		}
	}
	s.mu.Unlock()
	return s.done(err)
}

// Respond writes a complete response in one step: headers, body, finish.
// It fails if headers were already sent.
func (s *Sink) Respond(status int, header http.Header, body []byte) bool {
	s.mu.Lock()
	if !s.CanWriteHeaders() {
		s.mu.Unlock()
		return false
	}
	s.ended.Store(true)
	err := s.writeHeadersLocked(status, header)
	if err == nil && len(body) > 0 {
		err = s.transport.Write(body)
	}
	if err == nil {
		err = s.transport.Finish()
	}
	s.mu.Unlock()
	return s.done(err)
}

// Destroy latches the sink closed and aborts the transport, even if a
// write is in progress. It is idempotent.
func (s *Sink) Destroy() {
	s.destroy()
}

func (s *Sink) destroy() bool {
	if !s.destroyed.CompareAndSwap(false, true) {
		return false
	}
	s.ended.Store(true)
	_ = s.transport.Abort()
	return true
}

func (s *Sink) writeHeadersLocked(status int, header http.Header) error {
	s.headersSent.Store(true)
	return s.transport.WriteHeader(status, header)
}

func (s *Sink) writeLocked(p []byte) error {
	if !s.headersSent.Load() {
		if err := s.writeHeadersLocked(http.StatusOK, nil); err != nil {
			return err
		}
	}
	if len(p) == 0 {
		return nil
	}
	return s.transport.Write(p)
}

// done latches the sink destroyed on a transport error and reports it.
func (s *Sink) done(err error) bool {
	if err == nil {
		return true
	}
	if s.destroy() && s.onError != nil {
		s.onError(err)
	}
	return false
}
