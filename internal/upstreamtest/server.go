// Package upstreamtest provides a scriptable upstream provider for tests.
package upstreamtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// Event is one scripted Server-Sent Event.
type Event struct {
	// Type is written as an "event:" line when non-empty.
	Type string
	Data string
}

// Response scripts the reply for one path.
type Response struct {
	StatusCode int

	// Body is written as is for string and []byte, JSON-encoded otherwise.
	Body any

	Headers map[string]string

	// Delay is waited before anything is written. A client going away
	// ends the wait.
	Delay time.Duration

	// Events makes the reply an event stream.
	Events []Event

	// EventDelay is waited between events.
	EventDelay time.Duration

	// OmitDone suppresses the trailing "data: [DONE]" of event streams.
	OmitDone bool

	// Hold keeps the stream open after the last event until the client
	// disconnects.
	Hold bool
}

// Request is a request the server received.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// Server is an httptest server replaying scripted responses by path.
// Unscripted paths get 404.
type Server struct {
	server *httptest.Server

	mu          sync.Mutex
	responses   map[string][]Response
	requests    []Request
	disconnects int
	gone        chan struct{}
	goneOnce    sync.Once
}

// NewServer starts a server. It is closed when the test ends.
func NewServer(tb interface{ Cleanup(func()) }) *Server {
	s := &Server{
		responses: make(map[string][]Response),
		gone:      make(chan struct{}),
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	tb.Cleanup(s.server.Close)
	return s
}

// URL returns the server's base URL.
func (s *Server) URL() string {
	return s.server.URL
}

// SetResponse scripts path. Given several responses they are served in
// order, the last one repeating.
func (s *Server) SetResponse(path string, responses ...Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[path] = responses
}

// Requests returns the requests received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// RequestCount returns how many requests were received.
func (s *Server) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Disconnected is closed the first time a client abandons a held or
// delayed response.
func (s *Server) Disconnected() <-chan struct{} {
	return s.gone
}

// Disconnects returns how many responses clients abandoned.
func (s *Server) Disconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnects
}

func (s *Server) next(r *http.Request, body []byte) (Response, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Header: r.Header.Clone(),
		Body:   body,
	})
	queue := s.responses[r.URL.Path]
	if len(queue) == 0 {
		return Response{}, false
	}
	resp := queue[0]
	if len(queue) > 1 {
		s.responses[r.URL.Path] = queue[1:]
	}
	return resp, true
}

func (s *Server) abandoned() {
	s.mu.Lock()
	s.disconnects++
	s.mu.Unlock()
	s.goneOnce.Do(func() { close(s.gone) })
}

// wait sleeps for d unless the client goes away first.
func (s *Server) wait(r *http.Request, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-r.Context().Done():
		s.abandoned()
		return false
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	resp, ok := s.next(r, body)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if !s.wait(r, resp.Delay) {
		return
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	if len(resp.Events) > 0 || resp.Hold {
		s.stream(w, r, resp)
		return
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	switch v := resp.Body.(type) {
	case nil:
	case string:
		_, _ = io.WriteString(w, v)
	case []byte:
		_, _ = w.Write(v)
	default:
		_ = json.NewEncoder(w).Encode(v)
	}
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request, resp Response) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for i, ev := range resp.Events {
		if i > 0 && !s.wait(r, resp.EventDelay) {
			return
		}
		if ev.Type != "" {
			fmt.Fprintf(w, "event: %s\n", ev.Type)
		}
		fmt.Fprintf(w, "data: %s\n\n", ev.Data)
		flusher.Flush()
	}

	if resp.Hold {
		<-r.Context().Done()
		s.abandoned()
		return
	}
	if !resp.OmitDone {
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}
}
