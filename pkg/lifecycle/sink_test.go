package lifecycle

import (
	"errors"
	"net/http"
	"sync"
	"testing"

	"mercator-hq/relay/pkg/lifecycle/lifecycletest"
)

func TestSink_WriteHeadersOnce(t *testing.T) {
	tr := lifecycletest.NewTransport()
	s := NewSink(tr)

	if !s.CanWriteHeaders() {
		t.Fatal("CanWriteHeaders() = false on new sink")
	}
	if !s.WriteHeaders(http.StatusCreated, nil) {
		t.Fatal("first WriteHeaders() = false, want true")
	}
	if s.WriteHeaders(http.StatusOK, nil) {
		t.Error("second WriteHeaders() = true, want false")
	}
	if s.CanWriteHeaders() {
		t.Error("CanWriteHeaders() = true after headers sent")
	}
	if got := tr.HeaderCalls(); got != 1 {
		t.Errorf("transport WriteHeader calls = %d, want 1", got)
	}
	if got := tr.Status(); got != http.StatusCreated {
		t.Errorf("status = %d, want %d", got, http.StatusCreated)
	}
}

func TestSink_WriteChunkImplicitHeaders(t *testing.T) {
	tr := lifecycletest.NewTransport()
	s := NewSink(tr)

	if !s.WriteChunk([]byte("hello")) {
		t.Fatal("WriteChunk() = false, want true")
	}
	if !s.HeadersSent() {
		t.Error("HeadersSent() = false after WriteChunk")
	}
	if got := tr.Status(); got != http.StatusOK {
		t.Errorf("status = %d, want 200", got)
	}
	if got := tr.Body(); got != "hello" {
		t.Errorf("body = %q, want %q", got, "hello")
	}
}

func TestSink_EndIdempotent(t *testing.T) {
	tests := []struct {
		name        string
		sendHeaders bool
		final       []byte
		wantBody    string
	}{
		{name: "without headers or payload", wantBody: ""},
		{name: "without headers with payload", final: []byte("bye"), wantBody: "bye"},
		{name: "after headers with payload", sendHeaders: true, final: []byte("bye"), wantBody: "bye"},
		{name: "after headers without payload", sendHeaders: true, wantBody: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := lifecycletest.NewTransport()
			s := NewSink(tr)
			if tt.sendHeaders {
				s.WriteHeaders(http.StatusOK, nil)
			}

			var frames [][]byte
			if tt.final != nil {
				frames = append(frames, tt.final)
			}
			if !s.End(frames...) {
				t.Fatal("first End() = false, want true")
			}
			if s.End([]byte("again")) {
				t.Error("second End() = true, want false")
			}
			if s.WriteChunk([]byte("late")) {
				t.Error("WriteChunk() after End = true, want false")
			}
			if s.WriteHeaders(http.StatusOK, nil) {
				t.Error("WriteHeaders() after End = true, want false")
			}

			if got := tr.Finishes(); got != 1 {
				t.Errorf("Finish calls = %d, want 1", got)
			}
			if got := tr.HeaderCalls(); got != 1 {
				t.Errorf("WriteHeader calls = %d, want 1", got)
			}
			if got := tr.Body(); got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
		})
	}
}

func TestSink_ConcurrentEnd(t *testing.T) {
	tr := lifecycletest.NewTransport()
	s := NewSink(tr)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.End() {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("successful End() calls = %d, want 1", wins)
	}
	if got := tr.Finishes(); got != 1 {
		t.Errorf("Finish calls = %d, want 1", got)
	}
}

func TestSink_Respond(t *testing.T) {
	tr := lifecycletest.NewTransport()
	s := NewSink(tr)

	h := http.Header{}
	h.Set("Content-Type", "application/json")
	if !s.Respond(http.StatusBadRequest, h, []byte(`{"error":{}}`)) {
		t.Fatal("Respond() = false, want true")
	}
	if s.Respond(http.StatusOK, nil, nil) {
		t.Error("second Respond() = true, want false")
	}
	if got := tr.Status(); got != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", got)
	}
	if got := tr.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
	if got := tr.Finishes(); got != 1 {
		t.Errorf("Finish calls = %d, want 1", got)
	}
}

func TestSink_RespondAfterHeaders(t *testing.T) {
	s := NewSink(lifecycletest.NewTransport())
	s.WriteHeaders(http.StatusOK, nil)

	if s.Respond(http.StatusInternalServerError, nil, []byte("x")) {
		t.Error("Respond() after headers = true, want false")
	}
	if !s.CanWrite() {
		t.Error("failed Respond() must not end the sink")
	}
}

func TestSink_Destroy(t *testing.T) {
	tr := lifecycletest.NewTransport()
	s := NewSink(tr)
	s.WriteChunk([]byte("a"))

	s.Destroy()
	s.Destroy()

	if !s.Destroyed() || !s.Ended() {
		t.Errorf("Destroyed() = %v, Ended() = %v, want both true", s.Destroyed(), s.Ended())
	}
	if s.CanWrite() {
		t.Error("CanWrite() = true after Destroy")
	}
	if s.WriteChunk([]byte("b")) {
		t.Error("WriteChunk() after Destroy = true, want false")
	}
	if s.End() {
		t.Error("End() after Destroy = true, want false")
	}
	if got := tr.Aborts(); got != 1 {
		t.Errorf("Abort calls = %d, want 1", got)
	}
	if got := tr.Finishes(); got != 0 {
		t.Errorf("Finish calls = %d, want 0", got)
	}
	if got := tr.Body(); got != "a" {
		t.Errorf("body = %q, want %q", got, "a")
	}
}

func TestSink_WriteErrorDestroys(t *testing.T) {
	tr := lifecycletest.NewTransport()
	tr.FailWrites = errors.New("broken pipe")
	s := NewSink(tr)

	var calls int
	var got error
	s.OnWriteError(func(err error) {
		calls++
		got = err
	})

	if s.WriteChunk([]byte("x")) {
		t.Fatal("WriteChunk() = true on failing transport")
	}
	if s.WriteChunk([]byte("y")) {
		t.Error("WriteChunk() after failure = true, want false")
	}
	if !s.Destroyed() {
		t.Error("Destroyed() = false after write failure")
	}
	if calls != 1 {
		t.Errorf("OnWriteError calls = %d, want 1", calls)
	}
	if !errors.Is(got, tr.FailWrites) {
		t.Errorf("OnWriteError err = %v, want %v", got, tr.FailWrites)
	}
}
