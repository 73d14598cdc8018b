package providers

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"
)

type scriptedReader struct {
	chunks []*StreamChunk
	err    error
	block  bool
	closed atomic.Bool
}

func (r *scriptedReader) Read(ctx context.Context) (*StreamChunk, error) {
	if len(r.chunks) > 0 {
		c := r.chunks[0]
		r.chunks = r.chunks[1:]
		return c, nil
	}
	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if r.err != nil {
		return nil, r.err
	}
	return nil, io.EOF
}

func (r *scriptedReader) Close() error {
	r.closed.Store(true)
	return nil
}

func drain(t *testing.T, chunks <-chan *StreamChunk) []*StreamChunk {
	t.Helper()
	var got []*StreamChunk
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c, ok := <-chunks:
			if !ok {
				return got
			}
			got = append(got, c)
		case <-timeout:
			t.Fatal("channel not closed")
		}
	}
}

func TestPump(t *testing.T) {
	streamErr := &StreamError{Provider: "p", Message: "reset"}

	tests := []struct {
		name      string
		reader    *scriptedReader
		wantDelta []string
		wantErr   error
	}{
		{
			name:      "clean end",
			reader:    &scriptedReader{chunks: []*StreamChunk{{Delta: "a"}, {Delta: "b"}}},
			wantDelta: []string{"a", "b"},
		},
		{
			name:      "read error becomes final chunk",
			reader:    &scriptedReader{chunks: []*StreamChunk{{Delta: "a"}}, err: streamErr},
			wantDelta: []string{"a", ""},
			wantErr:   streamErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := drain(t, Pump(context.Background(), tt.reader, 0))

			if len(got) != len(tt.wantDelta) {
				t.Fatalf("got %d chunks, want %d", len(got), len(tt.wantDelta))
			}
			for i, c := range got {
				if c.Delta != tt.wantDelta[i] {
					t.Errorf("chunk %d Delta = %q, want %q", i, c.Delta, tt.wantDelta[i])
				}
			}
			if last := got[len(got)-1]; !errors.Is(last.Error, tt.wantErr) {
				t.Errorf("last Error = %v, want %v", last.Error, tt.wantErr)
			}
			if !tt.reader.closed.Load() {
				t.Error("reader not closed")
			}
		})
	}
}

func TestPump_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reader := &scriptedReader{chunks: []*StreamChunk{{Delta: "a"}}, block: true}
	chunks := Pump(ctx, reader, 0)

	if c := <-chunks; c.Delta != "a" {
		t.Fatalf("Delta = %q, want a", c.Delta)
	}
	cancel()

	for c := range chunks {
		if c.Error != nil {
			t.Errorf("cancellation produced error chunk: %v", c.Error)
		}
	}
	if !reader.closed.Load() {
		t.Error("reader not closed after cancellation")
	}
}
