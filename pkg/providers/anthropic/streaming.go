package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"mercator-hq/relay/pkg/providers"
)

// streamReader reads a Messages API event stream.
type streamReader struct {
	provider   string
	body       io.ReadCloser
	events     *providers.EventReader
	translator *StreamTranslator
	closed     bool
}

func newStreamReader(provider string, resp *http.Response) *streamReader {
	return &streamReader{
		provider:   provider,
		body:       resp.Body,
		events:     providers.NewEventReader(resp.Body),
		translator: NewStreamTranslator(provider),
	}
}

// Read returns the next chunk, or io.EOF after message_stop. A body that
// ends before message_stop is a StreamError.
func (s *streamReader) Read(ctx context.Context) (*providers.StreamChunk, error) {
	if s.closed {
		return nil, io.EOF
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		event, err := s.events.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			msg := "failed to read stream"
			if err == io.EOF {
				msg, err = "stream ended before message_stop", io.ErrUnexpectedEOF
			}
			return nil, &providers.StreamError{Provider: s.provider, Message: msg, Cause: err}
		}
		if event.Data == "" {
			continue
		}

		var ev StreamEvent
		if err := json.Unmarshal([]byte(event.Data), &ev); err != nil {
			return nil, &providers.ParseError{
				Provider:    s.provider,
				RawResponse: event.Data,
				Cause:       fmt.Errorf("failed to parse stream event: %w", err),
			}
		}
		if ev.Type == "" {
			ev.Type = event.Type
		}
		if ev.Type == "message_stop" {
			return nil, io.EOF
		}

		chunk, err := s.translator.Translate(&ev)
		if err != nil {
			return nil, err
		}
		if chunk != nil {
			return chunk, nil
		}
	}
}

// Close releases the response body.
func (s *streamReader) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}
