package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"mercator-hq/relay/pkg/providers"
)

// streamReader reads an OpenAI chat completion event stream.
type streamReader struct {
	provider string
	body     io.ReadCloser
	events   *providers.EventReader
	closed   bool
}

func newStreamReader(provider string, resp *http.Response) *streamReader {
	return &streamReader{
		provider: provider,
		body:     resp.Body,
		events:   providers.NewEventReader(resp.Body),
	}
}

// Read returns the next chunk, or io.EOF after "[DONE]" or the end of the
// body. Chunks carrying nothing are skipped.
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
			if err == io.EOF {
				return nil, io.EOF
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &providers.StreamError{
				Provider: s.provider,
				Message:  "failed to read stream",
				Cause:    err,
			}
		}

		if event.Data == "" {
			continue
		}
		if event.Data == "[DONE]" {
			return nil, io.EOF
		}

		var raw chunkPayload
		if err := json.Unmarshal([]byte(event.Data), &raw); err != nil {
			return nil, &providers.ParseError{
				Provider:    s.provider,
				RawResponse: event.Data,
				Cause:       fmt.Errorf("failed to parse stream chunk: %w", err),
			}
		}

		chunk := fromChunk(&raw)
		if chunk.Delta == "" && chunk.Role == "" && chunk.FinishReason == "" &&
			len(chunk.ToolCalls) == 0 && chunk.Usage == nil {
			continue
		}
		return chunk, nil
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
