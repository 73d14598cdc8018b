package upstreamtest

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// OpenAIResponse is a chat completion body with one choice.
func OpenAIResponse(content, model string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-123",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   model,
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     10,
			"completion_tokens": 20,
			"total_tokens":      30,
		},
	}
}

// OpenAIChunk is one chat completion chunk. An empty finishReason is sent
// as null.
func OpenAIChunk(delta, finishReason string) Event {
	var finish any
	if finishReason != "" {
		finish = finishReason
	}
	return jsonEvent("", map[string]any{
		"id":      "chatcmpl-123",
		"object":  "chat.completion.chunk",
		"created": 1700000000,
		"model":   "gpt-4o",
		"choices": []map[string]any{
			{"index": 0, "delta": map[string]any{"content": delta}, "finish_reason": finish},
		},
	})
}

// OpenAIStream is a stream emitting each delta, then a stop chunk.
func OpenAIStream(deltas ...string) []Event {
	events := make([]Event, 0, len(deltas)+1)
	for _, d := range deltas {
		events = append(events, OpenAIChunk(d, ""))
	}
	return append(events, OpenAIChunk("", "stop"))
}

// AnthropicResponse is a Messages API body with one text block.
func AnthropicResponse(content, model string) map[string]any {
	return map[string]any{
		"id":          "msg_123",
		"type":        "message",
		"role":        "assistant",
		"content":     []map[string]any{{"type": "text", "text": content}},
		"model":       model,
		"stop_reason": "end_turn",
		"usage":       map[string]any{"input_tokens": 10, "output_tokens": 20},
	}
}

// AnthropicStream is a complete Messages API event stream emitting each
// delta as one text block delta.
func AnthropicStream(model string, deltas ...string) []Event {
	events := []Event{
		jsonEvent("message_start", map[string]any{
			"type": "message_start",
			"message": map[string]any{
				"id": "msg_123", "type": "message", "role": "assistant",
				"model": model, "content": []any{},
				"usage": map[string]any{"input_tokens": 10, "output_tokens": 1},
			},
		}),
		jsonEvent("content_block_start", map[string]any{
			"type": "content_block_start", "index": 0,
			"content_block": map[string]any{"type": "text", "text": ""},
		}),
		jsonEvent("ping", map[string]any{"type": "ping"}),
	}
	for _, d := range deltas {
		events = append(events, AnthropicTextDelta(d))
	}
	return append(events,
		jsonEvent("content_block_stop", map[string]any{"type": "content_block_stop", "index": 0}),
		jsonEvent("message_delta", map[string]any{
			"type":  "message_delta",
			"delta": map[string]any{"stop_reason": "end_turn"},
			"usage": map[string]any{"output_tokens": 20},
		}),
		jsonEvent("message_stop", map[string]any{"type": "message_stop"}),
	)
}

// AnthropicTextDelta is one content_block_delta event.
func AnthropicTextDelta(text string) Event {
	return jsonEvent("content_block_delta", map[string]any{
		"type":  "content_block_delta",
		"index": 0,
		"delta": map[string]any{"type": "text_delta", "text": text},
	})
}

// AnthropicError is an in-band error event.
func AnthropicError(errType, message string) Event {
	return jsonEvent("error", map[string]any{
		"type":  "error",
		"error": map[string]any{"type": errType, "message": message},
	})
}

// ErrorResponse is an upstream error reply.
func ErrorResponse(status int, message string) Response {
	return Response{
		StatusCode: status,
		Body: map[string]any{
			"error": map[string]any{"message": message, "type": "invalid_request_error"},
		},
	}
}

// RateLimited is a 429 reply advertising retryAfter seconds.
func RateLimited(retryAfter int) Response {
	r := ErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded")
	r.Headers = map[string]string{"Retry-After": strconv.Itoa(retryAfter)}
	return r
}

func jsonEvent(eventType string, v any) Event {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return Event{Type: eventType, Data: string(data)}
}
