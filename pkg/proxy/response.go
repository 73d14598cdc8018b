package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/proxy/types"
)

// FormatChatCompletionResponse converts a provider response to the OpenAI
// chat completion shape. The response echoes the model the client asked
// for, not the upstream's resolved name.
func FormatChatCompletionResponse(resp *providers.CompletionResponse, requestedModel string) *types.ChatCompletionResponse {
	return &types.ChatCompletionResponse{
		ID:      responseID(resp.ID),
		Object:  "chat.completion",
		Created: created(resp.Created),
		Model:   requestedModel,
		Choices: []types.Choice{
			{
				Index: 0,
				Message: types.Message{
					Role:      providers.RoleAssistant,
					Content:   resp.Content,
					ToolCalls: convertToolCalls(resp.ToolCalls, false),
				},
				FinishReason: resp.FinishReason,
			},
		},
		Usage: types.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
}

// FormatStreamChunk converts a provider stream chunk to an OpenAI chunk.
// id is the response id shared by every chunk of one stream; when empty it
// is derived from the chunk.
func FormatStreamChunk(chunk *providers.StreamChunk, requestedModel, id string) *types.ChatCompletionStreamChunk {
	if id == "" {
		id = responseID(chunk.ID)
	}
	out := &types.ChatCompletionStreamChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created(chunk.Created),
		Model:   requestedModel,
		Choices: []types.StreamChoice{
			{
				Index: 0,
				Delta: types.Delta{
					Role:      chunk.Role,
					Content:   chunk.Delta,
					ToolCalls: convertToolCalls(chunk.ToolCalls, true),
				},
			},
		},
	}
	if chunk.FinishReason != "" {
		reason := chunk.FinishReason
		out.Choices[0].FinishReason = &reason
	}
	if chunk.Usage != nil {
		out.Usage = &types.Usage{
			PromptTokens:     chunk.Usage.PromptTokens,
			CompletionTokens: chunk.Usage.CompletionTokens,
			TotalTokens:      chunk.Usage.TotalTokens,
		}
	}
	return out
}

func responseID(id string) string {
	if id == "" {
		return ""
	}
	if len(id) > 9 && id[:9] == "chatcmpl-" {
		return id
	}
	return "chatcmpl-" + id
}

func created(ts int64) int64 {
	if ts == 0 {
		return time.Now().Unix()
	}
	return ts
}

func convertToolCalls(calls []providers.ToolCall, indexed bool) []types.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]types.ToolCall, len(calls))
	for i, tc := range calls {
		out[i] = types.ToolCall{
			ID:   tc.ID,
			Type: tc.Type,
			Function: types.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		}
		if indexed {
			index := tc.Index
			out[i].Index = &index
		} else if out[i].Type == "" {
			out[i].Type = providers.ToolTypeFunction
		}
	}
	return out
}

// WriteJSONResponse writes data as a JSON response with statusCode.
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON response: %w", err)
	}
	return nil
}
