package proxy

import (
	"encoding/json"
	"strings"

	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/proxy/types"
)

// ToProviderRequest converts a client request into the neutral provider
// form. requestID is carried as relay metadata and never sent upstream.
func ToProviderRequest(req *types.ChatCompletionRequest, requestID string) *providers.CompletionRequest {
	out := &providers.CompletionRequest{
		Model:       req.Model,
		Messages:    make([]providers.Message, 0, len(req.Messages)),
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      req.Stream,
		Stop:        req.Stop,
		User:        req.User,
		Tools:       convertTools(req.Tools),
		ToolChoice:  req.ToolChoice,
		Metadata:    map[string]string{"request_id": requestID},
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}
	if req.PresencePenalty != nil {
		out.PresencePenalty = *req.PresencePenalty
	}
	if req.FrequencyPenalty != nil {
		out.FrequencyPenalty = *req.FrequencyPenalty
	}
	if req.User != "" {
		out.Metadata["user"] = req.User
	}

	for _, msg := range req.Messages {
		out.Messages = append(out.Messages, providers.Message{
			Role:       msg.Role,
			Content:    messageText(msg.Content),
			Name:       msg.Name,
			ToolCalls:  toProviderToolCalls(msg.ToolCalls),
			ToolCallID: msg.ToolCallID,
		})
	}
	return out
}

// messageText flattens message content. Content-part arrays keep their
// text parts, joined by newlines; image and audio parts are dropped.
func messageText(content any) string {
	switch c := content.(type) {
	case nil:
		return ""
	case string:
		return c
	case []any:
		var parts []string
		for _, part := range c {
			m, ok := part.(map[string]any)
			if !ok || m["type"] != "text" {
				continue
			}
			if text, ok := m["text"].(string); ok {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, "\n")
	default:
		data, err := json.Marshal(c)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

func toProviderToolCalls(calls []types.ToolCall) []providers.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]providers.ToolCall, len(calls))
	for i, tc := range calls {
		out[i] = providers.ToolCall{
			Index: i,
			ID:    tc.ID,
			Type:  providers.ToolTypeFunction,
			Function: providers.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		}
	}
	return out
}

func convertTools(tools []types.Tool) []providers.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]providers.Tool, len(tools))
	for i, tool := range tools {
		out[i] = providers.Tool{
			Type: providers.ToolTypeFunction,
			Function: providers.FunctionDefinition{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  tool.Function.Parameters,
			},
		}
	}
	return out
}
