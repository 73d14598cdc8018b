package anthropic

import (
	"encoding/json"
	"fmt"
	"strings"

	"mercator-hq/relay/pkg/providers"
)

// DefaultMaxTokens fills max_tokens, which the Messages API requires,
// when neither the request nor the provider configuration sets it.
const DefaultMaxTokens = 4096

// Messages API request/response types

// MessagesRequest is a Messages API request.
type MessagesRequest struct {
	Model         string        `json:"model"`
	Messages      []Message     `json:"messages"`
	System        string        `json:"system,omitempty"`
	MaxTokens     int           `json:"max_tokens"`
	Temperature   *float64      `json:"temperature,omitempty"`
	TopP          *float64      `json:"top_p,omitempty"`
	Stream        bool          `json:"stream,omitempty"`
	Tools         []Tool        `json:"tools,omitempty"`
	ToolChoice    *ToolChoice   `json:"tool_choice,omitempty"`
	StopSequences []string      `json:"stop_sequences,omitempty"`
	Metadata      *UserMetadata `json:"metadata,omitempty"`
}

// UserMetadata identifies the end user to the upstream.
type UserMetadata struct {
	UserID string `json:"user_id,omitempty"`
}

// Message is one conversation turn. Content is always sent as blocks.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is a text, tool_use or tool_result block.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

// Tool is a tool definition.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToolChoice constrains tool use.
type ToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// MessagesResponse is a non-streaming Messages API response.
type MessagesResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Content      []ContentBlock `json:"content"`
	Model        string         `json:"model"`
	StopReason   string         `json:"stop_reason"`
	StopSequence string         `json:"stop_sequence,omitempty"`
	Usage        Usage          `json:"usage"`
}

// Usage is token usage.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// StreamEvent is one event of a Messages API stream. Delta carries the
// content_block_delta fields and the message_delta fields; they never
// collide.
type StreamEvent struct {
	Type         string            `json:"type"`
	Message      *MessagesResponse `json:"message,omitempty"`
	Index        int               `json:"index"`
	ContentBlock *ContentBlock     `json:"content_block,omitempty"`
	Delta        *Delta            `json:"delta,omitempty"`
	Usage        *Usage            `json:"usage,omitempty"`
	Error        *APIError         `json:"error,omitempty"`
}

// Delta is an incremental update.
type Delta struct {
	Type        string `json:"type,omitempty"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`

	StopReason   string `json:"stop_reason,omitempty"`
	StopSequence string `json:"stop_sequence,omitempty"`
}

// APIError is an error reported in band.
type APIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ToUpstreamRequest translates a neutral request into a Messages API
// request. System messages move to the system field, tool results become
// user tool_result blocks, and consecutive turns of the same role are
// merged so roles alternate.
func ToUpstreamRequest(req *providers.CompletionRequest) (*MessagesRequest, error) {
	out := &MessagesRequest{
		Model:         req.Model,
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		Stream:        req.Stream,
		StopSequences: req.Stop,
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = DefaultMaxTokens
	}
	if req.User != "" {
		out.Metadata = &UserMetadata{UserID: req.User}
	}

	var system []string
	for i, msg := range req.Messages {
		var (
			role   string
			blocks []ContentBlock
		)
		switch msg.Role {
		case providers.RoleSystem:
			system = append(system, msg.Content)
			continue

		case providers.RoleTool:
			if msg.ToolCallID == "" {
				return nil, &providers.ValidationError{
					Field:   fmt.Sprintf("messages[%d].tool_call_id", i),
					Message: "tool messages must reference a tool call",
				}
			}
			role = providers.RoleUser
			blocks = []ContentBlock{{Type: "tool_result", ToolUseID: msg.ToolCallID, Content: msg.Content}}

		case providers.RoleUser, providers.RoleAssistant:
			role = msg.Role
			if msg.Content != "" {
				blocks = append(blocks, ContentBlock{Type: "text", Text: msg.Content})
			}
			for j, tc := range msg.ToolCalls {
				input, err := toolInput(tc.Function.Arguments)
				if err != nil {
					return nil, &providers.ValidationError{
						Field:   fmt.Sprintf("messages[%d].tool_calls[%d].function.arguments", i, j),
						Message: "arguments must be a JSON object",
					}
				}
				blocks = append(blocks, ContentBlock{Type: "tool_use", ID: tc.ID, Name: tc.Function.Name, Input: input})
			}

		default:
			return nil, &providers.ValidationError{
				Field:   fmt.Sprintf("messages[%d].role", i),
				Message: fmt.Sprintf("unsupported role %q", msg.Role),
			}
		}

		if len(blocks) == 0 {
			continue
		}
		if n := len(out.Messages); n > 0 && out.Messages[n-1].Role == role {
			out.Messages[n-1].Content = append(out.Messages[n-1].Content, blocks...)
			continue
		}
		out.Messages = append(out.Messages, Message{Role: role, Content: blocks})
	}
	out.System = strings.Join(system, "\n\n")

	if len(out.Messages) == 0 || out.Messages[0].Role != providers.RoleUser {
		return nil, &providers.ValidationError{
			Field:   "messages",
			Message: "the first non-system message must be from the user",
		}
	}

	for _, tool := range req.Tools {
		schema := tool.Function.Parameters
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		out.Tools = append(out.Tools, Tool{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			InputSchema: schema,
		})
	}

	choice, err := toToolChoice(req.ToolChoice)
	if err != nil {
		return nil, err
	}
	out.ToolChoice = choice

	return out, nil
}

func toolInput(arguments string) (json.RawMessage, error) {
	if strings.TrimSpace(arguments) == "" {
		return json.RawMessage("{}"), nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(arguments), &obj); err != nil {
		return nil, err
	}
	return json.RawMessage(arguments), nil
}

// toToolChoice maps an OpenAI tool_choice ("auto", "none", "required" or
// {"type":"function","function":{"name":...}}).
func toToolChoice(choice any) (*ToolChoice, error) {
	switch v := choice.(type) {
	case nil:
		return nil, nil
	case string:
		switch v {
		case "auto":
			return &ToolChoice{Type: "auto"}, nil
		case "none":
			return &ToolChoice{Type: "none"}, nil
		case "required":
			return &ToolChoice{Type: "any"}, nil
		}
	case map[string]any:
		if fn, ok := v["function"].(map[string]any); ok {
			if name, ok := fn["name"].(string); ok && name != "" {
				return &ToolChoice{Type: "tool", Name: name}, nil
			}
		}
	}
	return nil, &providers.ValidationError{Field: "tool_choice", Message: "unsupported tool_choice value"}
}

// ToCompletionResponse translates a Messages API response.
func ToCompletionResponse(resp *MessagesResponse) (*providers.CompletionResponse, error) {
	var (
		content   strings.Builder
		toolCalls []providers.ToolCall
	)
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			content.WriteString(block.Text)
		case "tool_use":
			args := string(block.Input)
			if args == "" {
				args = "{}"
			}
			toolCalls = append(toolCalls, providers.ToolCall{
				Index: len(toolCalls),
				ID:    block.ID,
				Type:  providers.ToolTypeFunction,
				Function: providers.FunctionCall{
					Name:      block.Name,
					Arguments: args,
				},
			})
		}
	}
	if resp.ID == "" && len(resp.Content) == 0 {
		return nil, fmt.Errorf("empty response")
	}

	return &providers.CompletionResponse{
		ID:           resp.ID,
		Model:        resp.Model,
		Content:      content.String(),
		FinishReason: normalizeStopReason(resp.StopReason),
		Usage: providers.TokenUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
		ToolCalls: toolCalls,
	}, nil
}

// StreamTranslator turns Messages API stream events into neutral chunks.
// It is stateful: message_start supplies the id and model later chunks
// carry, and tool_use blocks are numbered in order of appearance.
type StreamTranslator struct {
	provider    string
	id          string
	model       string
	inputTokens int
	toolIndex   map[int]int
}

// NewStreamTranslator creates a translator for one stream.
func NewStreamTranslator(provider string) *StreamTranslator {
	return &StreamTranslator{provider: provider, toolIndex: make(map[int]int)}
}

// Translate returns the chunk for event, or nil when the event carries
// nothing for the client. An in-band error event is returned as a
// *providers.StreamError.
func (t *StreamTranslator) Translate(event *StreamEvent) (*providers.StreamChunk, error) {
	switch event.Type {
	case "message_start":
		if event.Message == nil {
			return nil, nil
		}
		t.id = event.Message.ID
		t.model = event.Message.Model
		t.inputTokens = event.Message.Usage.InputTokens
		return t.chunk(func(c *providers.StreamChunk) { c.Role = providers.RoleAssistant }), nil

	case "content_block_start":
		block := event.ContentBlock
		if block == nil || block.Type != "tool_use" {
			return nil, nil
		}
		index := len(t.toolIndex)
		t.toolIndex[event.Index] = index
		return t.chunk(func(c *providers.StreamChunk) {
			c.ToolCalls = []providers.ToolCall{{
				Index:    index,
				ID:       block.ID,
				Type:     providers.ToolTypeFunction,
				Function: providers.FunctionCall{Name: block.Name},
			}}
		}), nil

	case "content_block_delta":
		if event.Delta == nil {
			return nil, nil
		}
		switch event.Delta.Type {
		case "text_delta":
			if event.Delta.Text == "" {
				return nil, nil
			}
			return t.chunk(func(c *providers.StreamChunk) { c.Delta = event.Delta.Text }), nil
		case "input_json_delta":
			index, ok := t.toolIndex[event.Index]
			if !ok || event.Delta.PartialJSON == "" {
				return nil, nil
			}
			return t.chunk(func(c *providers.StreamChunk) {
				c.ToolCalls = []providers.ToolCall{{
					Index:    index,
					Function: providers.FunctionCall{Arguments: event.Delta.PartialJSON},
				}}
			}), nil
		}
		return nil, nil

	case "message_delta":
		return t.chunk(func(c *providers.StreamChunk) {
			if event.Delta != nil {
				c.FinishReason = normalizeStopReason(event.Delta.StopReason)
			}
			if event.Usage != nil {
				c.Usage = &providers.TokenUsage{
					PromptTokens:     t.inputTokens,
					CompletionTokens: event.Usage.OutputTokens,
					TotalTokens:      t.inputTokens + event.Usage.OutputTokens,
				}
			}
		}), nil

	case "error":
		streamErr := &providers.StreamError{Provider: t.provider, Message: "upstream reported an error"}
		if event.Error != nil {
			streamErr.Type = event.Error.Type
			streamErr.Message = event.Error.Message
		}
		return nil, streamErr
	}

	// ping, content_block_stop, message_stop and event types added later.
	return nil, nil
}

func (t *StreamTranslator) chunk(fill func(*providers.StreamChunk)) *providers.StreamChunk {
	c := &providers.StreamChunk{ID: t.id, Model: t.model}
	fill(c)
	return c
}

// normalizeStopReason maps Messages API stop reasons to neutral values.
func normalizeStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return providers.FinishReasonStop
	case "max_tokens":
		return providers.FinishReasonLength
	case "tool_use":
		return providers.FinishReasonToolCalls
	case "refusal":
		return providers.FinishReasonContentFilter
	default:
		return reason
	}
}
