package types

import "fmt"

// ChatCompletionRequest is an OpenAI-compatible chat completion request.
type ChatCompletionRequest struct {
	// Model is the ID of the model to use (e.g., "gpt-4o", "claude-3-5-sonnet").
	Model string `json:"model"`

	// Messages is the conversation history.
	Messages []Message `json:"messages"`

	// Temperature controls randomness (0.0 to 2.0).
	Temperature *float64 `json:"temperature,omitempty"`

	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens *int `json:"max_tokens,omitempty"`

	// TopP controls nucleus sampling (0.0 to 1.0).
	TopP *float64 `json:"top_p,omitempty"`

	// N is the number of completions. Only 1 is supported.
	N *int `json:"n,omitempty"`

	// Stream selects an incremental response.
	Stream bool `json:"stream,omitempty"`

	// StreamOptions is accepted for SDK compatibility. Usage is always
	// reported on the final streamed chunk when the upstream provides it.
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`

	// Stop is up to 4 sequences where generation stops.
	Stop []string `json:"stop,omitempty"`

	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`

	// User identifies the end user to the upstream.
	User string `json:"user,omitempty"`

	Tools []Tool `json:"tools,omitempty"`

	// ToolChoice is "none", "auto", "required" or
	// {"type": "function", "function": {"name": "my_function"}}.
	ToolChoice any `json:"tool_choice,omitempty"`

	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	Seed           *int            `json:"seed,omitempty"`
}

// StreamOptions configures streamed responses.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// Message is a single message in a conversation.
type Message struct {
	// Role is "system", "user", "assistant" or "tool".
	Role string `json:"role"`

	// Content is a string or an array of content parts.
	Content any `json:"content"`

	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Tool is a function the model can call.
type Tool struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes a callable function.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolCall is a function call made by the model. Index is set on streamed
// fragments only.
type ToolCall struct {
	Index    *int         `json:"index,omitempty"`
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the function name and JSON arguments.
type FunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}

// ResponseFormat specifies the format of the model's output.
type ResponseFormat struct {
	// Type is "text" or "json_object".
	Type string `json:"type"`
}

var validRoles = map[string]bool{
	"system":    true,
	"user":      true,
	"assistant": true,
	"tool":      true,
}

// Validate checks required fields and value ranges.
func (r *ChatCompletionRequest) Validate() error {
	if r.Model == "" {
		return &ValidationError{Field: "model", Message: "model is required", Missing: true}
	}
	if len(r.Messages) == 0 {
		return &ValidationError{Field: "messages", Message: "messages must contain at least one message", Missing: true}
	}
	if r.Temperature != nil && (*r.Temperature < 0.0 || *r.Temperature > 2.0) {
		return &ValidationError{Field: "temperature", Message: "temperature must be between 0.0 and 2.0"}
	}
	if r.TopP != nil && (*r.TopP < 0.0 || *r.TopP > 1.0) {
		return &ValidationError{Field: "top_p", Message: "top_p must be between 0.0 and 1.0"}
	}
	if r.MaxTokens != nil && *r.MaxTokens < 1 {
		return &ValidationError{Field: "max_tokens", Message: "max_tokens must be greater than 0"}
	}
	if r.N != nil && *r.N != 1 {
		return &ValidationError{Field: "n", Message: "only n=1 is supported"}
	}
	if len(r.Stop) > 4 {
		return &ValidationError{Field: "stop", Message: "stop sequences must not exceed 4"}
	}
	if r.PresencePenalty != nil && (*r.PresencePenalty < -2.0 || *r.PresencePenalty > 2.0) {
		return &ValidationError{Field: "presence_penalty", Message: "presence_penalty must be between -2.0 and 2.0"}
	}
	if r.FrequencyPenalty != nil && (*r.FrequencyPenalty < -2.0 || *r.FrequencyPenalty > 2.0) {
		return &ValidationError{Field: "frequency_penalty", Message: "frequency_penalty must be between -2.0 and 2.0"}
	}

	for i, msg := range r.Messages {
		field := fmt.Sprintf("messages[%d]", i)
		switch {
		case msg.Role == "":
			return &ValidationError{Field: field + ".role", Message: "message role is required", Missing: true}
		case !validRoles[msg.Role]:
			return &ValidationError{Field: field + ".role", Message: fmt.Sprintf("unsupported role %q", msg.Role)}
		case msg.Content == nil && len(msg.ToolCalls) == 0:
			return &ValidationError{Field: field + ".content", Message: "message content is required when no tool_calls present", Missing: true}
		case msg.Role == "tool" && msg.ToolCallID == "":
			return &ValidationError{Field: field + ".tool_call_id", Message: "tool messages require tool_call_id", Missing: true}
		}
	}

	for i, tool := range r.Tools {
		if tool.Function.Name == "" {
			return &ValidationError{Field: fmt.Sprintf("tools[%d].function.name", i), Message: "tool function name is required", Missing: true}
		}
	}
	return nil
}

// ValidationError is a request validation failure.
type ValidationError struct {
	Field   string
	Message string

	// Missing is set when a required field is absent rather than invalid.
	Missing bool
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Message
}
