package providers

import (
	"net/http"
	"time"
)

// Message is a single conversation message in the relay's neutral form.
type Message struct {
	// Role identifies the sender (system, user, assistant, tool).
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`

	// Name is an optional participant name.
	Name string `json:"name,omitempty"`

	// ToolCalls are calls made by an assistant message.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool message to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCall is a function call requested by the model.
type ToolCall struct {
	// Index positions a streamed call fragment within the response.
	Index int `json:"index"`

	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the function name and JSON-encoded arguments.
// Streamed fragments carry partial arguments.
type FunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}

// Tool is a function the model may call.
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

// TokenUsage reports token consumption.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionRequest is a chat completion request in neutral form. Adapters
// translate it to their upstream schema.
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
	Tools       []Tool    `json:"tools,omitempty"`

	// ToolChoice is "none", "auto", "required" or
	// {"type": "function", "function": {"name": "..."}}.
	ToolChoice any `json:"tool_choice,omitempty"`

	Stop             []string `json:"stop,omitempty"`
	PresencePenalty  float64  `json:"presence_penalty,omitempty"`
	FrequencyPenalty float64  `json:"frequency_penalty,omitempty"`
	User             string   `json:"user,omitempty"`

	// Metadata is relay-internal context (request id, client user) and is
	// never sent upstream.
	Metadata map[string]string `json:"-"`
}

// CompletionResponse is a complete, non-streamed response.
type CompletionResponse struct {
	ID           string     `json:"id"`
	Model        string     `json:"model"`
	Content      string     `json:"content"`
	FinishReason string     `json:"finish_reason"`
	Usage        TokenUsage `json:"usage"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	Created      int64      `json:"created"`
}

// StreamChunk is one increment of a streamed response. Exactly one of the
// content fields or Error is meaningful.
type StreamChunk struct {
	ID    string `json:"id"`
	Model string `json:"model"`

	// Role is set on the first chunk of a response.
	Role string `json:"role,omitempty"`

	Delta        string      `json:"delta"`
	FinishReason string      `json:"finish_reason,omitempty"`
	ToolCalls    []ToolCall  `json:"tool_calls,omitempty"`
	Usage        *TokenUsage `json:"usage,omitempty"`
	Created      int64       `json:"created"`

	// Error ends the stream.
	Error error `json:"-"`
}

// ProviderHealth tracks the health of one provider.
type ProviderHealth struct {
	IsHealthy             bool
	LastCheck             time.Time
	LastError             error
	ConsecutiveFailures   int
	LastSuccessfulRequest time.Time
	TotalRequests         int64
	FailedRequests        int64
}

// ProviderConfig configures one provider instance.
type ProviderConfig struct {
	// Name is the configured provider name used in logs, metrics and
	// resource keys.
	Name string

	// Type selects the adapter ("openai", "anthropic").
	Type string

	BaseURL string
	APIKey  string

	// APIVersion is the upstream API version header, where one applies.
	APIVersion string

	// DefaultMaxTokens fills max_tokens for upstreams that require it.
	DefaultMaxTokens int

	// Timeout bounds the wait for upstream response headers. Streamed
	// bodies are bounded by the request lifecycle instead.
	Timeout time.Duration

	// MaxRetries applies to calls that fail before any body is read.
	MaxRetries int

	// RetryBackoff is the first retry delay; it doubles per attempt.
	RetryBackoff time.Duration

	HealthCheckInterval time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration

	// WrapTransport decorates the pooled transport, e.g. with tracing.
	WrapTransport func(http.RoundTripper) http.RoundTripper

	// Observer receives upstream latency, errors and health changes.
	Observer Observer
}

// Observer receives provider telemetry. *metrics.Collector implements it.
type Observer interface {
	RecordProviderLatency(provider, model string, latencySeconds float64)
	RecordProviderError(provider, errorType string)
	UpdateProviderHealth(provider string, healthy bool)
}

// Message role constants.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Finish reason constants.
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonToolCalls     = "tool_calls"
	FinishReasonContentFilter = "content_filter"
)

// ToolTypeFunction is the only tool type.
const ToolTypeFunction = "function"
