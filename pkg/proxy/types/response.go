package types

// ChatCompletionResponse is a non-streamed chat completion.
type ChatCompletionResponse struct {
	// ID is a unique identifier for the chat completion.
	ID string `json:"id"`

	// Object is always "chat.completion".
	Object string `json:"object"`

	// Created is the Unix timestamp of when the completion was created.
	Created int64 `json:"created"`

	// Model echoes the requested model.
	Model string `json:"model"`

	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`

	SystemFingerprint string `json:"system_fingerprint,omitempty"`
}

// Choice is a single completion choice.
type Choice struct {
	Index   int     `json:"index"`
	Message Message `json:"message"`

	// FinishReason is "stop", "length", "tool_calls" or "content_filter".
	FinishReason string `json:"finish_reason"`

	LogProbs any `json:"logprobs,omitempty"`
}

// Usage contains token usage statistics.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionStreamChunk is one event of a streamed completion.
type ChatCompletionStreamChunk struct {
	ID string `json:"id"`

	// Object is always "chat.completion.chunk".
	Object string `json:"object"`

	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`

	// Usage is set on the final chunk when the upstream reports it.
	Usage *Usage `json:"usage,omitempty"`

	SystemFingerprint string `json:"system_fingerprint,omitempty"`
}

// StreamChoice is a single choice in a streamed chunk.
type StreamChoice struct {
	Index int   `json:"index"`
	Delta Delta `json:"delta"`

	// FinishReason is null until the final chunk.
	FinishReason *string `json:"finish_reason"`

	LogProbs any `json:"logprobs,omitempty"`
}

// Delta is the incremental content of a streamed chunk.
type Delta struct {
	// Role is set on the first chunk only.
	Role string `json:"role,omitempty"`

	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}
