package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"mercator-hq/relay/pkg/providers"
)

// DefaultBaseURL is used when the configuration sets none.
const DefaultBaseURL = "https://api.openai.com/v1"

// Provider talks to OpenAI or any OpenAI-compatible upstream (vLLM,
// Ollama, LM Studio). The API key is optional for local upstreams.
type Provider struct {
	*providers.HTTPProvider
}

var _ providers.Provider = (*Provider)(nil)

// NewProvider creates an OpenAI-compatible provider.
func NewProvider(config providers.ProviderConfig) (*Provider, error) {
	if config.Name == "" {
		return nil, &providers.ConfigError{
			Provider: "openai",
			Field:    "name",
			Message:  "provider name is required",
		}
	}
	if config.Type == "" {
		config.Type = "openai"
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 100
	}
	if config.MaxIdleConnsPerHost == 0 {
		config.MaxIdleConnsPerHost = 10
	}

	p := &Provider{HTTPProvider: providers.NewHTTPProvider(config)}
	return p, nil
}

func (p *Provider) headers(stream bool) map[string]string {
	h := map[string]string{"Content-Type": "application/json"}
	if key := p.Config().APIKey; key != "" {
		h["Authorization"] = "Bearer " + key
	}
	if stream {
		h["Accept"] = "text/event-stream"
	}
	return h
}

// SendCompletion performs a chat completion.
func (p *Provider) SendCompletion(ctx context.Context, req *providers.CompletionRequest) (resp *providers.CompletionResponse, err error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { p.Observe(req.Model, start, err) }()

	upstreamReq := toChatRequest(req)
	upstreamReq.Stream = false
	upstreamReq.StreamOptions = nil

	var upstreamResp chatResponse
	url := p.Config().BaseURL + "/chat/completions"
	if err := p.DoJSONRequest(ctx, "POST", url, upstreamReq, &upstreamResp, p.headers(false)); err != nil {
		return nil, err
	}

	resp, err = fromChatResponse(&upstreamResp)
	if err != nil {
		return nil, &providers.ParseError{Provider: p.Name(), Cause: err}
	}
	return resp, nil
}

// StreamCompletion starts a streaming chat completion. The error return
// covers failures before the first byte; later failures arrive as an
// error chunk.
func (p *Provider) StreamCompletion(ctx context.Context, req *providers.CompletionRequest) (<-chan *providers.StreamChunk, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	start := time.Now()

	upstreamReq := toChatRequest(req)
	upstreamReq.Stream = true
	upstreamReq.StreamOptions = &streamOptions{IncludeUsage: true}
	body, err := json.Marshal(upstreamReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := p.DoRequest(ctx, "POST", p.Config().BaseURL+"/chat/completions", body, p.headers(true))
	p.Observe(req.Model, start, err)
	if err != nil {
		return nil, err
	}
	return providers.Pump(ctx, newStreamReader(p.Name(), resp), 100), nil
}

// HealthCheck lists models, which every compatible upstream serves.
func (p *Provider) HealthCheck(ctx context.Context) error {
	return p.Probe(ctx, p.Config().BaseURL+"/models", p.headers(false))
}

// validateRequest checks the fields every upstream requires.
func validateRequest(req *providers.CompletionRequest) error {
	if req == nil {
		return &providers.ValidationError{Field: "request", Message: "request cannot be nil"}
	}
	if req.Model == "" {
		return &providers.ValidationError{Field: "model", Message: "model is required"}
	}
	if len(req.Messages) == 0 {
		return &providers.ValidationError{Field: "messages", Message: "at least one message is required"}
	}
	return nil
}
