package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"mercator-hq/relay/pkg/providers"
)

const (
	// DefaultBaseURL is used when the configuration sets none.
	DefaultBaseURL = "https://api.anthropic.com"

	// DefaultAPIVersion is sent as anthropic-version when the
	// configuration sets none.
	DefaultAPIVersion = "2023-06-01"
)

// Provider is the Anthropic Messages API adapter.
type Provider struct {
	*providers.HTTPProvider
}

var _ providers.Provider = (*Provider)(nil)

// NewProvider creates an Anthropic provider. An API key is required.
func NewProvider(config providers.ProviderConfig) (*Provider, error) {
	if config.Name == "" {
		return nil, &providers.ConfigError{
			Provider: "anthropic",
			Field:    "name",
			Message:  "provider name is required",
		}
	}
	if config.APIKey == "" {
		return nil, &providers.ConfigError{
			Provider: config.Name,
			Field:    "api_key",
			Message:  "API key is required for Anthropic",
		}
	}
	if config.Type == "" {
		config.Type = "anthropic"
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	if config.APIVersion == "" {
		config.APIVersion = DefaultAPIVersion
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 100
	}
	if config.MaxIdleConnsPerHost == 0 {
		config.MaxIdleConnsPerHost = 10
	}

	return &Provider{HTTPProvider: providers.NewHTTPProvider(config)}, nil
}

func (p *Provider) headers(stream bool) map[string]string {
	cfg := p.Config()
	h := map[string]string{
		"x-api-key":         cfg.APIKey,
		"anthropic-version": cfg.APIVersion,
		"Content-Type":      "application/json",
	}
	if stream {
		h["Accept"] = "text/event-stream"
	}
	return h
}

func (p *Provider) upstreamRequest(req *providers.CompletionRequest, stream bool) (*MessagesRequest, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	out, err := ToUpstreamRequest(req)
	if err != nil {
		return nil, err
	}
	if req.MaxTokens == 0 && p.Config().DefaultMaxTokens > 0 {
		out.MaxTokens = p.Config().DefaultMaxTokens
	}
	out.Stream = stream
	return out, nil
}

// SendCompletion performs a Messages API call.
func (p *Provider) SendCompletion(ctx context.Context, req *providers.CompletionRequest) (resp *providers.CompletionResponse, err error) {
	upstream, err := p.upstreamRequest(req, false)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { p.Observe(req.Model, start, err) }()

	var msg MessagesResponse
	if err := p.DoJSONRequest(ctx, "POST", p.Config().BaseURL+"/v1/messages", upstream, &msg, p.headers(false)); err != nil {
		return nil, err
	}

	resp, err = ToCompletionResponse(&msg)
	if err != nil {
		return nil, &providers.ParseError{Provider: p.Name(), Cause: err}
	}
	return resp, nil
}

// StreamCompletion starts a streaming Messages API call. In-band error
// events arrive as a final chunk carrying a *providers.StreamError.
func (p *Provider) StreamCompletion(ctx context.Context, req *providers.CompletionRequest) (<-chan *providers.StreamChunk, error) {
	upstream, err := p.upstreamRequest(req, true)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(upstream)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	start := time.Now()

	resp, err := p.DoRequest(ctx, "POST", p.Config().BaseURL+"/v1/messages", body, p.headers(true))
	p.Observe(req.Model, start, err)
	if err != nil {
		return nil, err
	}
	return providers.Pump(ctx, newStreamReader(p.Name(), resp), 100), nil
}

// HealthCheck lists models.
func (p *Provider) HealthCheck(ctx context.Context) error {
	return p.Probe(ctx, p.Config().BaseURL+"/v1/models", p.headers(false))
}

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
