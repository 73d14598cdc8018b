// Package providerfactory builds upstream providers from configuration and
// routes models to them by name prefix.
package providerfactory

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/providers/anthropic"
	"mercator-hq/relay/pkg/providers/openai"
)

// Options are shared by every provider a manager builds.
type Options struct {
	// WrapTransport decorates each provider's transport (tracing).
	WrapTransport func(http.RoundTripper) http.RoundTripper

	// Observer receives provider telemetry (metrics).
	Observer providers.Observer

	// DisableHealthChecks skips the background health checkers.
	DisableHealthChecks bool
}

// NewProvider creates the adapter selected by config.Type. An empty type
// is inferred from the provider name.
//
// Supported types:
//   - "anthropic": Anthropic Messages API
//   - "openai": OpenAI and OpenAI-compatible upstreams (vLLM, Ollama, LM Studio)
func NewProvider(config providers.ProviderConfig) (providers.Provider, error) {
	if config.Type == "" {
		config.Type = inferProviderType(config.Name)
	}

	var (
		provider providers.Provider
		err      error
	)
	switch config.Type {
	case "anthropic":
		provider, err = anthropic.NewProvider(config)
	case "openai":
		provider, err = openai.NewProvider(config)
	default:
		return nil, &providers.ConfigError{
			Provider: config.Name,
			Field:    "type",
			Message:  fmt.Sprintf("unsupported provider type: %q (supported: anthropic, openai)", config.Type),
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create provider %q: %w", config.Name, err)
	}

	slog.Info("provider created",
		"component", "providerfactory",
		"name", config.Name,
		"type", config.Type,
		"base_url", config.BaseURL,
	)
	return provider, nil
}

// healthCheckStarter is implemented by adapters built on HTTPProvider.
type healthCheckStarter interface {
	StartHealthChecker(ctx context.Context, probe providers.HealthProbe)
}

// NewProviderWithHealthCheck creates a provider and starts its health
// checker, which stops when ctx is cancelled or the provider is closed.
func NewProviderWithHealthCheck(ctx context.Context, config providers.ProviderConfig) (providers.Provider, error) {
	provider, err := NewProvider(config)
	if err != nil {
		return nil, err
	}
	if hcs, ok := provider.(healthCheckStarter); ok {
		hcs.StartHealthChecker(ctx, provider.HealthCheck)
	}
	return provider, nil
}

// ProviderConfig converts one entry of the configuration file.
func ProviderConfig(name string, pc config.ProviderConfig, opts Options) providers.ProviderConfig {
	return providers.ProviderConfig{
		Name:             name,
		Type:             pc.Type,
		BaseURL:          pc.BaseURL,
		APIKey:           pc.APIKey,
		APIVersion:       pc.APIVersion,
		DefaultMaxTokens: pc.DefaultMaxTokens,
		Timeout:          pc.Timeout,
		MaxRetries:       pc.MaxRetries,
		WrapTransport:    opts.WrapTransport,
		Observer:         opts.Observer,
	}
}

// inferProviderType maps well-known names to adapter types. Everything
// else is assumed to speak the OpenAI protocol.
func inferProviderType(name string) string {
	switch name {
	case "anthropic", "claude":
		return "anthropic"
	default:
		return "openai"
	}
}
