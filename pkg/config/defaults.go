package config

import (
	"time"

	"mercator-hq/relay/pkg/diagnostics"
	"mercator-hq/relay/pkg/lifecycle"
)

// Default values for configuration fields.
const (
	// Proxy defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576  // 1MB
	DefaultMaxBodyBytes    = 10485760 // 10MB

	// CORS defaults
	DefaultCORSMaxAge = 3600

	// Provider defaults
	DefaultProviderTimeout    = 60 * time.Second
	DefaultProviderMaxRetries = 3
	DefaultAnthropicVersion   = "2023-06-01"
	DefaultMaxTokens          = 4096

	// Diagnostics defaults
	DefaultDiagnosticsPathPrefix = diagnostics.DefaultPrefix
	DefaultSweepSchedule         = diagnostics.DefaultSchedule

	// Rate limit defaults
	DefaultRateLimitRequests = 60
	DefaultRateLimitWindow   = time.Minute
	DefaultRateLimitKeyBy    = "api_key"

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultPrometheusPath     = "/metrics"
	DefaultMetricsNamespace   = "mercator"
	DefaultMetricsSubsystem   = "relay"
	DefaultTracingServiceName = "mercator-relay"
	DefaultTracingSampler     = "ratio"
	DefaultTracingTimeout     = 10 * time.Second
	DefaultLivenessPath       = "/health"
	DefaultReadinessPath      = "/ready"

	// Security defaults
	DefaultTLSMinVersion = "1.2"
	DefaultAuthHeader    = "Authorization"
)

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Proxy defaults
	if cfg.Proxy.ListenAddress == "" {
		cfg.Proxy.ListenAddress = DefaultListenAddress
	}
	if cfg.Proxy.ReadTimeout == 0 {
		cfg.Proxy.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Proxy.IdleTimeout == 0 {
		cfg.Proxy.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Proxy.ShutdownTimeout == 0 {
		cfg.Proxy.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Proxy.MaxHeaderBytes == 0 {
		cfg.Proxy.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Proxy.MaxBodyBytes == 0 {
		cfg.Proxy.MaxBodyBytes = DefaultMaxBodyBytes
	}

	// CORS defaults
	if len(cfg.Proxy.CORS.AllowedOrigins) == 0 {
		cfg.Proxy.CORS.AllowedOrigins = []string{"*"}
	}
	if len(cfg.Proxy.CORS.AllowedMethods) == 0 {
		cfg.Proxy.CORS.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.Proxy.CORS.AllowedHeaders) == 0 {
		cfg.Proxy.CORS.AllowedHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	}
	if len(cfg.Proxy.CORS.ExposedHeaders) == 0 {
		cfg.Proxy.CORS.ExposedHeaders = []string{"X-Request-ID", "Retry-After"}
	}
	if cfg.Proxy.CORS.MaxAge == 0 {
		cfg.Proxy.CORS.MaxAge = DefaultCORSMaxAge
	}

	// Provider defaults - applied to each provider
	for name, provider := range cfg.Providers {
		if provider.Type == "" {
			provider.Type = name
		}
		if provider.Timeout == 0 {
			provider.Timeout = DefaultProviderTimeout
		}
		if provider.MaxRetries == 0 {
			provider.MaxRetries = DefaultProviderMaxRetries
		}
		if provider.Type == "anthropic" {
			if provider.APIVersion == "" {
				provider.APIVersion = DefaultAnthropicVersion
			}
			if provider.DefaultMaxTokens == 0 {
				provider.DefaultMaxTokens = DefaultMaxTokens
			}
		}
		cfg.Providers[name] = provider
	}

	// Routing defaults: a single provider serves everything.
	if cfg.Routing.DefaultProvider == "" && len(cfg.Providers) == 1 {
		for name := range cfg.Providers {
			cfg.Routing.DefaultProvider = name
		}
	}

	// Timeout defaults
	d := lifecycle.DefaultTimeouts()
	if cfg.Timeouts.Base == 0 {
		cfg.Timeouts.Base = d.Base
	}
	if cfg.Timeouts.Streaming == 0 {
		cfg.Timeouts.Streaming = d.Streaming
	}
	if cfg.Timeouts.Max == 0 {
		cfg.Timeouts.Max = d.Max
	}
	if cfg.Timeouts.Inactivity == 0 {
		cfg.Timeouts.Inactivity = d.Inactivity
	}

	// Diagnostics defaults
	if cfg.Diagnostics.PathPrefix == "" {
		cfg.Diagnostics.PathPrefix = DefaultDiagnosticsPathPrefix
	}
	if cfg.Diagnostics.SweepSchedule == "" {
		cfg.Diagnostics.SweepSchedule = DefaultSweepSchedule
	}
	if cfg.Diagnostics.GracePeriod == 0 {
		cfg.Diagnostics.GracePeriod = diagnostics.DefaultGracePeriod
	}
	th := diagnostics.DefaultThresholds()
	if cfg.Diagnostics.Hanging.MaxAge == 0 {
		cfg.Diagnostics.Hanging.MaxAge = th.MaxAge
	}
	if cfg.Diagnostics.Hanging.MaxInactivity == 0 {
		cfg.Diagnostics.Hanging.MaxInactivity = th.MaxInactivity
	}
	if cfg.Diagnostics.Hanging.MaxTimeoutEvents == 0 {
		cfg.Diagnostics.Hanging.MaxTimeoutEvents = th.MaxTimeoutEvents
	}
	if cfg.Diagnostics.Hanging.MaxResources == 0 {
		cfg.Diagnostics.Hanging.MaxResources = th.MaxResources
	}
	alerts := diagnostics.DefaultAlertThresholds()
	if cfg.Diagnostics.Alerts == (AlertsConfig{}) {
		cfg.Diagnostics.Alerts = AlertsConfig{
			HangingRate:         alerts.HangingRate,
			LeakRate:            alerts.LeakRate,
			RaceRate:            alerts.RaceRate,
			TimeoutConflictRate: alerts.TimeoutConflictRate,
		}
	}

	// Rate limit defaults
	if cfg.Limits.RateLimit.Requests == 0 {
		cfg.Limits.RateLimit.Requests = DefaultRateLimitRequests
	}
	if cfg.Limits.RateLimit.Window == 0 {
		cfg.Limits.RateLimit.Window = DefaultRateLimitWindow
	}
	if cfg.Limits.RateLimit.KeyBy == "" {
		cfg.Limits.RateLimit.KeyBy = DefaultRateLimitKeyBy
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultPrometheusPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = 1.0
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingTimeout
	}
	if cfg.Telemetry.Health.LivenessPath == "" {
		cfg.Telemetry.Health.LivenessPath = DefaultLivenessPath
	}
	if cfg.Telemetry.Health.ReadinessPath == "" {
		cfg.Telemetry.Health.ReadinessPath = DefaultReadinessPath
	}

	// Security defaults
	if cfg.Security.TLS.MinVersion == "" {
		cfg.Security.TLS.MinVersion = DefaultTLSMinVersion
	}
	if cfg.Security.Authentication.Header == "" {
		cfg.Security.Authentication.Header = DefaultAuthHeader
	}
}

// Default returns a configuration with every default applied and no
// providers. It is the starting point for tests and for running without a
// configuration file.
func Default() *Config {
	cfg := &Config{
		Diagnostics: DiagnosticsConfig{Enabled: true},
		Telemetry:   TelemetryConfig{Metrics: MetricsConfig{Enabled: true}},
		Providers:   map[string]ProviderConfig{},
	}
	ApplyDefaults(cfg)
	return cfg
}
