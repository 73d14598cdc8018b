package config

import (
	"time"

	"mercator-hq/relay/pkg/lifecycle"
)

// Config is the root configuration structure for Mercator Relay.
type Config struct {
	// Proxy contains HTTP server configuration including listen address,
	// server timeouts and body limits.
	Proxy ProxyConfig `yaml:"proxy"`

	// Providers contains configuration for upstream LLM providers.
	// Keys are provider names (e.g., "openai", "anthropic").
	Providers map[string]ProviderConfig `yaml:"providers"`

	// Routing selects the provider for a model.
	Routing RoutingConfig `yaml:"routing"`

	// Timeouts bound every response. They can be changed at runtime by
	// editing the configuration file; new values apply to new requests.
	Timeouts TimeoutsConfig `yaml:"timeouts"`

	// Diagnostics configures the in-flight request registry and its sweep.
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`

	// Limits contains request rate limiting.
	Limits LimitsConfig `yaml:"limits"`

	// Telemetry contains logging, metrics, tracing and health endpoints.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Security contains TLS and client authentication.
	Security SecurityConfig `yaml:"security"`
}

// ProxyConfig contains HTTP server configuration.
type ProxyConfig struct {
	// ListenAddress is the address to bind to (e.g., "127.0.0.1:8080").
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the server-level write deadline. Zero leaves response
	// deadlines to the lifecycle timeouts, which streaming requires.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum time to wait for the next keep-alive request.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header size.
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxBodyBytes limits request body size.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// CORS contains Cross-Origin Resource Sharing settings.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS settings.
type CORSConfig struct {
	Enabled          bool     `yaml:"enabled"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	ExposedHeaders   []string `yaml:"exposed_headers"`
	MaxAge           int      `yaml:"max_age"`
	AllowCredentials bool     `yaml:"allow_credentials"`
}

// ProviderConfig contains configuration for one upstream provider.
type ProviderConfig struct {
	// Type selects the wire adapter: "anthropic" or "openai". Defaults to
	// the provider name when that is a known type.
	Type string `yaml:"type"`

	// BaseURL is the provider's API endpoint.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates to the provider.
	APIKey string `yaml:"api_key"`

	// Timeout bounds a single upstream HTTP call.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the number of retries for failed non-streaming calls.
	MaxRetries int `yaml:"max_retries"`

	// APIVersion is sent as the anthropic-version header.
	APIVersion string `yaml:"api_version,omitempty"`

	// DefaultMaxTokens is used when a request does not set max_tokens and
	// the upstream requires it.
	DefaultMaxTokens int `yaml:"default_max_tokens,omitempty"`
}

// RoutingConfig maps models to providers.
type RoutingConfig struct {
	// DefaultProvider serves models no prefix matches.
	DefaultProvider string `yaml:"default_provider"`

	// ModelPrefixes maps a model-name prefix to a provider name. The
	// longest matching prefix wins.
	ModelPrefixes map[string]string `yaml:"model_prefixes"`
}

// TimeoutsConfig bounds response lifetimes. Max caps every other value.
type TimeoutsConfig struct {
	// Base is the absolute limit from request start.
	Base time.Duration `yaml:"base_timeout"`

	// Streaming is the limit from the first streamed byte.
	Streaming time.Duration `yaml:"streaming_timeout"`

	// Max caps Base, Streaming and Inactivity.
	Max time.Duration `yaml:"max_timeout"`

	// Inactivity is the longest allowed gap between streamed events.
	Inactivity time.Duration `yaml:"inactivity_timeout"`
}

// Lifecycle converts the configuration to lifecycle timeouts.
func (t TimeoutsConfig) Lifecycle() lifecycle.TimeoutConfig {
	return lifecycle.TimeoutConfig{
		Base:       t.Base,
		Streaming:  t.Streaming,
		Max:        t.Max,
		Inactivity: t.Inactivity,
	}
}

// DiagnosticsConfig configures the request registry.
type DiagnosticsConfig struct {
	// Enabled mounts the diagnostics endpoints and starts the sweep.
	Enabled bool `yaml:"enabled"`

	// PathPrefix is where the endpoints are mounted.
	PathPrefix string `yaml:"path_prefix"`

	// SweepSchedule is a cron expression or descriptor (e.g., "@every 30s").
	SweepSchedule string `yaml:"sweep_schedule"`

	// GracePeriod keeps terminated requests readable before eviction.
	GracePeriod time.Duration `yaml:"grace_period"`

	// Hanging contains the thresholds that flag a live request.
	Hanging HangingConfig `yaml:"hanging"`

	// Alerts contains the rates, in percent, that trigger sweep warnings.
	Alerts AlertsConfig `yaml:"alerts"`
}

// HangingConfig contains hanging-request thresholds.
type HangingConfig struct {
	MaxAge           time.Duration `yaml:"max_age"`
	MaxInactivity    time.Duration `yaml:"max_inactivity"`
	MaxTimeoutEvents int           `yaml:"max_timeout_events"`
	MaxResources     int           `yaml:"max_resources"`
}

// AlertsConfig contains sweep alert thresholds in percent.
type AlertsConfig struct {
	HangingRate         float64 `yaml:"hanging_rate"`
	LeakRate            float64 `yaml:"leak_rate"`
	RaceRate            float64 `yaml:"race_rate"`
	TimeoutConflictRate float64 `yaml:"timeout_conflict_rate"`
}

// LimitsConfig contains request limits.
type LimitsConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig configures the fixed-window request limiter.
type RateLimitConfig struct {
	// Enabled turns rate limiting on.
	Enabled bool `yaml:"enabled"`

	// Requests is the number of requests allowed per window.
	Requests int `yaml:"requests"`

	// Window is the window length.
	Window time.Duration `yaml:"window"`

	// KeyBy selects the limiting identity: "api_key" or "ip".
	KeyBy string `yaml:"key_by"`

	// MaxConcurrent bounds simultaneous requests. Zero means no limit.
	MaxConcurrent int `yaml:"max_concurrent"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
	Health  HealthConfig  `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `yaml:"level"`

	// Format is "json" or "text".
	Format string `yaml:"format"`

	// AddSource includes file:line in log entries.
	AddSource bool `yaml:"add_source"`

	// RedactSecrets masks API keys and bearer tokens.
	RedactSecrets bool `yaml:"redact_secrets"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled turns metrics collection on.
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for metrics exposition.
	Path string `yaml:"path"`

	// Namespace is the Prometheus metric namespace.
	Namespace string `yaml:"namespace"`

	// Subsystem is the Prometheus metric subsystem.
	Subsystem string `yaml:"subsystem"`

	// RequestDurationBuckets are histogram buckets in seconds.
	RequestDurationBuckets []float64 `yaml:"request_duration_buckets"`
}

// TracingConfig contains OpenTelemetry tracing configuration.
type TracingConfig struct {
	// Enabled turns tracing on.
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector address.
	Endpoint string `yaml:"endpoint"`

	// ServiceName identifies this service in traces.
	ServiceName string `yaml:"service_name"`

	// Sampler is "always", "never" or "ratio".
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces sampled (0.0 to 1.0) when
	// Sampler is "ratio".
	SampleRatio float64 `yaml:"sample_ratio"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`

	// Timeout bounds span export.
	Timeout time.Duration `yaml:"timeout"`
}

// HealthConfig contains health endpoint paths.
type HealthConfig struct {
	LivenessPath  string `yaml:"liveness_path"`
	ReadinessPath string `yaml:"readiness_path"`
}

// SecurityConfig contains security configuration.
type SecurityConfig struct {
	TLS            TLSConfig            `yaml:"tls"`
	Authentication AuthenticationConfig `yaml:"authentication"`
}

// TLSConfig contains server TLS configuration.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	// MinVersion is "1.2" or "1.3".
	MinVersion string `yaml:"min_version"`
}

// AuthenticationConfig contains client API key authentication.
type AuthenticationConfig struct {
	// Enabled requires every proxied request to carry a known key.
	Enabled bool `yaml:"enabled"`

	// Header is where the key is read from. "Authorization" expects the
	// Bearer scheme.
	Header string `yaml:"header"`

	// Keys are the accepted client keys.
	Keys []APIKeyConfig `yaml:"keys"`
}

// APIKeyConfig is one accepted client key.
type APIKeyConfig struct {
	Key      string `yaml:"key"`
	UserID   string `yaml:"user_id"`
	Disabled bool   `yaml:"disabled"`
}
