package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RELAY_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML and applies defaults without validating.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention RELAY_SECTION_FIELD (e.g., RELAY_PROXY_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	applyEnvOverrides(cfg)
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Proxy overrides
	envString("PROXY_LISTEN_ADDRESS", &cfg.Proxy.ListenAddress)
	envDuration("PROXY_READ_TIMEOUT", &cfg.Proxy.ReadTimeout)
	envDuration("PROXY_WRITE_TIMEOUT", &cfg.Proxy.WriteTimeout)
	envDuration("PROXY_IDLE_TIMEOUT", &cfg.Proxy.IdleTimeout)
	envInt("PROXY_MAX_HEADER_BYTES", &cfg.Proxy.MaxHeaderBytes)

	// Provider overrides for the built-in adapters and any configured name.
	names := map[string]bool{"openai": true, "anthropic": true}
	for name := range cfg.Providers {
		names[name] = true
	}
	for name := range names {
		applyProviderEnvOverrides(cfg, name)
	}

	// Routing overrides
	envString("ROUTING_DEFAULT_PROVIDER", &cfg.Routing.DefaultProvider)

	// Timeout overrides are whole milliseconds.
	envMillis("TIMEOUTS_BASE_MS", &cfg.Timeouts.Base)
	envMillis("TIMEOUTS_STREAMING_MS", &cfg.Timeouts.Streaming)
	envMillis("TIMEOUTS_MAX_MS", &cfg.Timeouts.Max)
	envMillis("TIMEOUTS_INACTIVITY_MS", &cfg.Timeouts.Inactivity)

	// Diagnostics overrides
	envBool("DIAGNOSTICS_ENABLED", &cfg.Diagnostics.Enabled)
	envString("DIAGNOSTICS_SWEEP_SCHEDULE", &cfg.Diagnostics.SweepSchedule)

	// Limits overrides
	envBool("LIMITS_RATE_LIMIT_ENABLED", &cfg.Limits.RateLimit.Enabled)
	envInt("LIMITS_RATE_LIMIT_REQUESTS", &cfg.Limits.RateLimit.Requests)
	envDuration("LIMITS_RATE_LIMIT_WINDOW", &cfg.Limits.RateLimit.Window)
	envInt("LIMITS_RATE_LIMIT_MAX_CONCURRENT", &cfg.Limits.RateLimit.MaxConcurrent)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	envString("TELEMETRY_TRACING_SAMPLER", &cfg.Telemetry.Tracing.Sampler)
	if val := os.Getenv(EnvPrefix + "TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}

	// Security overrides
	envBool("SECURITY_TLS_ENABLED", &cfg.Security.TLS.Enabled)
	envString("SECURITY_TLS_CERT_FILE", &cfg.Security.TLS.CertFile)
	envString("SECURITY_TLS_KEY_FILE", &cfg.Security.TLS.KeyFile)
	envBool("SECURITY_AUTHENTICATION_ENABLED", &cfg.Security.Authentication.Enabled)
}

// applyProviderEnvOverrides applies environment variable overrides for a specific provider.
// Provider environment variables follow the format RELAY_PROVIDERS_<NAME>_<FIELD>
// where NAME is the uppercase provider name.
func applyProviderEnvOverrides(cfg *Config, providerName string) {
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}

	provider, exists := cfg.Providers[providerName]
	prefix := fmt.Sprintf("PROVIDERS_%s_", strings.ToUpper(providerName))

	modified := envString(prefix+"BASE_URL", &provider.BaseURL)
	modified = envString(prefix+"API_KEY", &provider.APIKey) || modified
	modified = envDuration(prefix+"TIMEOUT", &provider.Timeout) || modified
	modified = envInt(prefix+"MAX_RETRIES", &provider.MaxRetries) || modified

	// Only update the map if we found at least one override
	if modified || exists {
		cfg.Providers[providerName] = provider
	}
}

func envString(name string, dst *string) bool {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		*dst = val
		return true
	}
	return false
}

func envBool(name string, dst *bool) bool {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
			return true
		}
	}
	return false
}

func envInt(name string, dst *int) bool {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
			return true
		}
	}
	return false
}

func envDuration(name string, dst *time.Duration) bool {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
			return true
		}
	}
	return false
}

func envMillis(name string, dst *time.Duration) bool {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if ms, err := strconv.ParseInt(val, 10, 64); err == nil {
			*dst = time.Duration(ms) * time.Millisecond
			return true
		}
	}
	return false
}
