package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "proxy.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateProxy(&cfg.Proxy)...)
	errs = append(errs, validateProviders(cfg.Providers)...)
	errs = append(errs, validateRouting(&cfg.Routing, cfg.Providers)...)
	errs = append(errs, validateTimeouts(&cfg.Timeouts)...)
	errs = append(errs, validateDiagnostics(&cfg.Diagnostics)...)
	errs = append(errs, validateLimits(&cfg.Limits)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)
	errs = append(errs, validateSecurity(&cfg.Security)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateProxy validates proxy configuration.
func validateProxy(cfg *ProxyConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "proxy.listen_address",
			Message: "listen address is required",
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "proxy.read_timeout",
			Message: "read timeout must be positive",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "proxy.write_timeout",
			Message: "write timeout must be positive",
		})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "proxy.idle_timeout",
			Message: "idle timeout must be positive",
		})
	}

	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "proxy.max_header_bytes",
			Message: "max header bytes must be non-negative",
		})
	}
	if cfg.MaxHeaderBytes > 10*1024*1024 {
		errs = append(errs, FieldError{
			Field:   "proxy.max_header_bytes",
			Message: "max header bytes exceeds reasonable limit (10MB)",
		})
	}
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "proxy.max_body_bytes",
			Message: "max body bytes must be non-negative",
		})
	}

	return errs
}

var providerTypes = []string{"anthropic", "openai"}

// validateProviders validates provider configurations.
func validateProviders(providers map[string]ProviderConfig) []FieldError {
	var errs []FieldError

	for name, p := range providers {
		prefix := "providers." + name

		if !slices.Contains(providerTypes, p.Type) {
			errs = append(errs, FieldError{
				Field:   prefix + ".type",
				Message: fmt.Sprintf("unknown provider type %q: must be one of %s", p.Type, strings.Join(providerTypes, ", ")),
			})
		}

		if p.BaseURL == "" {
			errs = append(errs, FieldError{
				Field:   prefix + ".base_url",
				Message: "base URL is required",
			})
		} else if u, err := url.Parse(p.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, FieldError{
				Field:   prefix + ".base_url",
				Message: fmt.Sprintf("invalid base URL %q", p.BaseURL),
			})
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs = append(errs, FieldError{
				Field:   prefix + ".base_url",
				Message: fmt.Sprintf("base URL scheme must be http or https, got %q", u.Scheme),
			})
		}

		if p.Timeout < 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".timeout",
				Message: "timeout must be positive",
			})
		}
		if p.MaxRetries < 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".max_retries",
				Message: "max retries must be non-negative",
			})
		}
	}

	return errs
}

// validateRouting checks every routed provider exists.
func validateRouting(cfg *RoutingConfig, providers map[string]ProviderConfig) []FieldError {
	var errs []FieldError

	if cfg.DefaultProvider != "" {
		if _, ok := providers[cfg.DefaultProvider]; !ok {
			errs = append(errs, FieldError{
				Field:   "routing.default_provider",
				Message: fmt.Sprintf("provider %q is not configured", cfg.DefaultProvider),
			})
		}
	}

	for prefix, name := range cfg.ModelPrefixes {
		if _, ok := providers[name]; !ok {
			errs = append(errs, FieldError{
				Field:   "routing.model_prefixes." + prefix,
				Message: fmt.Sprintf("provider %q is not configured", name),
			})
		}
	}

	return errs
}

// validateTimeouts validates lifecycle timeouts.
func validateTimeouts(cfg *TimeoutsConfig) []FieldError {
	var errs []FieldError

	for _, f := range []struct {
		field string
		value int64
	}{
		{"timeouts.base_timeout", int64(cfg.Base)},
		{"timeouts.streaming_timeout", int64(cfg.Streaming)},
		{"timeouts.max_timeout", int64(cfg.Max)},
		{"timeouts.inactivity_timeout", int64(cfg.Inactivity)},
	} {
		if f.value < 0 {
			errs = append(errs, FieldError{Field: f.field, Message: "timeout must be non-negative"})
		}
	}

	return errs
}

// validateDiagnostics validates the registry configuration.
func validateDiagnostics(cfg *DiagnosticsConfig) []FieldError {
	var errs []FieldError

	if cfg.PathPrefix != "" && !strings.HasPrefix(cfg.PathPrefix, "/") {
		errs = append(errs, FieldError{
			Field:   "diagnostics.path_prefix",
			Message: "path prefix must start with /",
		})
	}
	if _, err := cron.ParseStandard(cfg.SweepSchedule); err != nil {
		errs = append(errs, FieldError{
			Field:   "diagnostics.sweep_schedule",
			Message: fmt.Sprintf("invalid schedule %q: %v", cfg.SweepSchedule, err),
		})
	}
	if cfg.GracePeriod < 0 {
		errs = append(errs, FieldError{
			Field:   "diagnostics.grace_period",
			Message: "grace period must be non-negative",
		})
	}
	if cfg.Hanging.MaxTimeoutEvents < 0 || cfg.Hanging.MaxResources < 0 {
		errs = append(errs, FieldError{
			Field:   "diagnostics.hanging",
			Message: "thresholds must be non-negative",
		})
	}

	return errs
}

// validateLimits validates rate limiting.
func validateLimits(cfg *LimitsConfig) []FieldError {
	var errs []FieldError
	rl := cfg.RateLimit

	if rl.Requests < 0 {
		errs = append(errs, FieldError{
			Field:   "limits.rate_limit.requests",
			Message: "requests must be non-negative",
		})
	}
	if rl.Window < 0 {
		errs = append(errs, FieldError{
			Field:   "limits.rate_limit.window",
			Message: "window must be positive",
		})
	}
	if rl.MaxConcurrent < 0 {
		errs = append(errs, FieldError{
			Field:   "limits.rate_limit.max_concurrent",
			Message: "max_concurrent must be non-negative",
		})
	}
	if rl.KeyBy != "api_key" && rl.KeyBy != "ip" {
		errs = append(errs, FieldError{
			Field:   "limits.rate_limit.key_by",
			Message: fmt.Sprintf("invalid key_by %q: must be 'api_key' or 'ip'", rl.KeyBy),
		})
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "tracing endpoint is required when tracing is enabled",
		})
	}
	switch cfg.Tracing.Sampler {
	case "always", "never", "ratio":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q: must be 'always', 'never', or 'ratio'", cfg.Tracing.Sampler),
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	for field, path := range map[string]string{
		"telemetry.health.liveness_path":  cfg.Health.LivenessPath,
		"telemetry.health.readiness_path": cfg.Health.ReadinessPath,
	} {
		if !strings.HasPrefix(path, "/") {
			errs = append(errs, FieldError{Field: field, Message: "path must start with /"})
		}
	}

	return errs
}

// validateSecurity validates TLS and authentication.
func validateSecurity(cfg *SecurityConfig) []FieldError {
	var errs []FieldError

	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" {
			errs = append(errs, FieldError{
				Field:   "security.tls.cert_file",
				Message: "TLS certificate file is required when TLS is enabled",
			})
		}
		if cfg.TLS.KeyFile == "" {
			errs = append(errs, FieldError{
				Field:   "security.tls.key_file",
				Message: "TLS key file is required when TLS is enabled",
			})
		}
	}
	if cfg.TLS.MinVersion != "1.2" && cfg.TLS.MinVersion != "1.3" {
		errs = append(errs, FieldError{
			Field:   "security.tls.min_version",
			Message: fmt.Sprintf("invalid TLS version %q: must be '1.2' or '1.3'", cfg.TLS.MinVersion),
		})
	}

	if cfg.Authentication.Enabled && len(cfg.Authentication.Keys) == 0 {
		errs = append(errs, FieldError{
			Field:   "security.authentication.keys",
			Message: "at least one key is required when authentication is enabled",
		})
	}
	for i, k := range cfg.Authentication.Keys {
		if k.Key == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("security.authentication.keys[%d].key", i),
				Message: "key is required",
			})
		}
	}

	return errs
}
