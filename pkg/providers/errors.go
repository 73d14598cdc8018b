package providers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"mercator-hq/relay/pkg/faults"
)

// ProviderError is an upstream failure with an optional HTTP status.
type ProviderError struct {
	Provider string

	// StatusCode is the upstream status, or 0 if none was received.
	StatusCode int

	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %q error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %q error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// AuthError means the upstream rejected the relay's credentials.
type AuthError struct {
	Provider   string
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("provider %q authentication failed: %s", e.Provider, e.Message)
}

// RateLimitError is an upstream 429.
type RateLimitError struct {
	Provider string

	// RetryAfter is the upstream's advertised delay, if any.
	RetryAfter time.Duration

	Message string
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider %q rate limit exceeded (retry after %s): %s",
			e.Provider, e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("provider %q rate limit exceeded: %s", e.Provider, e.Message)
}

// TimeoutError means the upstream call was abandoned before it answered.
type TimeoutError struct {
	Provider string
	Timeout  time.Duration

	// Cause is the context or transport error.
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("provider %q request timeout after %s", e.Provider, e.Timeout)
	}
	return fmt.Sprintf("provider %q request abandoned: %v", e.Provider, e.Cause)
}

// Unwrap returns the underlying error.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// ParseError is a malformed upstream response.
type ParseError struct {
	Provider    string
	RawResponse string
	Cause       error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("provider %q response parse error: %v", e.Provider, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// ModelNotFoundError means no provider serves the requested model.
type ModelNotFoundError struct {
	Provider string
	Model    string
}

// Error implements the error interface.
func (e *ModelNotFoundError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("no provider serves model %q", e.Model)
	}
	return fmt.Sprintf("provider %q does not support model %q", e.Provider, e.Model)
}

// ValidationError is a request the upstream schema cannot express.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %q: %s", e.Field, e.Message)
}

// StreamError is a failure in the middle of an upstream stream, including
// error events the upstream sends in band.
type StreamError struct {
	Provider string

	// Type is the upstream error type for in-band errors (e.g. "overloaded_error").
	Type string

	Message string
	Cause   error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("provider %q stream error: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("provider %q stream error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Cause
}

// ConfigError is an invalid provider configuration.
type ConfigError struct {
	Provider string
	Field    string
	Message  string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("provider %q configuration error for field %q: %s",
		e.Provider, e.Field, e.Message)
}

// Classify maps err to the fault reported to clients. Provider errors are
// translated into upstream, validation or timeout faults; anything else is
// classified by faults.From. Upstream response bodies are never copied into
// client messages.
func Classify(err error) *faults.Fault {
	if err == nil {
		return nil
	}

	var (
		fault     *faults.Fault
		provErr   *ProviderError
		authErr   *AuthError
		rateErr   *RateLimitError
		timeErr   *TimeoutError
		parseErr  *ParseError
		modelErr  *ModelNotFoundError
		validErr  *ValidationError
		streamErr *StreamError
		cfgErr    *ConfigError
	)

	switch {
	case errors.As(err, &fault):
		return fault

	case errors.As(err, &authErr):
		return faults.Upstream(http.StatusUnauthorized,
			"Provider authentication failed. Please contact support.", err)

	case errors.As(err, &rateErr):
		f := faults.Upstream(http.StatusTooManyRequests,
			"Provider rate limit exceeded. Please try again later.", err)
		f.RetryAfter = rateErr.RetryAfter
		return f

	case errors.As(err, &timeErr):
		f := faults.Upstream(http.StatusGatewayTimeout, "Provider request timed out.", err)
		f.Status = http.StatusGatewayTimeout
		return f

	case errors.As(err, &modelErr):
		f := faults.Validation(fmt.Sprintf("The model %q does not exist.", modelErr.Model), "model", faults.CodeModelNotFound)
		f.Status = http.StatusNotFound
		f.Cause = err
		return f

	case errors.As(err, &validErr):
		f := faults.Validation(validErr.Message, validErr.Field, faults.CodeInvalidValue)
		f.Cause = err
		return f

	case errors.As(err, &provErr):
		msg := "Provider returned an error."
		switch {
		case provErr.StatusCode >= 500:
			msg = "Provider service error. Please try again later."
		case provErr.StatusCode == http.StatusNotFound:
			msg = "The requested model was not found by the provider."
		case provErr.StatusCode >= 400:
			msg = "Provider rejected the request."
		}
		return faults.Upstream(provErr.StatusCode, msg, err)

	case errors.As(err, &streamErr):
		if streamErr.Type == "overloaded_error" {
			f := faults.Upstream(http.StatusServiceUnavailable, "Provider is overloaded. Please try again later.", err)
			f.Status, f.Code = http.StatusServiceUnavailable, faults.CodeProviderUnavailable
			return f
		}
		return faults.Upstream(http.StatusBadGateway, "Provider stream failed.", err)

	case errors.As(err, &parseErr):
		return faults.Upstream(http.StatusBadGateway, "Provider returned an invalid response.", err)

	case errors.As(err, &cfgErr):
		return faults.Internal("Provider is misconfigured.", err)
	}

	return faults.From(err)
}

// ErrorType returns a short label for err, used as a metric label.
func ErrorType(err error) string {
	var (
		authErr   *AuthError
		rateErr   *RateLimitError
		timeErr   *TimeoutError
		parseErr  *ParseError
		streamErr *StreamError
		provErr   *ProviderError
	)
	switch {
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &rateErr):
		return "rate_limit"
	case errors.As(err, &timeErr):
		return "timeout"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.As(err, &streamErr):
		return "stream"
	case errors.As(err, &provErr):
		if provErr.StatusCode >= 500 {
			return "server"
		}
		return "client"
	}
	return "other"
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
