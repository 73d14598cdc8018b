package faults

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind categorizes a fault.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindRateLimit    Kind = "rate_limit"
	KindTimeout      Kind = "timeout"
	KindUpstream     Kind = "upstream"
	KindInternal     Kind = "internal"
)

// TimeoutKind names the watchdog that expired.
type TimeoutKind string

const (
	TimeoutBase       TimeoutKind = "base"
	TimeoutStreaming  TimeoutKind = "streaming"
	TimeoutInactivity TimeoutKind = "inactivity"
)

// Error type constants matching the OpenAI error format.
const (
	TypeInvalidRequest     = "invalid_request_error"
	TypeAuthentication     = "authentication_error"
	TypeNotFound           = "not_found"
	TypeRateLimitExceeded  = "rate_limit_exceeded"
	TypeServerError        = "server_error"
	TypeBadGateway         = "bad_gateway"
	TypeServiceUnavailable = "service_unavailable"
	TypeGatewayTimeout     = "gateway_timeout"
)

// Error code constants.
const (
	CodeMissingField        = "missing_field"
	CodeInvalidValue        = "invalid_value"
	CodeInvalidJSON         = "invalid_json"
	CodeRequestTooLarge     = "request_too_large"
	CodeModelNotFound       = "model_not_found"
	CodeInvalidAPIKey       = "invalid_api_key"
	CodeRateLimitExceeded   = "rate_limit_exceeded"
	CodeProviderError       = "provider_error"
	CodeProviderAuth        = "provider_authentication_failed"
	CodeProviderUnavailable = "provider_unavailable"
	CodeInternalError       = "internal_error"
)

// Fault is a classified relay error.
type Fault struct {
	Kind    Kind
	Code    string
	Message string
	Param   string

	// Status is the HTTP status the fault is reported with.
	Status int

	// Timeout is set for KindTimeout.
	Timeout TimeoutKind

	// UpstreamStatus is the provider's status code for KindUpstream.
	UpstreamStatus int

	// RetryAfter is advertised to the client for rate limits.
	RetryAfter time.Duration

	Cause error
}

// Error implements the error interface.
func (f *Fault) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Cause)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Unwrap returns the underlying cause.
func (f *Fault) Unwrap() error {
	return f.Cause
}

// Type returns the OpenAI error type for the fault.
func (f *Fault) Type() string {
	switch f.Kind {
	case KindValidation:
		if f.Status == http.StatusNotFound {
			return TypeNotFound
		}
		return TypeInvalidRequest
	case KindUnauthorized:
		return TypeAuthentication
	case KindRateLimit:
		return TypeRateLimitExceeded
	case KindTimeout:
		return TypeGatewayTimeout
	case KindUpstream:
		switch f.Status {
		case http.StatusTooManyRequests:
			return TypeRateLimitExceeded
		case http.StatusServiceUnavailable:
			return TypeServiceUnavailable
		case http.StatusGatewayTimeout:
			return TypeGatewayTimeout
		case http.StatusBadRequest, http.StatusNotFound:
			return TypeInvalidRequest
		}
		return TypeBadGateway
	default:
		return TypeServerError
	}
}

// Validation returns a 400 fault for a malformed client request.
func Validation(message, param, code string) *Fault {
	if code == "" {
		code = CodeInvalidValue
	}
	return &Fault{
		Kind:    KindValidation,
		Code:    code,
		Message: message,
		Param:   param,
		Status:  http.StatusBadRequest,
	}
}

// Unauthorized returns a 401 fault.
func Unauthorized(message string) *Fault {
	return &Fault{
		Kind:    KindUnauthorized,
		Code:    CodeInvalidAPIKey,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

// RateLimited returns a 429 fault advertising retryAfter.
func RateLimited(message string, retryAfter time.Duration) *Fault {
	return &Fault{
		Kind:       KindRateLimit,
		Code:       CodeRateLimitExceeded,
		Message:    message,
		Status:     http.StatusTooManyRequests,
		RetryAfter: retryAfter,
	}
}

// Timeout returns a 504 fault for an expired watchdog.
func Timeout(kind TimeoutKind, after time.Duration) *Fault {
	return &Fault{
		Kind:    KindTimeout,
		Code:    "timeout_" + string(kind),
		Message: fmt.Sprintf("request exceeded %s timeout of %s", kind, after),
		Status:  http.StatusGatewayTimeout,
		Timeout: kind,
	}
}

// Upstream returns a fault for a provider failure. The client-facing status
// is derived from the upstream status.
func Upstream(upstreamStatus int, message string, cause error) *Fault {
	f := &Fault{
		Kind:           KindUpstream,
		Message:        message,
		UpstreamStatus: upstreamStatus,
		Cause:          cause,
	}
	switch {
	case upstreamStatus >= 500:
		f.Status, f.Code = http.StatusBadGateway, CodeProviderError
	case upstreamStatus == http.StatusTooManyRequests:
		f.Status, f.Code = http.StatusTooManyRequests, CodeRateLimitExceeded
	case upstreamStatus == http.StatusNotFound:
		f.Status, f.Code, f.Param = http.StatusNotFound, CodeModelNotFound, "model"
	case upstreamStatus == http.StatusUnauthorized || upstreamStatus == http.StatusForbidden:
		f.Status, f.Code = http.StatusBadGateway, CodeProviderAuth
	case upstreamStatus >= 400:
		f.Status, f.Code = http.StatusBadRequest, CodeInvalidValue
	default:
		f.Status, f.Code = http.StatusBadGateway, CodeProviderError
	}
	return f
}

// Unavailable returns a 503 upstream fault when no provider can serve.
func Unavailable(message string) *Fault {
	return &Fault{
		Kind:    KindUpstream,
		Code:    CodeProviderUnavailable,
		Message: message,
		Status:  http.StatusServiceUnavailable,
	}
}

// Internal returns a 500 fault. The message is sent to clients; the cause is not.
func Internal(message string, cause error) *Fault {
	return &Fault{
		Kind:    KindInternal,
		Code:    CodeInternalError,
		Message: message,
		Status:  http.StatusInternalServerError,
		Cause:   cause,
	}
}

// From classifies err. Faults anywhere in the chain are returned as is,
// deadline errors become base timeouts, and anything else is internal.
func From(err error) *Fault {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	if errors.Is(err, context.DeadlineExceeded) {
		t := Timeout(TimeoutBase, 0)
		t.Message = "request deadline exceeded"
		t.Cause = err
		return t
	}
	return Internal("An internal error occurred. Please try again later.", err)
}

// IsTimeout reports whether err is a timeout fault.
func IsTimeout(err error) bool {
	var f *Fault
	return errors.As(err, &f) && f.Kind == KindTimeout
}
