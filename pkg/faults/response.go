package faults

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
)

// ErrorResponse is the OpenAI-compatible error body.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains detailed error information.
type ErrorDetail struct {
	// Message is a human-readable error message.
	Message string `json:"message"`

	// Type categorizes the error, e.g. "invalid_request_error" or "gateway_timeout".
	Type string `json:"type"`

	// Param is the name of the parameter that caused the error (if applicable).
	Param string `json:"param,omitempty"`

	// Code is a machine-readable error code.
	Code string `json:"code,omitempty"`

	// RequestID correlates the error with relay logs and diagnostics.
	RequestID string `json:"request_id,omitempty"`
}

// Response builds the error body for the fault.
func (f *Fault) Response(requestID string) *ErrorResponse {
	return &ErrorResponse{
		Error: ErrorDetail{
			Message:   f.Message,
			Type:      f.Type(),
			Param:     f.Param,
			Code:      f.Code,
			RequestID: requestID,
		},
	}
}

// JSON renders the error body. It never fails.
func (f *Fault) JSON(requestID string) []byte {
	data, err := json.Marshal(f.Response(requestID))
	if err != nil {
		return []byte(`{"error":{"message":"internal error","type":"server_error","code":"internal_error"}}`)
	}
	return data
}

// Header returns the response headers for a structured error response.
func (f *Fault) Header() http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	if f.RetryAfter > 0 {
		secs := int(math.Ceil(f.RetryAfter.Seconds()))
		h.Set("Retry-After", strconv.Itoa(secs))
	}
	return h
}

// HTTPStatus returns the status code, defaulting to 500.
func (f *Fault) HTTPStatus() int {
	if f.Status == 0 {
		return http.StatusInternalServerError
	}
	return f.Status
}
