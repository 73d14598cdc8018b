package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"mercator-hq/relay/pkg/faults"
	"mercator-hq/relay/pkg/proxy/types"
)

const (
	// DefaultMaxBodyBytes is used when no body limit is configured (10MB).
	DefaultMaxBodyBytes = 10 << 20

	// AuthorizationHeader carries the client API key.
	AuthorizationHeader = "Authorization"

	// UserIDHeader carries an optional end-user identifier.
	UserIDHeader = "X-User-ID"
)

// ParseChatCompletionRequest reads and validates a chat completion body of
// at most maxBytes bytes. Every failure is a validation fault: 413 for an
// oversized body, 400 otherwise.
func ParseChatCompletionRequest(r *http.Request, maxBytes int64) (*types.ChatCompletionRequest, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	if r.Body == nil {
		return nil, faults.Validation("request body is required", "body", faults.CodeMissingField)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	if err != nil {
		return nil, faults.Validation(fmt.Sprintf("failed to read request body: %v", err), "body", faults.CodeInvalidValue)
	}
	if int64(len(body)) > maxBytes {
		f := faults.Validation(fmt.Sprintf("request body exceeds maximum size of %d bytes", maxBytes), "body", faults.CodeRequestTooLarge)
		f.Status = http.StatusRequestEntityTooLarge
		return nil, f
	}

	return DecodeChatCompletionRequest(body)
}

// DecodeChatCompletionRequest parses and validates a request body that has
// already been read.
func DecodeChatCompletionRequest(body []byte) (*types.ChatCompletionRequest, error) {
	if len(body) == 0 {
		return nil, faults.Validation("request body is required", "body", faults.CodeMissingField)
	}
	var req types.ChatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, faults.Validation(fmt.Sprintf("invalid JSON: %v", err), "body", faults.CodeInvalidJSON)
	}

	if err := req.Validate(); err != nil {
		if valErr, ok := err.(*types.ValidationError); ok {
			code := faults.CodeInvalidValue
			if valErr.Missing {
				code = faults.CodeMissingField
			}
			return nil, faults.Validation(valErr.Message, valErr.Field, code)
		}
		return nil, err
	}
	return &req, nil
}

// ExtractAPIKey returns the key from an "Authorization: Bearer <key>"
// header, or "" if the header is missing or malformed.
func ExtractAPIKey(r *http.Request) string {
	scheme, key, ok := strings.Cut(r.Header.Get(AuthorizationHeader), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(key)
}

// ExtractUserID returns the X-User-ID header.
func ExtractUserID(r *http.Request) string {
	return r.Header.Get(UserIDHeader)
}
