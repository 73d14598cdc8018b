package auth

import "errors"

// APIKeyInfo is an accepted client key and the identity it carries.
type APIKeyInfo struct {
	Key     string
	UserID  string
	Enabled bool
}

var (
	// ErrMissingKey is returned when a request carries no key.
	ErrMissingKey = errors.New("missing API key")

	// ErrInvalidKey is returned for keys that are not configured.
	ErrInvalidKey = errors.New("invalid API key")

	// ErrKeyDisabled is returned for configured keys that are disabled.
	ErrKeyDisabled = errors.New("API key disabled")
)
