package auth

import (
	"sync"

	"mercator-hq/relay/pkg/config"
)

// APIKeyValidator validates client API keys against a configured set.
// The set can be replaced at runtime when the configuration reloads.
type APIKeyValidator struct {
	mu   sync.RWMutex
	keys map[string]*APIKeyInfo
}

// NewAPIKeyValidator creates a validator accepting keys.
func NewAPIKeyValidator(keys []*APIKeyInfo) *APIKeyValidator {
	v := &APIKeyValidator{}
	v.Replace(keys)
	return v
}

// KeysFromConfig converts configured keys to APIKeyInfo values.
func KeysFromConfig(cfg config.AuthenticationConfig) []*APIKeyInfo {
	keys := make([]*APIKeyInfo, 0, len(cfg.Keys))
	for _, k := range cfg.Keys {
		keys = append(keys, &APIKeyInfo{
			Key:     k.Key,
			UserID:  k.UserID,
			Enabled: !k.Disabled,
		})
	}
	return keys
}

// Validate returns the info for key, or ErrMissingKey, ErrInvalidKey or
// ErrKeyDisabled.
func (v *APIKeyValidator) Validate(key string) (*APIKeyInfo, error) {
	if key == "" {
		return nil, ErrMissingKey
	}

	v.mu.RLock()
	info, ok := v.keys[key]
	v.mu.RUnlock()

	if !ok {
		return nil, ErrInvalidKey
	}
	if !info.Enabled {
		return nil, ErrKeyDisabled
	}
	return info, nil
}

// Replace swaps the accepted key set.
func (v *APIKeyValidator) Replace(keys []*APIKeyInfo) {
	m := make(map[string]*APIKeyInfo, len(keys))
	for _, k := range keys {
		m[k.Key] = k
	}

	v.mu.Lock()
	v.keys = m
	v.mu.Unlock()
}

// Len returns the number of configured keys.
func (v *APIKeyValidator) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.keys)
}
