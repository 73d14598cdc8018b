package config

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// The process-wide configuration. Readers never block: a reload swaps the
// pointer and in-flight requests keep the *Config they started with.
var (
	current  atomic.Pointer[Config]
	initOnce sync.Once
	initErr  error
)

// Initialize loads path with environment overrides and installs it as the
// process configuration. Only the first call loads; later calls return the
// first call's error.
func Initialize(path string) error {
	initOnce.Do(func() {
		cfg, err := LoadConfigWithEnvOverrides(path)
		if err != nil {
			initErr = err
			return
		}
		current.Store(cfg)
	})
	return initErr
}

// GetConfig returns the installed configuration, or nil before Initialize
// succeeds.
func GetConfig() *Config {
	return current.Load()
}

// SetConfig installs cfg. Tests use it to skip loading a file.
func SetConfig(cfg *Config) {
	current.Store(cfg)
}

// ReloadConfig loads path again and installs the result. On error the
// installed configuration is left alone.
func ReloadConfig(path string) (*Config, error) {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return nil, fmt.Errorf("failed to reload configuration: %w", err)
	}
	current.Store(cfg)
	return cfg, nil
}

// MustGetConfig is GetConfig for callers that run after startup.
func MustGetConfig() *Config {
	if cfg := current.Load(); cfg != nil {
		return cfg
	}
	panic("config: MustGetConfig called before Initialize")
}

func resetForTest() {
	current.Store(nil)
	initOnce = sync.Once{}
	initErr = nil
}
