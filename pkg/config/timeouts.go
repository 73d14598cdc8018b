package config

import (
	"sync/atomic"

	"mercator-hq/relay/pkg/lifecycle"
)

// TimeoutSource publishes the current lifecycle timeouts to request
// handlers. Reloads swap the value; requests already running keep theirs.
type TimeoutSource struct {
	v atomic.Pointer[lifecycle.TimeoutConfig]
}

// NewTimeoutSource returns a source holding cfg.Timeouts.
func NewTimeoutSource(cfg *Config) *TimeoutSource {
	s := &TimeoutSource{}
	s.Update(cfg)
	return s
}

// Update replaces the published timeouts with cfg's.
func (s *TimeoutSource) Update(cfg *Config) {
	t := cfg.Timeouts.Lifecycle()
	s.v.Store(&t)
}

// Load returns the current timeouts.
func (s *TimeoutSource) Load() lifecycle.TimeoutConfig {
	if t := s.v.Load(); t != nil {
		return *t
	}
	return lifecycle.DefaultTimeouts()
}
