package lifecycle

import (
	"fmt"
	"time"
)

// Kind is the shape of a response.
type Kind string

const (
	// KindPlain is a single buffered JSON response.
	KindPlain Kind = "plain"

	// KindIncremental is an event stream.
	KindIncremental Kind = "incremental"
)

// State is the termination state of a request.
type State int32

const (
	StateActive State = iota
	StateTerminating
	StateTerminated
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// MarshalText encodes the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "active":
		*s = StateActive
	case "terminating":
		*s = StateTerminating
	case "terminated":
		*s = StateTerminated
	default:
		return fmt.Errorf("unknown lifecycle state %q", text)
	}
	return nil
}

// Reason records why a request terminated.
type Reason string

const (
	ReasonCompleted         Reason = "completed"
	ReasonClientDisconnect  Reason = "client_disconnect"
	ReasonResponseError     Reason = "response_error"
	ReasonUpstreamError     Reason = "upstream_error"
	ReasonErrorBoundary     Reason = "error_boundary"
	ReasonBaseTimeout       Reason = "base_timeout"
	ReasonStreamingTimeout  Reason = "streaming_timeout"
	ReasonInactivityTimeout Reason = "inactivity_timeout"
	ReasonManualAbort       Reason = "manual_abort"
	ReasonForceCleanup      Reason = "force_cleanup"
)

// Timer names installed automatically by the coordinator.
const (
	TimerBase       = "base"
	TimerStreaming  = "streaming"
	TimerInactivity = "inactivity"
)

// TimeoutConfig holds the layered response deadlines.
//
// Base is an absolute cap measured from request start. Streaming is an
// absolute cap measured from stream start. Inactivity is a rolling cap since
// the last forwarded unit. Max caps every other value. A zero Streaming or
// Inactivity disables that timer; a zero Base falls back to Max.
type TimeoutConfig struct {
	Base       time.Duration
	Streaming  time.Duration
	Max        time.Duration
	Inactivity time.Duration
}

// DefaultTimeouts returns the deadlines used when none are configured.
func DefaultTimeouts() TimeoutConfig {
	return TimeoutConfig{
		Base:       5 * time.Minute,
		Streaming:  4 * time.Minute,
		Max:        10 * time.Minute,
		Inactivity: 60 * time.Second,
	}
}

// Effective returns the config with Max applied to every other deadline.
func (c TimeoutConfig) Effective() TimeoutConfig {
	out := c
	out.Base = capDuration(c.Base, c.Max)
	if out.Base == 0 {
		out.Base = c.Max
	}
	out.Streaming = capDuration(c.Streaming, c.Max)
	out.Inactivity = capDuration(c.Inactivity, c.Max)
	return out
}

// Validate reports negative deadlines.
func (c TimeoutConfig) Validate() error {
	for name, d := range map[string]time.Duration{
		"base":       c.Base,
		"streaming":  c.Streaming,
		"max":        c.Max,
		"inactivity": c.Inactivity,
	} {
		if d < 0 {
			return fmt.Errorf("%s timeout must not be negative: %s", name, d)
		}
	}
	return nil
}

func capDuration(d, max time.Duration) time.Duration {
	if max > 0 && d > max {
		return max
	}
	return d
}
