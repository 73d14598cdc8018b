package lifecycle

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"
)

// TimeoutEvent records a fired watchdog.
type TimeoutEvent struct {
	Name string    `json:"name"`
	At   time.Time `json:"at"`
}

// RaceEvent records a termination attempt that lost the race.
type RaceEvent struct {
	Kind    string    `json:"kind"`
	Details string    `json:"details,omitempty"`
	At      time.Time `json:"at"`
}

// RequestContext is the per-request record shared by the coordinator, the
// producer, and the diagnostics registry.
type RequestContext struct {
	ID        string
	Kind      Kind
	CreatedAt time.Time

	clock        clock.PassiveClock
	lastActivity atomic.Int64
	state        atomic.Int32

	mu            sync.Mutex
	reason        Reason
	metadata      map[string]string
	resources     map[string]struct{}
	timeoutEvents []TimeoutEvent
	raceEvents    []RaceEvent
}

// NewRequestContext creates an Active context stamped with clk's current time.
func NewRequestContext(id string, kind Kind, clk clock.PassiveClock) *RequestContext {
	if clk == nil {
		clk = clock.RealClock{}
	}
	now := clk.Now()
	rc := &RequestContext{
		ID:        id,
		Kind:      kind,
		CreatedAt: now,
		clock:     clk,
		metadata:  make(map[string]string),
		resources: make(map[string]struct{}),
	}
	rc.lastActivity.Store(now.UnixNano())
	return rc
}

// Touch records production activity at the current time.
func (rc *RequestContext) Touch() {
	rc.lastActivity.Store(rc.clock.Now().UnixNano())
}

// LastActivity returns the time of the most recent Touch.
func (rc *RequestContext) LastActivity() time.Time {
	return time.Unix(0, rc.lastActivity.Load())
}

// State returns the current termination state.
func (rc *RequestContext) State() State {
	return State(rc.state.Load())
}

// advance moves the state forward from one state to the next. It fails if
// the state is not from.
func (rc *RequestContext) advance(from, to State) bool {
	return rc.state.CompareAndSwap(int32(from), int32(to))
}

// Reason returns the first termination reason, or "" while active.
func (rc *RequestContext) Reason() Reason {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.reason
}

func (rc *RequestContext) setReason(r Reason) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.reason != "" {
		return false
	}
	rc.reason = r
	return true
}

// SetMetadata attaches a descriptive key/value pair.
func (rc *RequestContext) SetMetadata(key, value string) {
	rc.mu.Lock()
	rc.metadata[key] = value
	rc.mu.Unlock()
}

// Metadata returns a copy of the descriptive metadata.
func (rc *RequestContext) Metadata() map[string]string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return maps.Clone(rc.metadata)
}

// AddResource tracks an opaque resource key. It reports whether the key was new.
func (rc *RequestContext) AddResource(key string) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if _, ok := rc.resources[key]; ok {
		return false
	}
	rc.resources[key] = struct{}{}
	return true
}

// RemoveResource stops tracking key. It reports whether the key was tracked.
func (rc *RequestContext) RemoveResource(key string) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if _, ok := rc.resources[key]; !ok {
		return false
	}
	delete(rc.resources, key)
	return true
}

// Resources returns the tracked resource keys in sorted order.
func (rc *RequestContext) Resources() []string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return slices.Sorted(maps.Keys(rc.resources))
}

// ResourceCount returns the number of tracked resources.
func (rc *RequestContext) ResourceCount() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.resources)
}

// RecordTimeout appends a timeout event.
func (rc *RequestContext) RecordTimeout(name string) {
	ev := TimeoutEvent{Name: name, At: rc.clock.Now()}
	rc.mu.Lock()
	rc.timeoutEvents = append(rc.timeoutEvents, ev)
	rc.mu.Unlock()
}

// TimeoutEvents returns a copy of the timeout log.
func (rc *RequestContext) TimeoutEvents() []TimeoutEvent {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return slices.Clone(rc.timeoutEvents)
}

// RecordRace appends a race event.
func (rc *RequestContext) RecordRace(kind, details string) {
	ev := RaceEvent{Kind: kind, Details: details, At: rc.clock.Now()}
	rc.mu.Lock()
	rc.raceEvents = append(rc.raceEvents, ev)
	rc.mu.Unlock()
}

// RaceEvents returns a copy of the race log.
func (rc *RequestContext) RaceEvents() []RaceEvent {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return slices.Clone(rc.raceEvents)
}

// Snapshot is a point-in-time, JSON-friendly view of a RequestContext.
type Snapshot struct {
	ID            string            `json:"id"`
	Kind          Kind              `json:"kind"`
	State         State             `json:"state"`
	Reason        Reason            `json:"reason,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	LastActivity  time.Time         `json:"last_activity"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Resources     []string          `json:"resources"`
	TimeoutEvents []TimeoutEvent    `json:"timeout_events"`
	RaceEvents    []RaceEvent       `json:"race_events"`
}

// Snapshot copies the context's current state.
func (rc *RequestContext) Snapshot() Snapshot {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	snap := Snapshot{
		ID:            rc.ID,
		Kind:          rc.Kind,
		State:         rc.State(),
		Reason:        rc.reason,
		CreatedAt:     rc.CreatedAt,
		LastActivity:  rc.LastActivity(),
		Metadata:      maps.Clone(rc.metadata),
		Resources:     slices.AppendSeq(make([]string, 0, len(rc.resources)), maps.Keys(rc.resources)),
		TimeoutEvents: append([]TimeoutEvent{}, rc.timeoutEvents...),
		RaceEvents:    append([]RaceEvent{}, rc.raceEvents...),
	}
	slices.Sort(snap.Resources)
	return snap
}
