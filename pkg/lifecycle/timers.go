package lifecycle

import (
	"maps"
	"slices"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// Clock is the time source for request timers. clock.RealClock satisfies it.
type Clock interface {
	clock.PassiveClock
	AfterFunc(d time.Duration, f func()) clock.Timer
}

type timerEntry struct {
	gen       uint64
	delay     time.Duration
	renewable bool
	deadline  time.Time
	callback  func()
	timer     clock.Timer
}

// TimerRegistry holds the named watchdogs of one request. Setting a name
// replaces any timer already registered under it. After ClearAll the
// registry is closed and no callback will start.
type TimerRegistry struct {
	clock    Clock
	activity func() time.Time

	mu      sync.Mutex
	entries map[string]*timerEntry
	gen     uint64
	closed  bool
}

// NewTimerRegistry creates a registry. lastActivity is consulted by
// renewable timers; it may be nil if none are used.
func NewTimerRegistry(clk Clock, lastActivity func() time.Time) *TimerRegistry {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &TimerRegistry{
		clock:    clk,
		activity: lastActivity,
		entries:  make(map[string]*timerEntry),
	}
}

// Set schedules callback to run after delay under name, cancelling any
// previous timer with that name. A renewable timer that comes due while the
// request has been active within the last delay reschedules itself for the
// remaining idle window instead of firing. Set returns false if the registry
// is closed.
func (r *TimerRegistry) Set(name string, delay time.Duration, callback func(), renewable bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}
	if prev, ok := r.entries[name]; ok {
		prev.timer.Stop()
	}

	r.gen++
	gen := r.gen
	e := &timerEntry{
		gen:       gen,
		delay:     delay,
		renewable: renewable && r.activity != nil,
		deadline:  r.clock.Now().Add(delay),
		callback:  callback,
	}
	e.timer = r.clock.AfterFunc(delay, func() { r.fire(name, gen) })
	r.entries[name] = e
	return true
}

// Clear cancels the timer registered under name.
func (r *TimerRegistry) Clear(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(r.entries, name)
	return true
}

// ClearAll cancels every timer and closes the registry. It returns the
// number of timers cancelled and is safe to call repeatedly.
func (r *TimerRegistry) ClearAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	n := len(r.entries)
	for name, e := range r.entries {
		e.timer.Stop()
		delete(r.entries, name)
	}
	return n
}

// Active returns the names of pending timers in sorted order.
func (r *TimerRegistry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.entries))
}

// Deadline returns when the named timer is next due.
func (r *TimerRegistry) Deadline(name string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return time.Time{}, false
	}
	return e.deadline, true
}

// fire runs on the clock's goroutine. Stale generations are ignored so a
// replaced or cleared timer never runs its callback.
func (r *TimerRegistry) fire(name string, gen uint64) {
	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok || e.gen != gen || r.closed {
		r.mu.Unlock()
		return
	}

	if e.renewable {
		idle := r.clock.Since(r.activity())
		if idle < e.delay {
			remaining := e.delay - idle
			e.deadline = r.clock.Now().Add(remaining)
			e.timer = r.clock.AfterFunc(remaining, func() { r.fire(name, gen) })
			r.mu.Unlock()
			return
		}
	}

	delete(r.entries, name)
	cb := e.callback
	r.mu.Unlock()

	cb()
}
