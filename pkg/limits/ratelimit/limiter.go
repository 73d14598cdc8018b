package ratelimit

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// Limiter enforces a fixed-window request count per key, plus an optional
// process-wide concurrency limit.
//
// Windows are aligned to multiples of the window length, so every key's
// window resets at the same instant:
//
//	limiter := ratelimit.NewLimiter(ratelimit.Config{Requests: 60, Window: time.Minute}, nil)
//	if res := limiter.Allow("sk-abc"); !res.Allowed {
//	    // reject, advertising res.RetryAfter
//	}
type Limiter struct {
	config Config
	clock  clock.PassiveClock

	mu        sync.Mutex
	windows   map[string]*window
	lastPrune time.Time

	concurrent *ConcurrentLimiter
}

type window struct {
	start time.Time
	count int64
}

// NewLimiter creates a limiter. A nil clock uses the real clock.
func NewLimiter(config Config, clk clock.PassiveClock) *Limiter {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	l := &Limiter{
		config:  config,
		clock:   clk,
		windows: make(map[string]*window),
	}
	if config.MaxConcurrent > 0 {
		l.concurrent = NewConcurrentLimiter(config.MaxConcurrent)
	}
	return l
}

// Allow counts one request for key and reports whether it fits in the
// current window. Rejected requests are not counted.
func (l *Limiter) Allow(key string) *CheckResult {
	if l.config.Requests <= 0 {
		return &CheckResult{Allowed: true}
	}

	now := l.clock.Now()
	start := now.Truncate(l.config.Window)
	reset := start.Add(l.config.Window)
	limit := int64(l.config.Requests)

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastPrune) >= l.config.Window {
		l.pruneLocked(start)
		l.lastPrune = now
	}

	w, ok := l.windows[key]
	if !ok || w.start.Before(start) {
		w = &window{start: start}
		l.windows[key] = w
	}

	if w.count >= limit {
		return &CheckResult{
			Allowed:    false,
			Reason:     "request rate limit exceeded",
			Limit:      limit,
			Remaining:  0,
			Reset:      reset,
			RetryAfter: reset.Sub(now),
		}
	}
	w.count++
	return &CheckResult{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - w.count,
		Reset:     reset,
	}
}

// Acquire takes a concurrency slot. It always succeeds when no concurrency
// limit is configured. Callers must Release every acquired slot.
func (l *Limiter) Acquire() bool {
	if l.concurrent == nil {
		return true
	}
	return l.concurrent.Acquire()
}

// Release returns a slot taken by Acquire.
func (l *Limiter) Release() {
	if l.concurrent != nil {
		l.concurrent.Release()
	}
}

// InFlight returns the number of held concurrency slots.
func (l *Limiter) InFlight() int64 {
	if l.concurrent == nil {
		return 0
	}
	return l.concurrent.Current()
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// pruneLocked drops windows that ended before current.
func (l *Limiter) pruneLocked(current time.Time) {
	for key, w := range l.windows {
		if w.start.Before(current) {
			delete(l.windows, key)
		}
	}
}
