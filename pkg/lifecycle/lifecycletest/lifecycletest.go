// Package lifecycletest provides deterministic doubles for lifecycle tests.
package lifecycletest

import (
	"bytes"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// Clock is a manually advanced clock. Due callbacks run on the goroutine
// calling Step, after the clock's lock is released, so they may read the
// clock or schedule further timers. testclock.FakeClock holds its lock
// while running AfterFunc callbacks, which deadlocks timers that rearm.
type Clock struct {
	mu      sync.Mutex
	now     time.Time
	seq     int
	waiters []*timer
}

// NewClock returns a clock set to t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since returns the fake time elapsed since t.
func (c *Clock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// AfterFunc schedules f to run when the clock reaches now+d.
func (c *Clock) AfterFunc(d time.Duration, f func()) clock.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &timer{clock: c, at: c.now.Add(d), fn: f, seq: c.seq, ch: make(chan time.Time, 1)}
	c.waiters = append(c.waiters, t)
	return t
}

// Step advances the clock by d, stopping at each due timer in deadline
// order so every callback observes its own deadline as the current time.
func (c *Clock) Step(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		sort.SliceStable(c.waiters, func(i, j int) bool {
			if c.waiters[i].at.Equal(c.waiters[j].at) {
				return c.waiters[i].seq < c.waiters[j].seq
			}
			return c.waiters[i].at.Before(c.waiters[j].at)
		})
		if len(c.waiters) == 0 || c.waiters[0].at.After(target) {
			c.now = target
			c.mu.Unlock()
			return
		}
		t := c.waiters[0]
		c.waiters = c.waiters[1:]
		if t.at.After(c.now) {
			c.now = t.at
		}
		now := c.now
		c.mu.Unlock()

		select {
		case t.ch <- now:
		default:
		}
		if t.fn != nil {
			t.fn()
		}
	}
}

// Waiters returns the number of pending timers.
func (c *Clock) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

func (c *Clock) remove(t *timer) bool {
	for i, w := range c.waiters {
		if w == t {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return true
		}
	}
	return false
}

type timer struct {
	clock *Clock
	at    time.Time
	fn    func()
	seq   int
	ch    chan time.Time
}

func (t *timer) C() <-chan time.Time { return t.ch }

func (t *timer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	return t.clock.remove(t)
}

func (t *timer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := t.clock.remove(t)
	t.at = t.clock.now.Add(d)
	t.clock.seq++
	t.seq = t.clock.seq
	t.clock.waiters = append(t.clock.waiters, t)
	return active
}

// ErrAborted is returned by Transport writes after Abort.
var ErrAborted = errors.New("transport aborted")

// Transport records everything written to it.
type Transport struct {
	mu       sync.Mutex
	status   int
	header   http.Header
	body     bytes.Buffer
	writes   [][]byte
	headers  int
	finishes int
	aborts   int
	aborted  bool

	// FailWrites makes every Write return this error.
	FailWrites error
}

// NewTransport returns an empty recording transport.
func NewTransport() *Transport {
	return &Transport{}
}

func (t *Transport) WriteHeader(status int, header http.Header) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.aborted {
		return ErrAborted
	}
	t.headers++
	t.status = status
	t.header = header.Clone()
	return nil
}

func (t *Transport) Write(p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.aborted {
		return ErrAborted
	}
	if t.FailWrites != nil {
		return t.FailWrites
	}
	t.body.Write(p)
	t.writes = append(t.writes, bytes.Clone(p))
	return nil
}

func (t *Transport) Finish() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.aborted {
		return ErrAborted
	}
	t.finishes++
	return nil
}

func (t *Transport) Abort() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.aborts++
	t.aborted = true
	return nil
}

// Status returns the last status written.
func (t *Transport) Status() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Header returns the last headers written.
func (t *Transport) Header() http.Header {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.header.Clone()
}

// Body returns all bytes written.
func (t *Transport) Body() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.body.String()
}

// Writes returns each Write payload.
func (t *Transport) Writes() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.writes))
	copy(out, t.writes)
	return out
}

// HeaderCalls returns how many times WriteHeader succeeded.
func (t *Transport) HeaderCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.headers
}

// Finishes returns how many times Finish succeeded.
func (t *Transport) Finishes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finishes
}

// Aborts returns how many times Abort was called.
func (t *Transport) Aborts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.aborts
}
