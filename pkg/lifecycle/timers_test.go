package lifecycle

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"mercator-hq/relay/pkg/lifecycle/lifecycletest"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type activity struct {
	mu   sync.Mutex
	last time.Time
}

func (a *activity) touch(t time.Time) {
	a.mu.Lock()
	a.last = t
	a.mu.Unlock()
}

func (a *activity) get() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

func TestTimerRegistry_Fires(t *testing.T) {
	clk := lifecycletest.NewClock(epoch)
	r := NewTimerRegistry(clk, nil)

	var fired atomic.Int32
	r.Set("base", 10*time.Second, func() { fired.Add(1) }, false)

	clk.Step(9 * time.Second)
	if fired.Load() != 0 {
		t.Fatal("timer fired before its deadline")
	}
	clk.Step(time.Second)
	if got := fired.Load(); got != 1 {
		t.Errorf("fired = %d, want 1", got)
	}
	if got := r.Active(); len(got) != 0 {
		t.Errorf("Active() = %v, want empty after firing", got)
	}
}

func TestTimerRegistry_SetReplaces(t *testing.T) {
	clk := lifecycletest.NewClock(epoch)
	r := NewTimerRegistry(clk, nil)

	var first, second atomic.Int32
	r.Set("base", 5*time.Second, func() { first.Add(1) }, false)
	r.Set("base", 20*time.Second, func() { second.Add(1) }, false)

	clk.Step(10 * time.Second)
	if first.Load() != 0 {
		t.Error("replaced timer fired")
	}
	clk.Step(10 * time.Second)
	if got := second.Load(); got != 1 {
		t.Errorf("replacement fired = %d, want 1", got)
	}
}

func TestTimerRegistry_Clear(t *testing.T) {
	clk := lifecycletest.NewClock(epoch)
	r := NewTimerRegistry(clk, nil)

	var fired atomic.Int32
	r.Set("a", time.Second, func() { fired.Add(1) }, false)
	r.Set("b", 2*time.Second, func() { fired.Add(1) }, false)

	if diff := cmp.Diff([]string{"a", "b"}, r.Active()); diff != "" {
		t.Errorf("Active() mismatch (-want +got):\n%s", diff)
	}
	if !r.Clear("a") {
		t.Error("Clear(a) = false, want true")
	}
	if r.Clear("a") {
		t.Error("second Clear(a) = true, want false")
	}

	clk.Step(5 * time.Second)
	if got := fired.Load(); got != 1 {
		t.Errorf("fired = %d, want 1", got)
	}
}

func TestTimerRegistry_ClearAll(t *testing.T) {
	clk := lifecycletest.NewClock(epoch)
	r := NewTimerRegistry(clk, nil)

	var fired atomic.Int32
	for _, name := range []string{"base", "streaming", "inactivity"} {
		r.Set(name, time.Second, func() { fired.Add(1) }, false)
	}

	if got := r.ClearAll(); got != 3 {
		t.Errorf("ClearAll() = %d, want 3", got)
	}
	if got := r.ClearAll(); got != 0 {
		t.Errorf("second ClearAll() = %d, want 0", got)
	}
	if r.Set("late", time.Second, func() { fired.Add(1) }, false) {
		t.Error("Set() after ClearAll = true, want false")
	}

	clk.Step(time.Minute)
	if got := fired.Load(); got != 0 {
		t.Errorf("fired = %d after ClearAll, want 0", got)
	}
	if got := clk.Waiters(); got != 0 {
		t.Errorf("clock waiters = %d, want 0", got)
	}
}

func TestTimerRegistry_RenewableRearms(t *testing.T) {
	clk := lifecycletest.NewClock(epoch)
	act := &activity{last: epoch}
	r := NewTimerRegistry(clk, act.get)

	const window = 10 * time.Second
	var firedAt atomic.Int64
	r.Set("inactivity", window, func() { firedAt.Store(clk.Now().UnixNano()) }, true)

	// Activity every window/2 keeps the timer from ever firing.
	for i := 0; i < 20; i++ {
		clk.Step(window / 2)
		act.touch(clk.Now())
	}
	if firedAt.Load() != 0 {
		t.Fatal("renewable timer fired while activity continued")
	}
	if got := r.Active(); len(got) != 1 {
		t.Fatalf("Active() = %v, want one rearmed entry", got)
	}

	last := clk.Now()
	clk.Step(3 * window)

	if firedAt.Load() == 0 {
		t.Fatal("renewable timer did not fire after activity stopped")
	}
	fired := time.Unix(0, firedAt.Load())
	if idle := fired.Sub(last); idle < window || idle > window+window/2 {
		t.Errorf("fired %s after last activity, want within [%s, %s]", idle, window, window+window/2)
	}
}

func TestTimerRegistry_Deadline(t *testing.T) {
	clk := lifecycletest.NewClock(epoch)
	r := NewTimerRegistry(clk, nil)
	r.Set("base", time.Minute, func() {}, false)

	got, ok := r.Deadline("base")
	if !ok {
		t.Fatal("Deadline(base) not found")
	}
	if want := epoch.Add(time.Minute); !got.Equal(want) {
		t.Errorf("Deadline(base) = %v, want %v", got, want)
	}
	if _, ok := r.Deadline("missing"); ok {
		t.Error("Deadline(missing) found")
	}
}
