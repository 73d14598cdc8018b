package diagnostics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"mercator-hq/relay/pkg/lifecycle"
)

// DefaultGracePeriod is how long a terminated request stays readable.
const DefaultGracePeriod = 5 * time.Second

// Thresholds flag a live request as hanging when any one is exceeded.
type Thresholds struct {
	MaxAge           time.Duration
	MaxInactivity    time.Duration
	MaxTimeoutEvents int
	MaxResources     int
}

// DefaultThresholds returns the standard hanging-request thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxAge:           2 * time.Minute,
		MaxInactivity:    time.Minute,
		MaxTimeoutEvents: 2,
		MaxResources:     10,
	}
}

// Recorder receives registry events for external metrics. The prometheus
// collector in pkg/telemetry/metrics implements it.
type Recorder interface {
	RequestStarted(kind string)
	RequestTerminated(kind, reason string, duration time.Duration)
	TimeoutFired(timer string)
	RaceObserved(kind string)
	SweepCompleted(m Metrics)
}

// Options configures a Registry.
type Options struct {
	// Clock defaults to the real clock.
	Clock lifecycle.Clock

	// GracePeriod defaults to DefaultGracePeriod.
	GracePeriod time.Duration

	// Thresholds default to DefaultThresholds. Zero fields keep their default.
	Thresholds Thresholds

	Recorder Recorder
	Logger   *slog.Logger
}

type row struct {
	rc   *lifecycle.RequestContext
	term lifecycle.Terminator

	completed   bool
	completedAt time.Time
	reason      lifecycle.Reason
	details     string
	evictTimer  clock.Timer

	flaggedHanging  bool
	raced           bool
	timeoutConflict bool
}

// Registry is the process-wide table of live requests. Coordinators report
// into it through the lifecycle.Reporter methods; it never changes a
// coordinator's state except through ForceCleanup.
type Registry struct {
	clock      lifecycle.Clock
	grace      time.Duration
	thresholds Thresholds
	recorder   Recorder
	logger     *slog.Logger
	startedAt  time.Time

	mu        sync.Mutex
	rows      map[string]*row
	resources map[string]map[string]struct{}
	leaked    map[string]struct{}

	total            int64
	completed        int64
	timeoutEvents    int64
	raceEvents       int64
	hangingSeen      int64
	leaksSeen        int64
	racedRequests    int64
	conflictRequests int64
	reasons          map[lifecycle.Reason]int64
}

var _ lifecycle.Reporter = (*Registry)(nil)

// New creates an empty registry.
func New(opts Options) *Registry {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	opts.Thresholds = withDefaults(opts.Thresholds)
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("component", "diagnostics")
	}
	return &Registry{
		clock:      opts.Clock,
		grace:      opts.GracePeriod,
		thresholds: opts.Thresholds,
		recorder:   opts.Recorder,
		logger:     opts.Logger,
		startedAt:  opts.Clock.Now(),
		rows:       make(map[string]*row),
		resources:  make(map[string]map[string]struct{}),
		leaked:     make(map[string]struct{}),
		reasons:    make(map[lifecycle.Reason]int64),
	}
}

func withDefaults(t Thresholds) Thresholds {
	d := DefaultThresholds()
	if t.MaxAge > 0 {
		d.MaxAge = t.MaxAge
	}
	if t.MaxInactivity > 0 {
		d.MaxInactivity = t.MaxInactivity
	}
	if t.MaxTimeoutEvents > 0 {
		d.MaxTimeoutEvents = t.MaxTimeoutEvents
	}
	if t.MaxResources > 0 {
		d.MaxResources = t.MaxResources
	}
	return d
}

// Clock returns the registry's time source.
func (r *Registry) Clock() lifecycle.Clock {
	return r.clock
}

// Register adds a request. Registering an id twice replaces the older row.
func (r *Registry) Register(rc *lifecycle.RequestContext, t lifecycle.Terminator) {
	r.mu.Lock()
	if _, ok := r.rows[rc.ID]; ok {
		r.logger.Warn("request id registered twice", "request_id", rc.ID)
	}
	r.rows[rc.ID] = &row{rc: rc, term: t}
	r.total++
	r.mu.Unlock()

	if r.recorder != nil {
		r.recorder.RequestStarted(string(rc.Kind))
	}
}

// TrackResource records that request id holds key.
func (r *Registry) TrackResource(id, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rw, ok := r.rows[id]
	if !ok {
		return
	}
	rw.rc.AddResource(key)
	ids, ok := r.resources[key]
	if !ok {
		ids = make(map[string]struct{})
		r.resources[key] = ids
	}
	ids[id] = struct{}{}
}

// ReleaseResource records that request id no longer holds key.
func (r *Registry) ReleaseResource(id, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rw, ok := r.rows[id]; ok {
		rw.rc.RemoveResource(key)
	}
	r.unindexLocked(id, key)
}

func (r *Registry) unindexLocked(id, key string) {
	ids, ok := r.resources[key]
	if !ok {
		return
	}
	delete(ids, id)
	if len(ids) == 0 {
		delete(r.resources, key)
		delete(r.leaked, key)
	}
}

// TrackTimeoutEvent records a fired watchdog.
func (r *Registry) TrackTimeoutEvent(id, name string) {
	r.mu.Lock()
	rw, ok := r.rows[id]
	if ok {
		r.timeoutEvents++
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	rw.rc.RecordTimeout(name)
	if r.recorder != nil {
		r.recorder.TimeoutFired(name)
	}
}

// TrackRaceEvent records a losing termination attempt.
func (r *Registry) TrackRaceEvent(id, kind, details string) {
	r.mu.Lock()
	rw, ok := r.rows[id]
	if ok {
		r.raceEvents++
		if !rw.raced {
			rw.raced = true
			r.racedRequests++
		}
		if kind == lifecycle.RaceTimeoutConflict && !rw.timeoutConflict {
			rw.timeoutConflict = true
			r.conflictRequests++
		}
	}
	r.mu.Unlock()

	if ok {
		rw.rc.RecordRace(kind, details)
		r.logger.Debug("termination race", "request_id", id, "kind", kind, "details", details)
		if r.recorder != nil {
			r.recorder.RaceObserved(kind)
		}
	}
}

// Complete marks a request terminated and schedules its eviction after
// the grace period. Tracked resources are left in place; anything not
// released by then is reported by DetectLeaks.
func (r *Registry) Complete(id string, reason lifecycle.Reason, details string) {
	now := r.clock.Now()

	r.mu.Lock()
	rw, ok := r.rows[id]
	if !ok || rw.completed {
		r.mu.Unlock()
		return
	}
	rw.completed = true
	rw.completedAt = now
	rw.reason = reason
	rw.details = details
	r.completed++
	r.reasons[reason]++
	kind, created := rw.rc.Kind, rw.rc.CreatedAt
	r.mu.Unlock()

	// The clock is never called with r.mu held; fake clocks run callbacks
	// under their own lock.
	timer := r.clock.AfterFunc(r.grace, func() { r.evict(id, rw) })

	r.mu.Lock()
	current := r.rows[id] == rw
	if current {
		rw.evictTimer = timer
	}
	r.mu.Unlock()
	if !current {
		timer.Stop()
	}

	if r.recorder != nil {
		r.recorder.RequestTerminated(string(kind), string(reason), now.Sub(created))
	}
}

// evict removes rw if it is still the row registered under id.
func (r *Registry) evict(id string, rw *row) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rows[id] == rw {
		delete(r.rows, id)
	}
}

// Cleanup evicts a request immediately and releases its tracked resources.
func (r *Registry) Cleanup(id string) bool {
	r.mu.Lock()
	rw, ok := r.rows[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.rows, id)
	for _, key := range rw.rc.Resources() {
		rw.rc.RemoveResource(key)
		r.unindexLocked(id, key)
	}
	timer := rw.evictTimer
	r.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	return true
}

// EvictExpired removes completed rows whose grace period has elapsed. It
// returns the number removed. The sweep calls it in case a grace timer was
// lost.
func (r *Registry) EvictExpired() int {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, rw := range r.rows {
		if rw.completed && !now.Before(rw.completedAt.Add(r.grace)) {
			delete(r.rows, id)
			n++
		}
	}
	return n
}

// ForceCleanup terminates every live request with ReasonForceCleanup,
// waits for their teardown (bounded by ctx), then clears the registry. It
// returns the number of requests terminated.
func (r *Registry) ForceCleanup(ctx context.Context) int {
	r.mu.Lock()
	var live []lifecycle.Terminator
	for _, rw := range r.rows {
		if !rw.completed && rw.term != nil {
			live = append(live, rw.term)
		}
	}
	r.mu.Unlock()

	// Terminate reports back through Complete, so r.mu must not be held.
	futures := make([]*lifecycle.Future, 0, len(live))
	for _, t := range live {
		futures = append(futures, t.Terminate(lifecycle.ReasonForceCleanup))
	}
	for _, f := range futures {
		if err := f.Wait(ctx); err != nil {
			r.logger.Warn("forced cleanup did not finish", "error", err)
			break
		}
	}

	var timers []clock.Timer
	r.mu.Lock()
	for _, rw := range r.rows {
		if rw.evictTimer != nil {
			timers = append(timers, rw.evictTimer)
		}
	}
	r.rows = make(map[string]*row)
	r.resources = make(map[string]map[string]struct{})
	r.leaked = make(map[string]struct{})
	r.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}

	r.logger.Info("forced cleanup completed", "terminated", len(live))
	return len(live)
}

// RequestInfo is the diagnostic view of one registry row.
type RequestInfo struct {
	lifecycle.Snapshot
	Completed   bool      `json:"completed"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
	Details     string    `json:"details,omitempty"`
}

func (rw *row) info() RequestInfo {
	return RequestInfo{
		Snapshot:    rw.rc.Snapshot(),
		Completed:   rw.completed,
		CompletedAt: rw.completedAt,
		Details:     rw.details,
	}
}

// Request returns the row for id.
func (r *Registry) Request(id string) (RequestInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rw, ok := r.rows[id]
	if !ok {
		return RequestInfo{}, false
	}
	return rw.info(), true
}

// Requests returns every row, oldest first.
func (r *Registry) Requests() []RequestInfo {
	r.mu.Lock()
	out := make([]RequestInfo, 0, len(r.rows))
	for _, rw := range r.rows {
		out = append(out, rw.info())
	}
	r.mu.Unlock()
	sortInfos(out)
	return out
}

// Len returns the number of rows, live or within their grace period.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}
