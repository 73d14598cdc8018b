package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"mercator-hq/relay/pkg/faults"
)

// Terminator is anything that can be asked to terminate a request.
type Terminator interface {
	Terminate(reason Reason) *Future
}

// Reporter receives lifecycle events for diagnostics. The diagnostics
// registry implements it; coordinators never read from it.
type Reporter interface {
	Register(rc *RequestContext, t Terminator)
	TrackResource(id, key string)
	ReleaseResource(id, key string)
	TrackTimeoutEvent(id, name string)
	TrackRaceEvent(id, kind, details string)
	Complete(id string, reason Reason, details string)
}

// Race event kinds.
const (
	RaceConcurrentTerminate = "concurrent_terminate"
	RaceTimeoutConflict     = "timeout_conflict"
)

// Options configures a Coordinator.
type Options struct {
	// Clock drives timers. Defaults to the real clock.
	Clock Clock

	// Timeouts are capped by their Max before use.
	Timeouts TimeoutConfig

	// Reporter receives diagnostics. Defaults to recording on the
	// RequestContext only.
	Reporter Reporter

	// Framer encodes stream frames. Defaults to SSEFramer.
	Framer Framer

	// Classify converts producer errors into faults. Defaults to faults.From.
	Classify func(error) *faults.Fault

	// Parent is the parent of the request context handed to producers.
	// Its cancellation is ignored; only teardown cancels the request.
	Parent context.Context

	Logger *slog.Logger
}

// Coordinator owns the termination of one request. Any number of sources
// may call Terminate; the first runs teardown and every caller receives the
// same Future.
type Coordinator struct {
	rc       *RequestContext
	sink     *Sink
	timers   *TimerRegistry
	timeouts TimeoutConfig
	reporter Reporter
	framer   Framer
	classify func(error) *faults.Fault
	clock    Clock
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	future *Future

	mu        sync.Mutex
	callbacks []func()
	startedAt time.Time
	emitter   *Emitter
}

// NewCoordinator creates a coordinator for rc writing through sink,
// registers it with the reporter and arms the base timer.
func NewCoordinator(rc *RequestContext, sink *Sink, opts Options) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Reporter == nil {
		opts.Reporter = localReporter{rc: rc}
	}
	if opts.Framer == nil {
		opts.Framer = SSEFramer{}
	}
	if opts.Classify == nil {
		opts.Classify = faults.From
	}
	if opts.Parent == nil {
		opts.Parent = context.Background()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("component", "lifecycle")
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(opts.Parent))
	c := &Coordinator{
		rc:       rc,
		sink:     sink,
		timers:   NewTimerRegistry(opts.Clock, rc.LastActivity),
		timeouts: opts.Timeouts.Effective(),
		reporter: opts.Reporter,
		framer:   opts.Framer,
		classify: opts.Classify,
		clock:    opts.Clock,
		logger:   opts.Logger.With("request_id", rc.ID),
		ctx:      ctx,
		cancel:   cancel,
		future:   newFuture(),
	}
	c.callbacks = []func(){cancel}

	sink.OnWriteError(func(err error) {
		c.logger.Warn("response write failed", "error", err)
		c.terminate(ReasonResponseError, nil, false)
	})

	c.reporter.Register(rc, c)

	if d := c.timeouts.Base; d > 0 {
		c.timers.Set(TimerBase, d, c.onTimeout(TimerBase, ReasonBaseTimeout, faults.TimeoutBase, d), false)
	}
	return c
}

// ID returns the request id.
func (c *Coordinator) ID() string { return c.rc.ID }

// Request returns the request context.
func (c *Coordinator) Request() *RequestContext { return c.rc }

// Sink returns the response sink.
func (c *Coordinator) Sink() *Sink { return c.sink }

// Timers returns the request's timer registry.
func (c *Coordinator) Timers() *TimerRegistry { return c.timers }

// Timeouts returns the effective deadlines.
func (c *Coordinator) Timeouts() TimeoutConfig { return c.timeouts }

// Context is cancelled exactly once, during teardown. Upstream calls must
// use it.
func (c *Coordinator) Context() context.Context { return c.ctx }

// State returns the termination state.
func (c *Coordinator) State() State { return c.rc.State() }

// Reason returns the winning termination reason.
func (c *Coordinator) Reason() Reason { return c.rc.Reason() }

// Future returns the termination future. It resolves only after some
// source has called Terminate.
func (c *Coordinator) Future() *Future { return c.future }

// TerminationStarted returns when teardown began, or the zero time.
func (c *Coordinator) TerminationStarted() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startedAt
}

// Done is closed when teardown completes.
func (c *Coordinator) Done() <-chan struct{} { return c.future.Done() }

// Emitter returns the request's streaming emitter.
func (c *Coordinator) Emitter() *Emitter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.emitter == nil {
		c.emitter = &Emitter{c: c}
	}
	return c.emitter
}

// OnTerminate registers fn to run during teardown, after timers are cleared
// and before the sink is ended. Callbacks run in registration order. It
// returns false, without registering, once termination has begun.
func (c *Coordinator) OnTerminate(fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rc.State() != StateActive {
		return false
	}
	c.callbacks = append(c.callbacks, fn)
	return true
}

// TrackResource records key against the request and releases it during
// teardown, calling release first if it is non-nil. If termination has
// already begun the resource is released immediately.
func (c *Coordinator) TrackResource(key string, release func()) {
	c.reporter.TrackResource(c.rc.ID, key)
	cleanup := func() {
		if release != nil {
			release()
		}
		c.reporter.ReleaseResource(c.rc.ID, key)
	}
	if !c.OnTerminate(cleanup) {
		cleanup()
	}
}

// Terminate begins teardown with reason if the request is still active.
func (c *Coordinator) Terminate(reason Reason) *Future {
	return c.terminate(reason, nil, true)
}

// TerminateWithFault begins teardown and, if the response has not been
// finalized, delivers err to the client: as a structured error response if
// no headers were sent, or as an in-band error frame followed by the
// terminal sentinel for an incremental response already in flight.
func (c *Coordinator) TerminateWithFault(reason Reason, err error) *Future {
	return c.terminate(reason, err, true)
}

// Disconnect handles a client that went away. The sink is destroyed before
// teardown so no further bytes are attempted.
func (c *Coordinator) Disconnect() *Future {
	if c.rc.State() == StateActive {
		c.sink.Destroy()
	}
	return c.Terminate(ReasonClientDisconnect)
}

func (c *Coordinator) terminate(reason Reason, fault error, observeRace bool) *Future {
	c.mu.Lock()
	if state := c.rc.State(); state != StateActive {
		winner := c.rc.Reason()
		c.mu.Unlock()
		if state == StateTerminating && observeRace {
			kind := RaceConcurrentTerminate
			if isTimeoutReason(reason) {
				kind = RaceTimeoutConflict
			}
			c.reporter.TrackRaceEvent(c.rc.ID, kind, fmt.Sprintf("%s lost to %s", reason, winner))
		}
		c.logger.Debug("terminate ignored", "reason", reason, "winner", winner, "state", state)
		return c.future
	}
	c.rc.setReason(reason)
	c.rc.advance(StateActive, StateTerminating)
	c.startedAt = c.clock.Now()
	callbacks := c.callbacks
	c.callbacks = nil
	c.mu.Unlock()

	c.teardown(reason, fault, callbacks)
	return c.future
}

func (c *Coordinator) teardown(reason Reason, fault error, callbacks []func()) {
	defer c.future.resolve()

	c.safely("clear timers", func() { c.timers.ClearAll() })

	for i, cb := range callbacks {
		c.safely(fmt.Sprintf("callback %d", i), cb)
	}

	c.safely("finalize", func() { c.finalize(fault) })

	c.rc.advance(StateTerminating, StateTerminated)

	details := ""
	if fault != nil {
		details = c.describe(fault)
	}
	c.safely("report", func() { c.reporter.Complete(c.rc.ID, reason, details) })

	attrs := []any{
		"reason", reason,
		"kind", c.rc.Kind,
		"duration_ms", c.clock.Since(c.rc.CreatedAt).Milliseconds(),
	}
	if fault != nil {
		attrs = append(attrs, "error", fault)
	}
	c.logger.Info("request terminated", attrs...)
}

// describe renders fault for the reporter, led by its fault kind.
func (c *Coordinator) describe(fault error) string {
	if f := c.classify(fault); f != nil {
		return f.Error()
	}
	return fault.Error()
}

// finalize ends the sink, delivering fault if one is pending.
func (c *Coordinator) finalize(fault error) {
	if !c.sink.CanWrite() {
		if fault != nil {
			c.logger.Debug("fault not delivered, response already closed", "error", fault)
		}
		return
	}
	if fault == nil {
		c.sink.End()
		return
	}

	f := c.classify(fault)
	body := f.JSON(c.rc.ID)
	switch {
	case !c.sink.HeadersSent():
		if !c.sink.Respond(f.HTTPStatus(), f.Header(), body) {
			c.logger.Warn("error response not delivered", "error", fault)
		}
	case c.rc.Kind == KindIncremental:
		if !c.sink.End(c.framer.Frame("error", body), c.framer.Sentinel()) {
			c.logger.Warn("error frame not delivered", "error", fault)
		}
	default:
		c.sink.End()
	}
}

// safely runs fn, logging instead of propagating a panic.
func (c *Coordinator) safely(step string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("teardown step panicked",
				"step", step,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}

// onTimeout returns the callback for an automatic timer.
func (c *Coordinator) onTimeout(name string, reason Reason, kind faults.TimeoutKind, after time.Duration) func() {
	return func() {
		// A timer firing while teardown clears it only records the race.
		if c.State() == StateActive {
			c.reporter.TrackTimeoutEvent(c.rc.ID, name)
			c.logger.Warn("request timed out", "timer", name, "after", after)
		}
		c.TerminateWithFault(reason, faults.Timeout(kind, after))
	}
}

// armStreaming installs the stream-start timers.
func (c *Coordinator) armStreaming() {
	if d := c.timeouts.Streaming; d > 0 {
		c.timers.Set(TimerStreaming, d, c.onTimeout(TimerStreaming, ReasonStreamingTimeout, faults.TimeoutStreaming, d), false)
	}
	if d := c.timeouts.Inactivity; d > 0 {
		c.timers.Set(TimerInactivity, d, c.onTimeout(TimerInactivity, ReasonInactivityTimeout, faults.TimeoutInactivity, d), true)
	}
}

func isTimeoutReason(r Reason) bool {
	switch r {
	case ReasonBaseTimeout, ReasonStreamingTimeout, ReasonInactivityTimeout:
		return true
	}
	return false
}

// localReporter records diagnostics on the request context alone.
type localReporter struct {
	rc *RequestContext
}

func (l localReporter) Register(*RequestContext, Terminator) {}
func (l localReporter) TrackResource(_, key string) { l.rc.AddResource(key) }
func (l localReporter) ReleaseResource(_, key string) { l.rc.RemoveResource(key) }
func (l localReporter) TrackTimeoutEvent(_, name string) { l.rc.RecordTimeout(name) }
func (l localReporter) TrackRaceEvent(_, kind, details string) { l.rc.RecordRace(kind, details) }
func (l localReporter) Complete(string, Reason, string) {}

// errCanceled reports whether err stems from the request's own cancellation.
func (c *Coordinator) errCanceled(err error) bool {
	return c.ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, c.ctx.Err()))
}
