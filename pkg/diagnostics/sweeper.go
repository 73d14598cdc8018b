package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs the sweep every 30 seconds.
const DefaultSchedule = "@every 30s"

// AlertThresholds are the rates, in percent, above which a sweep logs a
// warning. Zero disables an alert.
type AlertThresholds struct {
	HangingRate         float64
	LeakRate            float64
	RaceRate            float64
	TimeoutConflictRate float64
}

// DefaultAlertThresholds returns the standard alert rates.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		HangingRate:         5,
		LeakRate:            1,
		RaceRate:            10,
		TimeoutConflictRate: 5,
	}
}

// SweepResult is the outcome of one sweep.
type SweepResult struct {
	Evicted int              `json:"evicted"`
	Hanging []HangingRequest `json:"hanging"`
	Leaks   []Leak           `json:"leaks"`
	Metrics Metrics          `json:"metrics"`
	Alerts  []string         `json:"alerts"`
}

// Sweeper periodically evicts stale rows, runs the detectors and logs when
// rates cross their alert thresholds. It never changes request state.
type Sweeper struct {
	registry *Registry
	schedule string
	alerts   AlertThresholds
	cron     *cron.Cron
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	last    *SweepResult
}

// NewSweeper creates a sweeper for reg. An empty schedule uses DefaultSchedule.
func NewSweeper(reg *Registry, schedule string, alerts AlertThresholds) *Sweeper {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Sweeper{
		registry: reg,
		schedule: schedule,
		alerts:   alerts,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "diagnostics.sweeper"),
	}
}

// Start schedules the sweep. The sweeper stops when ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	if _, err := s.cron.AddFunc(s.schedule, func() { s.Sweep() }); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("diagnostics sweeper started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Run starts the sweeper and blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	// A sweep in progress takes s.mu to publish its result.
	<-s.cron.Stop().Done()
	s.logger.Info("diagnostics sweeper stopped")
}

// Sweep runs one pass immediately.
func (s *Sweeper) Sweep() SweepResult {
	res := SweepResult{
		Evicted: s.registry.EvictExpired(),
		Hanging: s.registry.DetectHanging(),
		Leaks:   s.registry.DetectLeaks(),
	}
	res.Metrics = s.registry.Metrics()
	res.Alerts = s.check(res.Metrics)

	for _, h := range res.Hanging {
		s.logger.Warn("hanging request",
			"request_id", h.ID,
			"age", h.Age,
			"inactivity", h.Inactivity,
			"timeout_events", h.TimeoutEvents,
			"resources", h.Resources,
			"reasons", h.Reasons,
		)
	}
	for _, l := range res.Leaks {
		s.logger.Warn("leaked resource", "key", l.Key, "request_ids", l.RequestIDs)
	}
	s.logger.Debug("diagnostics sweep completed",
		"evicted", res.Evicted,
		"tracked", res.Metrics.TrackedRequests,
		"hanging", len(res.Hanging),
		"leaks", len(res.Leaks),
	)

	if s.registry.recorder != nil {
		s.registry.recorder.SweepCompleted(res.Metrics)
	}

	s.mu.Lock()
	s.last = &res
	s.mu.Unlock()
	return res
}

// Last returns the most recent sweep result.
func (s *Sweeper) Last() (SweepResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return SweepResult{}, false
	}
	return *s.last, true
}

// check logs and returns the rates above their alert thresholds.
func (s *Sweeper) check(m Metrics) []string {
	var alerts []string
	for _, a := range []struct {
		name      string
		rate      float64
		threshold float64
	}{
		{"hanging_rate", m.HangingRate, s.alerts.HangingRate},
		{"leak_rate", m.LeakRate, s.alerts.LeakRate},
		{"race_rate", m.RaceRate, s.alerts.RaceRate},
		{"timeout_conflict_rate", m.TimeoutConflictRate, s.alerts.TimeoutConflictRate},
	} {
		if a.threshold > 0 && a.rate > a.threshold {
			alerts = append(alerts, a.name)
			s.logger.Warn("diagnostic rate above threshold",
				"metric", a.name,
				"rate", a.rate,
				"threshold", a.threshold,
				"total_requests", m.TotalRequests,
			)
		}
	}
	return alerts
}
