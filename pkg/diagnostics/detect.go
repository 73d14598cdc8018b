package diagnostics

import (
	"maps"
	"slices"
	"sort"
	"strings"
	"time"

	"mercator-hq/relay/pkg/lifecycle"
)

// HangingRequest describes a live request past at least one threshold.
type HangingRequest struct {
	ID            string         `json:"id"`
	Kind          lifecycle.Kind `json:"kind"`
	Age           time.Duration  `json:"age"`
	Inactivity    time.Duration  `json:"inactivity"`
	TimeoutEvents int            `json:"timeout_events"`
	Resources     int            `json:"resources"`
	Reasons       []string       `json:"reasons"`
}

// Leak is a resource key held only by requests no longer in the registry.
type Leak struct {
	Key        string   `json:"key"`
	RequestIDs []string `json:"request_ids"`
}

// Metrics summarizes the registry. Rates are percentages of every request
// registered since the registry was created.
type Metrics struct {
	TotalRequests     int64            `json:"total_requests"`
	CompletedRequests int64            `json:"completed_requests"`
	ActiveRequests    int              `json:"active_requests"`
	TrackedRequests   int              `json:"tracked_requests"`
	TrackedResources  int              `json:"tracked_resources"`
	HangingRequests   int              `json:"hanging_requests"`
	LeakedResources   int              `json:"leaked_resources"`
	TimeoutEvents     int64            `json:"timeout_events"`
	RaceEvents        int64            `json:"race_events"`
	Reasons           map[string]int64 `json:"termination_reasons"`
	Uptime            time.Duration    `json:"uptime"`

	HangingRate         float64 `json:"hanging_rate"`
	LeakRate            float64 `json:"leak_rate"`
	RaceRate            float64 `json:"race_rate"`
	TimeoutConflictRate float64 `json:"timeout_conflict_rate"`
}

// DetectHanging returns live requests that exceed any threshold, oldest
// first. Completed requests are never reported.
func (r *Registry) DetectHanging() []HangingRequest {
	now := r.clock.Now()
	th := r.thresholds

	r.mu.Lock()
	defer r.mu.Unlock()

	var out []HangingRequest
	for _, rw := range r.rows {
		if rw.completed {
			continue
		}
		h := HangingRequest{
			ID:            rw.rc.ID,
			Kind:          rw.rc.Kind,
			Age:           now.Sub(rw.rc.CreatedAt),
			Inactivity:    now.Sub(rw.rc.LastActivity()),
			TimeoutEvents: len(rw.rc.TimeoutEvents()),
			Resources:     rw.rc.ResourceCount(),
		}
		if h.Age > th.MaxAge {
			h.Reasons = append(h.Reasons, "age")
		}
		if h.Inactivity > th.MaxInactivity {
			h.Reasons = append(h.Reasons, "inactivity")
		}
		if h.TimeoutEvents > th.MaxTimeoutEvents {
			h.Reasons = append(h.Reasons, "timeout_events")
		}
		if h.Resources > th.MaxResources {
			h.Reasons = append(h.Reasons, "resources")
		}
		if len(h.Reasons) == 0 {
			continue
		}
		if !rw.flaggedHanging {
			rw.flaggedHanging = true
			r.hangingSeen++
		}
		out = append(out, h)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Age != out[j].Age {
			return out[i].Age > out[j].Age
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// DetectLeaks returns resource keys none of whose holders remain registered,
// sorted by key.
func (r *Registry) DetectLeaks() []Leak {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Leak
	for key, ids := range r.resources {
		orphaned := true
		for id := range ids {
			if _, ok := r.rows[id]; ok {
				orphaned = false
				break
			}
		}
		if !orphaned {
			continue
		}
		if _, seen := r.leaked[key]; !seen {
			r.leaked[key] = struct{}{}
			r.leaksSeen++
		}
		out = append(out, Leak{Key: key, RequestIDs: slices.Sorted(maps.Keys(ids))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Metrics runs both detectors and returns the current totals and rates.
func (r *Registry) Metrics() Metrics {
	hanging := r.DetectHanging()
	leaks := r.DetectLeaks()
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	m := Metrics{
		TotalRequests:     r.total,
		CompletedRequests: r.completed,
		TrackedRequests:   len(r.rows),
		TrackedResources:  len(r.resources),
		HangingRequests:   len(hanging),
		LeakedResources:   len(leaks),
		TimeoutEvents:     r.timeoutEvents,
		RaceEvents:        r.raceEvents,
		Reasons:           make(map[string]int64, len(r.reasons)),
		Uptime:            now.Sub(r.startedAt),
	}
	for _, rw := range r.rows {
		if !rw.completed {
			m.ActiveRequests++
		}
	}
	for reason, n := range r.reasons {
		m.Reasons[string(reason)] = n
	}
	m.HangingRate = percent(r.hangingSeen, r.total)
	m.LeakRate = percent(r.leaksSeen, r.total)
	m.RaceRate = percent(r.racedRequests, r.total)
	m.TimeoutConflictRate = percent(r.conflictRequests, r.total)
	return m
}

func percent(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func sortInfos(infos []RequestInfo) {
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].CreatedAt.Before(infos[j].CreatedAt)
		}
		return strings.Compare(infos[i].ID, infos[j].ID) < 0
	})
}
