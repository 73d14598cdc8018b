package diagnostics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// DefaultPrefix is where the diagnostics endpoints are mounted.
const DefaultPrefix = "/debug/lifecycle"

// Handler serves the diagnostics surface:
//
//	GET  {prefix}/metrics                 totals and rates
//	GET  {prefix}/requests                every tracked request
//	GET  {prefix}/requests/{id}           one request
//	POST {prefix}/requests/{id}/cleanup   evict one request now
//	GET  {prefix}/hanging                 hanging requests
//	GET  {prefix}/leaks                   leaked resources
//	GET  {prefix}/sweep                   last sweep result
//	POST {prefix}/sweep                   run a sweep now
//	POST {prefix}/cleanup                 terminate every live request
type Handler struct {
	registry *Registry
	sweeper  *Sweeper

	// CleanupTimeout bounds how long forced cleanup waits for teardown.
	CleanupTimeout time.Duration
}

// NewHandler creates the diagnostics handler. sweeper may be nil.
func NewHandler(reg *Registry, sweeper *Sweeper) *Handler {
	return &Handler{registry: reg, sweeper: sweeper, CleanupTimeout: 10 * time.Second}
}

// Register mounts the endpoints on mux under prefix.
func (h *Handler) Register(mux *http.ServeMux, prefix string) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	mux.HandleFunc("GET "+prefix+"/metrics", h.handleMetrics)
	mux.HandleFunc("GET "+prefix+"/requests", h.handleRequests)
	mux.HandleFunc("GET "+prefix+"/requests/{id}", h.handleRequest)
	mux.HandleFunc("POST "+prefix+"/requests/{id}/cleanup", h.handleRequestCleanup)
	mux.HandleFunc("GET "+prefix+"/hanging", h.handleHanging)
	mux.HandleFunc("GET "+prefix+"/leaks", h.handleLeaks)
	mux.HandleFunc("GET "+prefix+"/sweep", h.handleLastSweep)
	mux.HandleFunc("POST "+prefix+"/sweep", h.handleSweep)
	mux.HandleFunc("POST "+prefix+"/cleanup", h.handleCleanup)
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Metrics())
}

func (h *Handler) handleRequests(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"requests": h.registry.Requests()})
}

func (h *Handler) handleRequest(w http.ResponseWriter, r *http.Request) {
	info, ok := h.registry.Request(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "request not found"})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) handleRequestCleanup(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.registry.Cleanup(id) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "request not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"cleaned": id})
}

func (h *Handler) handleHanging(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"hanging": h.registry.DetectHanging()})
}

func (h *Handler) handleLeaks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"leaks": h.registry.DetectLeaks()})
}

func (h *Handler) handleLastSweep(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "sweeper not running"})
		return
	}
	res, ok := h.sweeper.Last()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no sweep has run yet"})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "sweeper not running"})
		return
	}
	writeJSON(w, http.StatusOK, h.sweeper.Sweep())
}

func (h *Handler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.CleanupTimeout)
	defer cancel()

	n := h.registry.ForceCleanup(ctx)
	slog.InfoContext(r.Context(), "forced cleanup requested",
		"remote_addr", r.RemoteAddr,
		"terminated", n,
	)
	writeJSON(w, http.StatusOK, map[string]int{"terminated": n})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		slog.Error("failed to encode diagnostics response", "error", err)
	}
}
