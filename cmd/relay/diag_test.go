package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/diagnostics"
	"mercator-hq/relay/pkg/lifecycle"
	"mercator-hq/relay/pkg/lifecycle/lifecycletest"
)

func newDiagServer(t *testing.T) (*httptest.Server, *diagnostics.Registry) {
	t.Helper()
	reg := diagnostics.New(diagnostics.Options{})
	mux := http.NewServeMux()
	diagnostics.NewHandler(reg, diagnostics.NewSweeper(reg, "", diagnostics.DefaultAlertThresholds())).Register(mux, "")
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, reg
}

// track starts a live request reporting to reg. It is terminated when the
// test ends if nothing else terminates it first.
func track(t *testing.T, reg *diagnostics.Registry, id string) *lifecycle.Coordinator {
	t.Helper()
	rc := lifecycle.NewRequestContext(id, lifecycle.KindIncremental, reg.Clock())
	c := lifecycle.NewCoordinator(rc, lifecycle.NewSink(lifecycletest.NewTransport()), lifecycle.Options{
		Clock:    reg.Clock(),
		Timeouts: lifecycle.DefaultTimeouts(),
		Reporter: reg,
	})
	c.TrackResource("upstream:fake:"+id, nil)
	t.Cleanup(func() { c.Terminate(lifecycle.ReasonManualAbort) })
	return c
}

func TestDiagMetrics(t *testing.T) {
	srv, reg := newDiagServer(t)
	track(t, reg, "req-1")

	out, err := execute(t, "diag", "metrics", "--addr", srv.URL, "--output", "json")
	if err != nil {
		t.Fatalf("diag metrics error = %v", err)
	}
	var m diagnostics.Metrics
	if err := json.Unmarshal([]byte(out), &m); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if m.ActiveRequests != 1 || m.TrackedResources != 1 {
		t.Errorf("metrics = %+v, want 1 active with 1 resource", m)
	}

	out, err = execute(t, "diag", "metrics", "--addr", srv.URL, "--output", "text")
	if err != nil {
		t.Fatalf("diag metrics error = %v", err)
	}
	if !strings.HasPrefix(out, "METRIC") || !strings.Contains(out, "active_requests") {
		t.Errorf("text output:\n%s", out)
	}
}

func TestDiagRequests(t *testing.T) {
	srv, reg := newDiagServer(t)
	track(t, reg, "req-1")
	track(t, reg, "req-2")

	out, err := execute(t, "diag", "requests", "--addr", srv.URL, "--output", "csv")
	if err != nil {
		t.Fatalf("diag requests error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("csv lines = %d, want header plus 2 rows:\n%s", len(lines), out)
	}
	if lines[0] != "ID,KIND,STATE,REASON,AGE,RESOURCES" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(out, "req-1,incremental") {
		t.Errorf("req-1 row missing:\n%s", out)
	}

	out, err = execute(t, "diag", "request", "req-2", "--addr", srv.URL, "--output", "text")
	if err != nil {
		t.Fatalf("diag request error = %v", err)
	}
	if !strings.Contains(out, "upstream:fake:req-2") {
		t.Errorf("request output missing resource:\n%s", out)
	}
}

func TestDiagRequest_NotFound(t *testing.T) {
	srv, _ := newDiagServer(t)

	_, err := execute(t, "diag", "request", "missing", "--addr", srv.URL, "--output", "text")
	var apiErr *diagnostics.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *diagnostics.APIError", err)
	}
	if apiErr.Status != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", apiErr.Status)
	}
	if got := cli.ExitCode(err); got != cli.ExitError {
		t.Errorf("ExitCode() = %d, want %d", got, cli.ExitError)
	}
}

func TestDiagCleanup(t *testing.T) {
	srv, reg := newDiagServer(t)
	track(t, reg, "req-1")
	track(t, reg, "req-2")
	track(t, reg, "req-3")

	out, err := execute(t, "diag", "cleanup", "req-1", "--addr", srv.URL, "--output", "text")
	if err != nil {
		t.Fatalf("diag cleanup req-1 error = %v", err)
	}
	if !strings.Contains(out, "Evicted req-1") {
		t.Errorf("output = %q", out)
	}
	if _, ok := reg.Request("req-1"); ok {
		t.Error("req-1 still tracked after cleanup")
	}

	out, err = execute(t, "diag", "cleanup", "--addr", srv.URL, "--output", "text")
	if err != nil {
		t.Fatalf("diag cleanup error = %v", err)
	}
	if !strings.Contains(out, "Terminated 2 requests") {
		t.Errorf("output = %q", out)
	}
	if reg.Len() != 0 {
		t.Errorf("registry Len() = %d, want 0", reg.Len())
	}
}

func TestDiagSweep(t *testing.T) {
	srv, reg := newDiagServer(t)
	track(t, reg, "req-1")

	out, err := execute(t, "diag", "sweep", "--addr", srv.URL, "--output", "json")
	if err != nil {
		t.Fatalf("diag sweep error = %v", err)
	}
	var res diagnostics.SweepResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if res.Metrics.ActiveRequests != 1 {
		t.Errorf("sweep ActiveRequests = %d, want 1", res.Metrics.ActiveRequests)
	}
}

func TestDiagWait(t *testing.T) {
	srv, reg := newDiagServer(t)
	c := track(t, reg, "req-1")

	go func() {
		time.Sleep(50 * time.Millisecond)
		c.Terminate(lifecycle.ReasonCompleted)
	}()

	out, err := execute(t, "diag", "wait", "--addr", srv.URL, "--interval", "10ms", "--wait-timeout", "5s")
	if err != nil {
		t.Fatalf("diag wait error = %v", err)
	}
	if !strings.Contains(out, "No active requests") {
		t.Errorf("output = %q", out)
	}
}

func TestDiagWait_Timeout(t *testing.T) {
	srv, reg := newDiagServer(t)
	track(t, reg, "req-1")

	_, err := execute(t, "diag", "drain", "--addr", srv.URL, "--interval", "10ms", "--wait-timeout", "50ms")
	if err == nil || !strings.Contains(err.Error(), "still active") {
		t.Errorf("error = %v, want still active", err)
	}
}

func TestDiag_BadAddress(t *testing.T) {
	if _, err := execute(t, "diag", "metrics", "--addr", "http://", "--output", "text"); err == nil {
		t.Error("diag metrics with empty host error = nil, want error")
	}
}
