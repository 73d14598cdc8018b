package lifecycle

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"mercator-hq/relay/pkg/lifecycle/lifecycletest"
)

func TestState_TextRoundTrip(t *testing.T) {
	for _, want := range []State{StateActive, StateTerminating, StateTerminated} {
		t.Run(want.String(), func(t *testing.T) {
			text, err := want.MarshalText()
			if err != nil {
				t.Fatalf("MarshalText() error = %v", err)
			}
			var got State
			if err := got.UnmarshalText(text); err != nil {
				t.Fatalf("UnmarshalText(%q) error = %v", text, err)
			}
			if got != want {
				t.Errorf("UnmarshalText(%q) = %v, want %v", text, got, want)
			}
		})
	}
}

func TestState_UnmarshalUnknown(t *testing.T) {
	tests := []string{"", "Active", "state(7)", "done"}
	for _, name := range tests {
		var s State
		if err := s.UnmarshalText([]byte(name)); err == nil {
			t.Errorf("UnmarshalText(%q) = nil error, want error", name)
		}
	}
}

func TestSnapshot_JSON(t *testing.T) {
	clk := lifecycletest.NewClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	rc := NewRequestContext("req-1", KindIncremental, clk)

	data, err := json.Marshal(rc.Snapshot())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	for _, field := range []string{`"resources":[]`, `"timeout_events":[]`, `"race_events":[]`, `"state":"active"`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("snapshot JSON missing %s: %s", field, data)
		}
	}

	rc.AddResource("upstream:b")
	rc.AddResource("upstream:a")
	rc.RecordTimeout(TimerInactivity)
	rc.SetMetadata("model", "gpt-4o")
	want := rc.Snapshot()

	data, err = json.Marshal(want)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var got Snapshot
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("snapshot round trip mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"upstream:a", "upstream:b"}, got.Resources); diff != "" {
		t.Errorf("Resources mismatch (-want +got):\n%s", diff)
	}
}
