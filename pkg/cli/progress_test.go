package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestProgress() (*DrainProgress, *bytes.Buffer, *time.Time) {
	var buf bytes.Buffer
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewDrainProgress(&buf)
	p.now = func() time.Time { return now }
	return p, &buf, &now
}

func lastFrame(buf *bytes.Buffer) string {
	frames := strings.Split(buf.String(), "\r")
	return strings.TrimSpace(frames[len(frames)-1])
}

func TestDrainProgress(t *testing.T) {
	p, buf, now := newTestProgress()

	p.Start(4)
	if got := lastFrame(buf); !strings.Contains(got, "4 active, 0 finished") {
		t.Errorf("start frame = %q", got)
	}

	*now = now.Add(1500 * time.Millisecond)
	p.Update(1)
	got := lastFrame(buf)
	if !strings.Contains(got, "1 active, 3 finished (1.5s)") {
		t.Errorf("update frame = %q", got)
	}
	if n := strings.Count(got, "█"); n != 30 {
		t.Errorf("filled cells = %d, want 30", n)
	}

	p.Update(0)
	p.Finish()
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Error("Finish() did not end the line")
	}
	if n := strings.Count(lastFrame(buf), "█"); n != 40 {
		t.Errorf("filled cells after drain = %d, want 40", n)
	}
}

func TestDrainProgress_Clamps(t *testing.T) {
	p, buf, _ := newTestProgress()

	p.Start(2)
	p.Update(5)
	if got := lastFrame(buf); !strings.Contains(got, "5 active, 0 finished") || strings.Contains(got, "█") {
		t.Errorf("frame = %q, want empty bar", got)
	}
}

func TestDrainProgress_NothingActive(t *testing.T) {
	p, buf, _ := newTestProgress()
	p.Start(0)
	if n := strings.Count(lastFrame(buf), "█"); n != 40 {
		t.Errorf("filled cells = %d, want a full bar", n)
	}
}

func TestDrainProgress_Error(t *testing.T) {
	p, buf, _ := newTestProgress()
	p.Start(1)
	p.Error(errors.New("relay unreachable"))
	if !strings.Contains(buf.String(), "✗ Error: relay unreachable") {
		t.Errorf("output = %q", buf.String())
	}
}
