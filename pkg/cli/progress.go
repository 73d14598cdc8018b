package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// DrainProgress renders how many of a relay's in-flight requests have
// finished since Start.
type DrainProgress struct {
	mu        sync.Mutex
	w         io.Writer
	now       func() time.Time
	initial   int64
	remaining int64
	started   time.Time
}

// NewDrainProgress creates a reporter writing to w. A nil w uses
// os.Stderr.
func NewDrainProgress(w io.Writer) *DrainProgress {
	if w == nil {
		w = os.Stderr
	}
	return &DrainProgress{w: w, now: time.Now}
}

// Start records the number of active requests.
func (p *DrainProgress) Start(active int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initial = active
	p.remaining = active
	p.started = p.now()
	p.render()
}

// Update records the number still active. New requests arriving during the
// drain can push remaining above the initial count; the bar clamps.
func (p *DrainProgress) Update(remaining int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remaining = remaining
	p.render()
}

// Finish ends the line.
func (p *DrainProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.render()
	fmt.Fprintln(p.w)
}

// Error ends the line with err.
func (p *DrainProgress) Error(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "\n✗ Error: %v\n", err)
}

func (p *DrainProgress) render() {
	const width = 40

	done := p.initial - p.remaining
	if done < 0 {
		done = 0
	}
	fraction := 1.0
	if p.initial > 0 {
		fraction = float64(done) / float64(p.initial)
	}
	filled := int(width * fraction)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	elapsed := p.now().Sub(p.started).Truncate(100 * time.Millisecond)
	fmt.Fprintf(p.w, "\rDraining: [%s] %d active, %d finished (%s)", bar, p.remaining, done, elapsed)
}
