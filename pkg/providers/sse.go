package providers

import (
	"bufio"
	"io"
	"strings"
)

// maxEventLine is the longest SSE line accepted. Tool-call argument deltas
// can exceed bufio's 64KB default.
const maxEventLine = 1 << 20

// Event is one Server-Sent Event.
type Event struct {
	// Type is the "event:" field, empty when the upstream sent none.
	Type string

	// Data is the joined "data:" lines.
	Data string
}

// EventReader splits an upstream event stream into events.
type EventReader struct {
	scanner *bufio.Scanner
}

// NewEventReader reads events from r.
func NewEventReader(r io.Reader) *EventReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	return &EventReader{scanner: scanner}
}

// Next returns the next event, or io.EOF when the stream ends. Comment
// lines and id/retry fields are skipped. A trailing event without a blank
// line is still returned.
func (r *EventReader) Next() (*Event, error) {
	var (
		event Event
		data  []string
		seen  bool
	)

	for r.scanner.Scan() {
		line := r.scanner.Text()
		if line == "" {
			if seen {
				event.Data = strings.Join(data, "\n")
				return &event, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			event.Type = value
			seen = true
		case "data":
			data = append(data, value)
			seen = true
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	if seen {
		event.Data = strings.Join(data, "\n")
		return &event, nil
	}
	return nil, io.EOF
}
