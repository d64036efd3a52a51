package events

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/stacklok/toolhive-roster/internal/logger"
)

const maxLineSize = 1 << 20

// StreamSource reads newline-delimited JSON events, one Event per line.
// Malformed lines are logged and skipped.
type StreamSource struct {
	name string
	r    io.Reader
}

// NewStreamSource creates a source over r. name identifies it in logs.
func NewStreamSource(name string, r io.Reader) *StreamSource {
	return &StreamSource{name: name, r: r}
}

// Run delivers every event in the stream to h. It returns when the stream
// ends, a read fails, or ctx is done between lines.
func (s *StreamSource) Run(ctx context.Context, h Handler) error {
	scanner := bufio.NewScanner(s.r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			logger.Warnw("Skipping malformed event", "source", s.name, "line", line, "error", err)
			continue
		}
		if err := Deliver(ctx, h, ev); err != nil {
			logger.Warnw("Skipping event", "source", s.name, "line", line, "error", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read events from %s: %w", s.name, err)
	}
	return nil
}
