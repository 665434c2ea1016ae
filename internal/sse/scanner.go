// Package sse tokenizes server-sent-event byte streams into event records.
// Both upstream stream converters share this one tokenizer instead of
// re-parsing lines ad hoc.
package sse

import (
	"bufio"
	"io"
	"strings"
)

// maxFrameSize bounds a single SSE line; upstream frames carrying whole
// message bodies can be large.
const maxFrameSize = 1024 * 1024

// Event is one tokenized SSE record. Name is empty when the frame had no
// event line. Data holds the payload with the "data:" prefix stripped.
type Event struct {
	Name string
	Data string
}

// Done reports the OpenAI-style terminal sentinel.
func (e Event) Done() bool {
	return e.Data == "[DONE]"
}

// Scanner reads SSE frames from a stream. It is a finite, forward-only
// sequence: one Scanner per upstream response, not restartable.
type Scanner struct {
	scanner *bufio.Scanner
	event   Event
	pending string
}

func NewScanner(r io.Reader) *Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)

	return &Scanner{scanner: scanner}
}

// Scan advances to the next data-carrying record. It returns false at end
// of stream or on a read error.
func (s *Scanner) Scan() bool {
	for s.scanner.Scan() {
		line := strings.TrimRight(s.scanner.Text(), "\r")

		switch {
		case line == "":
			// Frame boundary resets the pending event name.
			s.pending = ""
		case strings.HasPrefix(line, ":"):
			// SSE comment / keep-alive.
		case strings.HasPrefix(line, "event:"):
			s.pending = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			s.event = Event{
				Name: s.pending,
				Data: strings.TrimSpace(strings.TrimPrefix(line, "data:")),
			}

			return true
		}
	}

	return false
}

// Event returns the record produced by the last successful Scan.
func (s *Scanner) Event() Event {
	return s.event
}

// Err returns the first non-EOF error encountered by the underlying reader.
func (s *Scanner) Err() error {
	return s.scanner.Err()
}
