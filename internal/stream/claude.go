package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sessionbridge/sessionbridge/internal/sse"
)

// ClaudeConverter consumes a Claude-family upstream event stream. This
// family declares SSE event names rather than path hints, and has a single
// content channel: delta text is the only thing extracted.
type ClaudeConverter struct {
	opts Options
}

func NewClaudeConverter(opts Options) *ClaudeConverter {
	return &ClaudeConverter{opts: opts}
}

// Stream drains the upstream, emitting content fragments until a
// message_stop, a stop-carrying message_delta, or end of stream.
func (c *ClaudeConverter) Stream(ctx context.Context, upstream io.Reader, emit func(Fragment) error) error {
	scanner := sse.NewScanner(upstream)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		event := scanner.Event()
		if event.Done() {
			break
		}

		text, stop := c.classify(event)

		if text != "" {
			if err := emit(Fragment{Text: sanitizeContent(text)}); err != nil {
				return err
			}
		}

		if stop {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read upstream stream: %w", err)
	}

	return nil
}

// Drain accumulates the stream into a single aggregate.
func (c *ClaudeConverter) Drain(ctx context.Context, upstream io.Reader) (Aggregate, error) {
	var content strings.Builder

	err := c.Stream(ctx, upstream, func(f Fragment) error {
		content.WriteString(f.Text)
		return nil
	})
	if err != nil {
		return Aggregate{}, err
	}

	return Aggregate{Content: content.String()}, nil
}

// classify maps one declared event to its text increment and whether the
// stream is finished. Malformed frames are skipped silently.
func (c *ClaudeConverter) classify(event sse.Event) (string, bool) {
	switch event.Name {
	case "message_stop":
		return "", true

	case "content_block_delta":
		var frame struct {
			Delta struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"delta"`
		}

		if err := json.Unmarshal([]byte(event.Data), &frame); err != nil {
			return "", false
		}

		return frame.Delta.Text, false

	case "message_delta":
		var frame struct {
			Delta struct {
				StopReason string `json:"stop_reason"`
			} `json:"delta"`
		}

		if err := json.Unmarshal([]byte(event.Data), &frame); err != nil {
			return "", false
		}

		return "", frame.Delta.StopReason != ""

	case "completion", "":
		// Legacy completion frames, named or bare.
		var frame struct {
			Completion string `json:"completion"`
			StopReason string `json:"stop_reason"`
		}

		if err := json.Unmarshal([]byte(event.Data), &frame); err != nil {
			return "", false
		}

		return frame.Completion, frame.StopReason != ""
	}

	return "", false
}
