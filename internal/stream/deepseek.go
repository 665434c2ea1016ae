package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sessionbridge/sessionbridge/internal/sse"
)

const (
	pathThinking = "response/thinking_content"
	pathContent  = "response/content"
	pathStatus   = "status"
)

// Fragment is one classified increment of upstream output.
type Fragment struct {
	Reasoning bool
	Text      string
}

// Options configure a reclassifier for one request.
type Options struct {
	// Model is the requested model id; reasoning-capable variants start
	// the fallback state machine in thinking phase.
	Model string
	// StripReasoning suppresses reasoning fragments entirely. Content
	// continuity is unaffected.
	StripReasoning bool
	// CleanMode extends citation/search-marker stripping to reasoning
	// text.
	CleanMode bool
}

// Aggregate is the drained form of a stream for non-streaming responses.
type Aggregate struct {
	Reasoning string
	Content   string
}

// IsReasoningModel reports whether the model id denotes a
// reasoning-capable variant.
func IsReasoningModel(model string) bool {
	m := strings.ToLower(model)

	return strings.Contains(m, "reasoner") ||
		strings.Contains(m, "-r1") ||
		strings.HasSuffix(m, "-thinking")
}

// Reclassifier consumes a DeepSeek-family upstream event stream and
// classifies each fragment as reasoning or content.
//
// Classification priority per fragment: an explicit path hint, an explicit
// type discriminator, an already-normalized delta shape, then a local state
// machine that starts in thinking phase for reasoning models and flips
// irreversibly to content on the in-band end-of-thinking marker or any
// explicit non-reasoning signal.
type Reclassifier struct {
	opts Options

	thinkingPhase     bool
	thinkingEnded     bool
	parentMessageID   string
	hasEmittedContent bool

	lastPath string
	carry    string
}

func NewReclassifier(opts Options) *Reclassifier {
	return &Reclassifier{
		opts:          opts,
		thinkingPhase: IsReasoningModel(opts.Model),
	}
}

// ParentMessageID returns the upstream message id observed on the stream,
// used by the adapter to thread the next turn onto the same conversation.
func (r *Reclassifier) ParentMessageID() string {
	return r.parentMessageID
}

// HasEmittedContent reports whether any content-phase text was produced.
func (r *Reclassifier) HasEmittedContent() bool {
	return r.hasEmittedContent
}

// Stream drains the upstream and calls emit for each classified fragment,
// in upstream order. Malformed frames are skipped, never fatal. The caller
// is responsible for the terminal stop chunk and the end sentinel.
func (r *Reclassifier) Stream(ctx context.Context, upstream io.Reader, emit func(Fragment) error) error {
	scanner := sse.NewScanner(upstream)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		event := scanner.Event()
		if event.Done() {
			break
		}

		finished, fragments := r.classify(event.Data)

		for _, fragment := range fragments {
			if err := r.deliver(fragment, emit); err != nil {
				return err
			}
		}

		if finished {
			break
		}
	}

	// A held-back marker prefix that never completed is reasoning text.
	if r.carry != "" {
		leftover := Fragment{Reasoning: true, Text: sanitizeReasoning(r.carry, r.opts.CleanMode)}
		r.carry = ""

		if err := r.deliver(leftover, emit); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read upstream stream: %w", err)
	}

	return nil
}

// Drain runs the identical classification but accumulates the two channels
// into a single aggregate for non-streaming responses.
func (r *Reclassifier) Drain(ctx context.Context, upstream io.Reader) (Aggregate, error) {
	var reasoning, content strings.Builder

	err := r.Stream(ctx, upstream, func(f Fragment) error {
		if f.Reasoning {
			reasoning.WriteString(f.Text)
		} else {
			content.WriteString(f.Text)
		}

		return nil
	})
	if err != nil {
		return Aggregate{}, err
	}

	return Aggregate{Reasoning: reasoning.String(), Content: content.String()}, nil
}

func (r *Reclassifier) deliver(f Fragment, emit func(Fragment) error) error {
	if f.Text == "" {
		return nil
	}

	if f.Reasoning {
		if r.opts.StripReasoning {
			return nil
		}
	} else {
		r.hasEmittedContent = true
	}

	return emit(f)
}

// classify maps one raw frame to zero or more fragments. The boolean
// reports a terminal status frame.
func (r *Reclassifier) classify(data string) (bool, []Fragment) {
	var frame map[string]any
	if err := json.Unmarshal([]byte(data), &frame); err != nil {
		// Non-JSON frames are skipped silently.
		return false, nil
	}

	if id, ok := frame["message_id"]; ok {
		r.parentMessageID = fmt.Sprint(id)
	}

	// (a) explicit path hint.
	if p, ok := frame["p"].(string); ok && p != "" {
		r.lastPath = p
	}

	if v, ok := frame["v"].(string); ok {
		if r.lastPath == pathStatus || v == "FINISHED" {
			return true, nil
		}

		switch r.lastPath {
		case pathThinking:
			return false, []Fragment{{Reasoning: true, Text: sanitizeReasoning(v, r.opts.CleanMode)}}
		case pathContent:
			return false, r.contentSignal(v)
		case "":
			// (d) no hint at all: fall through to the state machine.
			return false, r.fallback(v)
		default:
			// Search results, metadata paths and the like.
			return false, nil
		}
	}

	// (b) explicit type discriminator.
	if kind, ok := frame["type"].(string); ok {
		text, _ := frame["content"].(string)

		switch kind {
		case "thinking":
			return false, []Fragment{{Reasoning: true, Text: sanitizeReasoning(text, r.opts.CleanMode)}}
		case "text", "content":
			return false, r.contentSignal(text)
		case "done", "finished":
			return true, nil
		}

		return false, nil
	}

	// (c) already-normalized delta shape.
	if choices, ok := frame["choices"].([]any); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]any); ok {
			if delta, ok := choice["delta"].(map[string]any); ok {
				if text, ok := delta["reasoning_content"].(string); ok && text != "" {
					return false, []Fragment{{Reasoning: true, Text: sanitizeReasoning(text, r.opts.CleanMode)}}
				}

				if text, ok := delta["content"].(string); ok && text != "" {
					return false, r.contentSignal(text)
				}
			}

			if reason, ok := choice["finish_reason"].(string); ok && reason != "" {
				return true, nil
			}
		}
	}

	return false, nil
}

// contentSignal handles explicitly-classified content text: an explicit
// non-reasoning signal ends the thinking phase for good.
func (r *Reclassifier) contentSignal(text string) []Fragment {
	fragments := r.flipToContent()

	if text != "" {
		fragments = append(fragments, Fragment{Text: sanitizeContent(text)})
	}

	return fragments
}

// fallback classifies unhinted text via the thinking-phase state machine,
// splitting on the end-of-thinking marker wherever it lands relative to
// chunk boundaries.
func (r *Reclassifier) fallback(text string) []Fragment {
	if !r.thinkingPhase {
		if text == "" {
			return nil
		}

		return []Fragment{{Text: sanitizeContent(text)}}
	}

	r.carry += text

	if idx := strings.Index(r.carry, thinkEndMarker); idx >= 0 {
		before := r.carry[:idx]
		after := r.carry[idx+len(thinkEndMarker):]
		r.carry = ""

		var fragments []Fragment

		if before != "" {
			fragments = append(fragments, Fragment{Reasoning: true, Text: sanitizeReasoning(before, r.opts.CleanMode)})
		}

		fragments = append(fragments, r.flipToContent()...)

		if after != "" {
			fragments = append(fragments, Fragment{Text: sanitizeContent(after)})
		}

		return fragments
	}

	// Hold back the longest tail that could still grow into the marker.
	hold := markerPrefixLen(r.carry)
	release := r.carry[:len(r.carry)-hold]
	r.carry = r.carry[len(r.carry)-hold:]

	if release == "" {
		return nil
	}

	return []Fragment{{Reasoning: true, Text: sanitizeReasoning(release, r.opts.CleanMode)}}
}

// flipToContent ends the thinking phase irreversibly, first releasing any
// held-back reasoning text so ordering is preserved.
func (r *Reclassifier) flipToContent() []Fragment {
	var fragments []Fragment

	if r.thinkingPhase && r.carry != "" {
		fragments = append(fragments, Fragment{Reasoning: true, Text: sanitizeReasoning(r.carry, r.opts.CleanMode)})
		r.carry = ""
	}

	r.thinkingPhase = false
	r.thinkingEnded = true

	return fragments
}

// markerPrefixLen returns the length of the longest suffix of s that is a
// proper prefix of the end-of-thinking marker.
func markerPrefixLen(s string) int {
	max := len(thinkEndMarker) - 1
	if max > len(s) {
		max = len(s)
	}

	for n := max; n > 0; n-- {
		if strings.HasSuffix(s, thinkEndMarker[:n]) {
			return n
		}
	}

	return 0
}
