package toolcall

import (
	"strings"
)

const (
	openTag  = "<tool_call"
	closeTag = "</tool_call>"
)

// StreamParser recognizes tool_call tags across arbitrary chunk boundaries.
// Text is buffered from the first '<' only until the tag can be confirmed
// or rejected, so plain HTML-like tags pass through with minimal delay.
// Feeding the same text in any chunking yields the same calls and the same
// released text as whole-text Parse.
type StreamParser struct {
	out       strings.Builder
	buf       []byte
	buffering bool
	calls     []ToolCall
}

func NewStreamParser() *StreamParser {
	return &StreamParser{}
}

// Feed consumes a chunk and returns any text and tool calls that can be
// released so far.
func (p *StreamParser) Feed(chunk string) (string, []ToolCall) {
	for i := 0; i < len(chunk); i++ {
		p.feedByte(chunk[i])
	}

	return p.drain()
}

// Flush drains an unterminated buffer at stream end. The buffered span is
// treated exactly like a completed match: parseable tags extract, anything
// else is released verbatim.
func (p *StreamParser) Flush() (string, []ToolCall) {
	if p.buffering {
		p.resolve(string(p.buf))
		p.buf = p.buf[:0]
		p.buffering = false
	}

	return p.drain()
}

func (p *StreamParser) feedByte(b byte) {
	if !p.buffering {
		if b == '<' {
			p.buffering = true
			p.buf = append(p.buf[:0], b)

			return
		}

		p.out.WriteByte(b)

		return
	}

	p.buf = append(p.buf, b)

	if !p.stillCandidate() {
		// Not a tool_call tag. Release the first buffered byte and
		// rescan the rest, since it may contain a later '<'.
		rest := string(p.buf[1:])
		p.out.WriteByte(p.buf[0])
		p.buf = p.buf[:0]
		p.buffering = false

		for i := 0; i < len(rest); i++ {
			p.feedByte(rest[i])
		}

		return
	}

	if idx := strings.Index(string(p.buf), closeTag); idx >= 0 {
		end := idx + len(closeTag)
		span := string(p.buf[:end])
		rest := string(p.buf[end:])

		p.resolve(span)

		p.buf = p.buf[:0]
		p.buffering = false

		for i := 0; i < len(rest); i++ {
			p.feedByte(rest[i])
		}
	}
}

// stillCandidate reports whether the buffer can still develop into a
// tool_call tag.
func (p *StreamParser) stillCandidate() bool {
	buf := string(p.buf)

	if len(buf) <= len(openTag) {
		return strings.HasPrefix(openTag, buf)
	}

	if !strings.HasPrefix(buf, openTag) {
		return false
	}

	// The character after the tag name must begin the attribute list;
	// "<tool_caller>" and friends are not ours.
	switch buf[len(openTag)] {
	case ' ', '\t', '\n':
		return true
	default:
		return false
	}
}

// resolve hands a completed buffered span to the whole-text parser and
// releases whatever it yields.
func (p *StreamParser) resolve(span string) {
	result := Parse(span)
	p.out.WriteString(result.RemainingText)
	p.calls = append(p.calls, result.ToolCalls...)
}

func (p *StreamParser) drain() (string, []ToolCall) {
	text := p.out.String()
	p.out.Reset()

	calls := p.calls
	p.calls = nil

	return text, calls
}
