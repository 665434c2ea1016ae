// Package toolcall implements the inline tag convention that stands in for
// native function calling on backends that lack it. Generated text carries
// tags of the form
//
//	<tool_call name="X" id="Y">{"arg":"value"}</tool_call>
//
// which are extracted into structured invocations and stripped from the
// surrounding text.
package toolcall

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ToolCall is a parsed invocation in the OpenAI wire shape.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the function name and its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Definition is an OpenAI-style tool declaration supplied by the caller.
type Definition struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

type FunctionDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

// ParseResult holds the extracted calls and the text left after stripping
// all matched tags.
type ParseResult struct {
	ToolCalls     []ToolCall
	RemainingText string
}

var tagPattern = regexp.MustCompile(`(?s)<tool_call\s+name="([^"]+)"(?:\s+id="([^"]*)")?\s*>(.*?)</tool_call>`)

// Parse extracts every well-formed tool_call tag from the text, in order of
// appearance. Argument text that is not valid JSON is preserved losslessly
// as {"raw": original} rather than dropped; malformed arguments never fail
// extraction.
func Parse(text string) ParseResult {
	matches := tagPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return ParseResult{RemainingText: text}
	}

	result := ParseResult{}

	var remaining strings.Builder

	last := 0

	for _, m := range matches {
		remaining.WriteString(text[last:m[0]])
		last = m[1]

		name := text[m[2]:m[3]]

		id := ""
		if m[4] >= 0 {
			id = text[m[4]:m[5]]
		}

		if id == "" {
			id = NewCallID()
		}

		args := strings.TrimSpace(text[m[6]:m[7]])

		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:   id,
			Type: "function",
			Function: FunctionCall{
				Name:      name,
				Arguments: normalizeArguments(args),
			},
		})
	}

	remaining.WriteString(text[last:])
	result.RemainingText = remaining.String()

	return result
}

// NewCallID synthesizes an id for calls whose tag omitted one.
func NewCallID() string {
	return "call_" + uuid.NewString()
}

// normalizeArguments validates the argument text as JSON, wrapping anything
// unparseable as {"raw": ...}.
func normalizeArguments(args string) string {
	if args == "" {
		return "{}"
	}

	if json.Valid([]byte(args)) {
		return args
	}

	wrapped, err := json.Marshal(map[string]string{"raw": args})
	if err != nil {
		return "{}"
	}

	return string(wrapped)
}
