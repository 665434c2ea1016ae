package toolcall

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BuildPreamble renders the tool declarations as instruction text injected
// ahead of user content. The upstream backends have no native function
// calling, so the declarations and the calling convention ride inside the
// prompt itself.
func BuildPreamble(tools []Definition) string {
	if len(tools) == 0 {
		return ""
	}

	var b strings.Builder

	b.WriteString("You have access to the following tools:\n\n")

	for _, tool := range tools {
		b.WriteString("- ")
		b.WriteString(tool.Function.Name)

		if tool.Function.Description != "" {
			b.WriteString(": ")
			b.WriteString(tool.Function.Description)
		}

		b.WriteString("\n")

		if tool.Function.Parameters != nil {
			if schema, err := json.Marshal(tool.Function.Parameters); err == nil {
				fmt.Fprintf(&b, "  Parameters (JSON Schema): %s\n", schema)
			}
		}
	}

	b.WriteString("\nTo call a tool, emit exactly:\n")
	b.WriteString(`<tool_call name="TOOL_NAME">{"arg": "value"}</tool_call>`)
	b.WriteString("\nThe arguments must be a single JSON object. ")
	b.WriteString("Emit one tag per call and no other text inside the tag.\n")

	return b.String()
}

// SerializeCall renders a prior assistant tool call back into the inline
// tag convention for multi-turn continuation.
func SerializeCall(call ToolCall) string {
	return fmt.Sprintf(`<tool_call name=%q id=%q>%s</tool_call>`,
		call.Function.Name, call.ID, call.Function.Arguments)
}

// SerializeResult renders a tool result message for the prompt. The
// backends are stateless with respect to structured tool semantics, so
// results travel as tagged text too.
func SerializeResult(callID, name, content string) string {
	var b strings.Builder

	b.WriteString("<tool_result")

	if name != "" {
		fmt.Fprintf(&b, " name=%q", name)
	}

	if callID != "" {
		fmt.Fprintf(&b, " id=%q", callID)
	}

	b.WriteString(">")
	b.WriteString(content)
	b.WriteString("</tool_result>")

	return b.String()
}
