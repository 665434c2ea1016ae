package providers

import (
	"strings"

	"github.com/sessionbridge/sessionbridge/internal/toolcall"
)

// BuildPrompt flattens a chat history into the single linear prompt these
// backends accept. System text and the tool-declaration preamble go first;
// a lone user turn collapses to its content under that prefix; anything
// longer is serialized as role-tagged blocks, with prior tool calls and
// tool results re-encoded in the inline tag convention.
func BuildPrompt(messages []ChatMessage, tools []toolcall.Definition) string {
	var (
		header []string
		turns  []ChatMessage
	)

	for _, msg := range messages {
		if msg.Role == RoleSystem {
			if text := ContentText(msg.Content); text != "" {
				header = append(header, text)
			}

			continue
		}

		turns = append(turns, msg)
	}

	if preamble := toolcall.BuildPreamble(tools); preamble != "" {
		header = append(header, preamble)
	}

	prefix := strings.Join(header, "\n\n")

	if len(turns) == 1 && turns[0].Role == RoleUser {
		content := ContentText(turns[0].Content)
		if prefix == "" {
			return content
		}

		return prefix + "\n\n" + content
	}

	blocks := make([]string, 0, len(turns)+1)
	if prefix != "" {
		blocks = append(blocks, prefix)
	}

	for _, msg := range turns {
		blocks = append(blocks, renderTurn(msg))
	}

	return strings.Join(blocks, "\n\n")
}

func renderTurn(msg ChatMessage) string {
	switch msg.Role {
	case RoleAssistant:
		text := ContentText(msg.Content)

		for _, call := range msg.ToolCalls {
			if text != "" {
				text += "\n"
			}

			text += toolcall.SerializeCall(call)
		}

		return "Assistant: " + text

	case RoleTool:
		return "Tool: " + toolcall.SerializeResult(msg.ToolCallID, msg.Name, ContentText(msg.Content))

	default:
		return "User: " + ContentText(msg.Content)
	}
}

// ContentText flattens string-or-parts message content into plain text.
func ContentText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var b strings.Builder

		for _, part := range v {
			partMap, ok := part.(map[string]any)
			if !ok {
				continue
			}

			if text, ok := partMap["text"].(string); ok {
				b.WriteString(text)
			}
		}

		return b.String()
	default:
		return ""
	}
}
