package toolcall

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStream feeds text in the given chunk sizes and returns everything the
// parser releases, including the flush.
func runStream(text string, chunkSize int) (string, []ToolCall) {
	p := NewStreamParser()

	var (
		out   strings.Builder
		calls []ToolCall
	)

	for start := 0; start < len(text); start += chunkSize {
		end := start + chunkSize
		if end > len(text) {
			end = len(text)
		}

		released, c := p.Feed(text[start:end])
		out.WriteString(released)
		calls = append(calls, c...)
	}

	released, c := p.Flush()
	out.WriteString(released)
	calls = append(calls, c...)

	return out.String(), calls
}

func TestStreamParser_SingleCallOneShot(t *testing.T) {
	text := `<tool_call name="read">{"file_path":"a.txt"}</tool_call>`

	out, calls := runStream(text, len(text))

	require.Len(t, calls, 1)
	assert.Equal(t, "read", calls[0].Function.Name)
	assert.Empty(t, strings.TrimSpace(out))
}

func TestStreamParser_ConsistencyAcrossChunkings(t *testing.T) {
	text := `before <tool_call name="read" id="call_1">{"file_path":"a.txt"}</tool_call> after ` +
		`<tool_call name="ls" id="call_2">{"dir":"/tmp"}</tool_call> tail`

	whole := Parse(text)

	for _, size := range []int{1, 2, 3, 7, 16, len(text)} {
		out, calls := runStream(text, size)

		assert.Equal(t, whole.RemainingText, out, "chunk size %d", size)
		require.Len(t, calls, len(whole.ToolCalls), "chunk size %d", size)

		for i := range calls {
			assert.Equal(t, whole.ToolCalls[i].ID, calls[i].ID)
			assert.Equal(t, whole.ToolCalls[i].Function, calls[i].Function)
		}
	}
}

func TestStreamParser_PlainHTMLPassesThrough(t *testing.T) {
	text := "some <div>markup</div> with <b>bold</b> and a stray < sign"

	for _, size := range []int{1, 4, len(text)} {
		out, calls := runStream(text, size)

		assert.Empty(t, calls, "chunk size %d", size)
		assert.Equal(t, text, out, "chunk size %d", size)
	}
}

func TestStreamParser_ToolCallerIsNotToolCall(t *testing.T) {
	text := "<tool_caller>nope</tool_caller>"

	out, calls := runStream(text, 1)
	assert.Empty(t, calls)
	assert.Equal(t, text, out)
}

func TestStreamParser_UnterminatedTagFlushedVerbatim(t *testing.T) {
	text := `trailing <tool_call name="read">{"x":`

	out, calls := runStream(text, 3)
	assert.Empty(t, calls)
	assert.Equal(t, text, out)
}

func TestStreamParser_TextBeforeAndAfterReleased(t *testing.T) {
	p := NewStreamParser()

	out1, calls1 := p.Feed("hello ")
	assert.Equal(t, "hello ", out1)
	assert.Empty(t, calls1)

	out2, calls2 := p.Feed(`<tool_call name="f">{}</tool_call>`)
	assert.Empty(t, out2)
	require.Len(t, calls2, 1)
	assert.Equal(t, "f", calls2[0].Function.Name)

	out3, _ := p.Feed(" world")
	assert.Equal(t, " world", out3)
}

func TestStreamParser_CallSplitAtTagBoundary(t *testing.T) {
	p := NewStreamParser()

	// The marker itself straddles two feeds.
	out1, calls1 := p.Feed(`x <tool_c`)
	assert.Equal(t, "x ", out1)
	assert.Empty(t, calls1)

	out2, calls2 := p.Feed(`all name="go">{"a":1}</tool_call> y`)
	assert.Equal(t, " y", out2)
	require.Len(t, calls2, 1)
	assert.Equal(t, "go", calls2[0].Function.Name)
}
