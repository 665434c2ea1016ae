package stream

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseBody(datas ...string) string {
	var b strings.Builder

	for _, d := range datas {
		b.WriteString("data: ")
		b.WriteString(d)
		b.WriteString("\n\n")
	}

	return b.String()
}

func collectFragments(t *testing.T, r *Reclassifier, body string) []Fragment {
	t.Helper()

	var fragments []Fragment

	err := r.Stream(context.Background(), strings.NewReader(body), func(f Fragment) error {
		fragments = append(fragments, f)
		return nil
	})
	require.NoError(t, err)

	return fragments
}

func joinChannel(fragments []Fragment, reasoning bool) string {
	var b strings.Builder

	for _, f := range fragments {
		if f.Reasoning == reasoning {
			b.WriteString(f.Text)
		}
	}

	return b.String()
}

func TestIsReasoningModel(t *testing.T) {
	assert.True(t, IsReasoningModel("deepseek-reasoner"))
	assert.True(t, IsReasoningModel("deepseek-r1"))
	assert.True(t, IsReasoningModel("glm-4-thinking"))
	assert.False(t, IsReasoningModel("deepseek-chat"))
}

func TestReclassifier_PathHintClassification(t *testing.T) {
	body := sseBody(
		`{"v":"let me think","p":"response/thinking_content"}`,
		`{"v":" some more"}`,
		`{"v":"the answer","p":"response/content"}`,
		`{"v":" is 4"}`,
	)

	r := NewReclassifier(Options{Model: "deepseek-reasoner"})
	fragments := collectFragments(t, r, body)

	assert.Equal(t, "let me think some more", joinChannel(fragments, true))
	assert.Equal(t, "the answer is 4", joinChannel(fragments, false))
	assert.True(t, r.HasEmittedContent())
}

func TestReclassifier_TypeDiscriminator(t *testing.T) {
	body := sseBody(
		`{"type":"thinking","content":"hmm"}`,
		`{"type":"text","content":"four"}`,
	)

	r := NewReclassifier(Options{Model: "deepseek-chat"})
	fragments := collectFragments(t, r, body)

	assert.Equal(t, "hmm", joinChannel(fragments, true))
	assert.Equal(t, "four", joinChannel(fragments, false))
}

func TestReclassifier_NormalizedDeltaShape(t *testing.T) {
	body := sseBody(
		`{"choices":[{"delta":{"reasoning_content":"step 1"}}]}`,
		`{"choices":[{"delta":{"content":"result"}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
	)

	r := NewReclassifier(Options{Model: "deepseek-reasoner"})
	fragments := collectFragments(t, r, body)

	assert.Equal(t, "step 1", joinChannel(fragments, true))
	assert.Equal(t, "result", joinChannel(fragments, false))
}

func TestReclassifier_FallbackMarkerSplitsAcrossChunks(t *testing.T) {
	// The end-of-thinking marker straddles every possible frame boundary;
	// the split must come out identical each time.
	full := "deep thought</think>the answer is 4"

	for cut := 1; cut < len(full); cut++ {
		r := NewReclassifier(Options{Model: "deepseek-reasoner"})

		body := sseBody(
			`{"v":`+mustJSON(full[:cut])+`}`,
			`{"v":`+mustJSON(full[cut:])+`}`,
		)

		fragments := collectFragments(t, r, body)

		assert.Equal(t, "deep thought", joinChannel(fragments, true), "cut at %d", cut)
		assert.Equal(t, "the answer is 4", joinChannel(fragments, false), "cut at %d", cut)
	}
}

func TestReclassifier_FallbackNonReasoningModelIsAllContent(t *testing.T) {
	body := sseBody(`{"v":"plain"}`, `{"v":" answer"}`)

	r := NewReclassifier(Options{Model: "deepseek-chat"})
	fragments := collectFragments(t, r, body)

	assert.Empty(t, joinChannel(fragments, true))
	assert.Equal(t, "plain answer", joinChannel(fragments, false))
}

func TestReclassifier_UnterminatedThinkingFlushedAsReasoning(t *testing.T) {
	// Stream ends while still in thinking phase, mid potential marker.
	body := sseBody(`{"v":"thinking forever</th"}`)

	r := NewReclassifier(Options{Model: "deepseek-reasoner"})
	fragments := collectFragments(t, r, body)

	assert.Equal(t, "thinking forever</th", joinChannel(fragments, true))
	assert.Empty(t, joinChannel(fragments, false))
}

func TestReclassifier_StripReasoningSuppressesThinking(t *testing.T) {
	body := sseBody(
		`{"v":"secret thoughts</think>public answer"}`,
	)

	r := NewReclassifier(Options{Model: "deepseek-reasoner", StripReasoning: true})
	fragments := collectFragments(t, r, body)

	assert.Empty(t, joinChannel(fragments, true))
	assert.Equal(t, "public answer", joinChannel(fragments, false))
}

func TestReclassifier_SanitizesContentArtifacts(t *testing.T) {
	body := sseBody(
		`{"v":"cited[citation:3] and referenced[ref_1] text​","p":"response/content"}`,
	)

	r := NewReclassifier(Options{Model: "deepseek-chat"})
	fragments := collectFragments(t, r, body)

	assert.Equal(t, "cited and referenced text", joinChannel(fragments, false))
}

func TestReclassifier_ReasoningKeepsCitationsUnlessCleanMode(t *testing.T) {
	body := sseBody(`{"v":"see[citation:2] here","p":"response/thinking_content"}`)

	r := NewReclassifier(Options{Model: "deepseek-reasoner"})
	fragments := collectFragments(t, r, body)
	assert.Equal(t, "see[citation:2] here", joinChannel(fragments, true))

	r = NewReclassifier(Options{Model: "deepseek-reasoner", CleanMode: true})
	fragments = collectFragments(t, r, body)
	assert.Equal(t, "see here", joinChannel(fragments, true))
}

func TestReclassifier_MalformedFramesSkipped(t *testing.T) {
	body := sseBody(
		`{"v":"before","p":"response/content"}`,
		`{not json`,
		`totally bogus`,
		`{"v":" after"}`,
	)

	r := NewReclassifier(Options{Model: "deepseek-chat"})
	fragments := collectFragments(t, r, body)

	assert.Equal(t, "before after", joinChannel(fragments, false))
}

func TestReclassifier_StatusFrameEndsStream(t *testing.T) {
	body := sseBody(
		`{"v":"answer","p":"response/content"}`,
		`{"v":"FINISHED","p":"status"}`,
		`{"v":"never seen"}`,
	)

	r := NewReclassifier(Options{Model: "deepseek-chat"})
	fragments := collectFragments(t, r, body)

	assert.Equal(t, "answer", joinChannel(fragments, false))
}

func TestReclassifier_CapturesParentMessageID(t *testing.T) {
	body := sseBody(
		`{"message_id":42,"v":"hi","p":"response/content"}`,
	)

	r := NewReclassifier(Options{Model: "deepseek-chat"})
	collectFragments(t, r, body)

	assert.Equal(t, "42", r.ParentMessageID())
}

func TestReclassifier_DrainAggregatesBothChannels(t *testing.T) {
	body := sseBody(
		`{"v":"think","p":"response/thinking_content"}`,
		`{"v":"answer","p":"response/content"}`,
	)

	r := NewReclassifier(Options{Model: "deepseek-reasoner"})

	agg, err := r.Drain(context.Background(), strings.NewReader(body))
	require.NoError(t, err)

	assert.Equal(t, "think", agg.Reasoning)
	assert.Equal(t, "answer", agg.Content)
}

func TestReclassifier_ContextCancellationStopsStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewReclassifier(Options{Model: "deepseek-chat"})

	err := r.Stream(ctx, strings.NewReader(sseBody(`{"v":"x"}`)), func(Fragment) error {
		t.Fatal("no fragment should be emitted after cancellation")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func mustJSON(s string) string {
	b := strings.Builder{}
	b.WriteByte('"')

	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteRune(r)
		}
	}

	b.WriteByte('"')

	return b.String()
}
