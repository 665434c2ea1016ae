// Package stream converts raw upstream event streams into the OpenAI
// chat-completion wire protocol. Each upstream family has its own
// reclassifier; both share the sse tokenizer and emit through the same
// chunk writer.
package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sessionbridge/sessionbridge/internal/toolcall"
)

const (
	ObjectChunk      = "chat.completion.chunk"
	ObjectCompletion = "chat.completion"

	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
)

// Chunk is one streaming delta in the OpenAI wire shape.
type Chunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

type Delta struct {
	Role             string          `json:"role,omitempty"`
	Content          string          `json:"content,omitempty"`
	ReasoningContent string          `json:"reasoning_content,omitempty"`
	ToolCalls        []ToolCallDelta `json:"tool_calls,omitempty"`
}

// ToolCallDelta is a tool call inside a streaming delta; the index field
// distinguishes parallel calls.
type ToolCallDelta struct {
	Index    int                   `json:"index"`
	ID       string                `json:"id"`
	Type     string                `json:"type"`
	Function toolcall.FunctionCall `json:"function"`
}

// Completion is the aggregated non-streaming response shape.
type Completion struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
	Usage   Usage              `json:"usage"`
}

type CompletionChoice struct {
	Index        int               `json:"index"`
	Message      CompletionMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

type CompletionMessage struct {
	Role             string              `json:"role"`
	Content          string              `json:"content"`
	ReasoningContent string              `json:"reasoning_content,omitempty"`
	ToolCalls        []toolcall.ToolCall `json:"tool_calls,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// NewCompletionID mints an id shared by every chunk of one response.
func NewCompletionID() string {
	return "chatcmpl-" + uuid.NewString()
}

// Emitter serializes chunks as SSE data frames onto a response writer,
// flushing after every frame. One Emitter per request; chunks go out in
// the exact order they are produced.
type Emitter struct {
	w        io.Writer
	flusher  http.Flusher
	id       string
	model    string
	created  int64
	roleSent bool
	toolIdx  int
}

func NewEmitter(w io.Writer, model string) *Emitter {
	e := &Emitter{
		w:       w,
		id:      NewCompletionID(),
		model:   model,
		created: time.Now().Unix(),
	}

	if flusher, ok := w.(http.Flusher); ok {
		e.flusher = flusher
	}

	return e
}

func (e *Emitter) Reasoning(text string) error {
	if text == "" {
		return nil
	}

	return e.writeChunk(Delta{Role: e.role(), ReasoningContent: text}, nil)
}

func (e *Emitter) Content(text string) error {
	if text == "" {
		return nil
	}

	return e.writeChunk(Delta{Role: e.role(), Content: text}, nil)
}

func (e *Emitter) ToolCalls(calls []toolcall.ToolCall) error {
	if len(calls) == 0 {
		return nil
	}

	deltas := make([]ToolCallDelta, 0, len(calls))

	for _, call := range calls {
		deltas = append(deltas, ToolCallDelta{
			Index:    e.toolIdx,
			ID:       call.ID,
			Type:     call.Type,
			Function: call.Function,
		})
		e.toolIdx++
	}

	return e.writeChunk(Delta{Role: e.role(), ToolCalls: deltas}, nil)
}

// Finish emits the terminal chunk carrying the finish reason. Always called
// exactly once per successful stream, even when the upstream ended without
// its own terminal marker.
func (e *Emitter) Finish(reason string) error {
	return e.writeChunk(Delta{}, &reason)
}

// Done writes the stream-end sentinel.
func (e *Emitter) Done() error {
	if _, err := fmt.Fprint(e.w, "data: [DONE]\n\n"); err != nil {
		return err
	}

	e.flush()

	return nil
}

func (e *Emitter) role() string {
	if e.roleSent {
		return ""
	}

	e.roleSent = true

	return "assistant"
}

func (e *Emitter) writeChunk(delta Delta, finish *string) error {
	chunk := Chunk{
		ID:      e.id,
		Object:  ObjectChunk,
		Created: e.created,
		Model:   e.model,
		Choices: []ChunkChoice{{Index: 0, Delta: delta, FinishReason: finish}},
	}

	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshal chunk: %w", err)
	}

	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", data); err != nil {
		return err
	}

	e.flush()

	return nil
}

func (e *Emitter) flush() {
	if e.flusher != nil {
		e.flusher.Flush()
	}
}
