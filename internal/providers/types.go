// Package providers contains the per-backend adapters and the dispatcher
// that routes a requested model id to one of them. Each adapter owns a
// credential pool, a session cache keyed by caller session key, and the
// auth-failure recovery orchestration.
package providers

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sessionbridge/sessionbridge/internal/stream"
	"github.com/sessionbridge/sessionbridge/internal/toolcall"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"

	// DefaultSessionKey scopes callers that supply no session key; they
	// intentionally share one logical conversation thread.
	DefaultSessionKey = "default"
)

var (
	// ErrUnsupportedModel is returned when no registered adapter claims
	// the requested model id.
	ErrUnsupportedModel = errors.New("unsupported model")

	// ErrEmptyResponse marks an upstream that completed without
	// producing any content.
	ErrEmptyResponse = errors.New("upstream returned an empty response")
)

// ChatMessage is one turn of the inbound conversation. Content is either a
// plain string or an array of typed parts in the OpenAI shape.
type ChatMessage struct {
	Role       string              `json:"role"`
	Content    any                 `json:"content"`
	Name       string              `json:"name,omitempty"`
	ToolCallID string              `json:"tool_call_id,omitempty"`
	ToolCalls  []toolcall.ToolCall `json:"tool_calls,omitempty"`
}

// ChatRequest is the resolved inbound request handed to an adapter.
type ChatRequest struct {
	Model          string
	Messages       []ChatMessage
	Tools          []toolcall.Definition
	SessionKey     string
	StripReasoning bool
	CleanMode      bool
}

// Converter turns a raw upstream stream into classified fragments; both
// family converters satisfy it.
type Converter interface {
	Stream(ctx context.Context, upstream io.Reader, emit func(stream.Fragment) error) error
	Drain(ctx context.Context, upstream io.Reader) (stream.Aggregate, error)
}

// ChatResult is a successful upstream call: the raw stream, the converter
// that understands it, and a hook to thread the conversation forward once
// the stream has been drained.
type ChatResult struct {
	// Model is the canonical upstream model id that served the request.
	Model string

	// Upstream is the raw event stream. The caller owns it.
	Upstream io.ReadCloser

	// Converter reclassifies the upstream into fragments.
	Converter Converter

	// UpdateSession records the upstream parent message id for the next
	// turn on the same session key. Nil when the family does not thread.
	UpdateSession func(parentMessageID string)
}

// Model is one advertised model id.
type Model struct {
	ID      string
	OwnedBy string
	AliasOf string
}

// Capabilities flags what an adapter supports; resolved once at
// registration rather than probed per call.
type Capabilities struct {
	SupportsReasoning   bool
	SupportsExpiryCheck bool
}

// Adapter is the contract every backend implements.
type Adapter interface {
	Name() string
	Models() []Model
	MatchModel(requestedID string) bool
	MapModel(requestedID string) string
	Capabilities() Capabilities

	// Chat runs the full session-acquire/send/recover flow and returns
	// the raw upstream stream.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error)

	// ResetClient drops all cached sessions, used after credential
	// changes.
	ResetClient()
}

// EmptyResponseError names the provider that returned nothing.
func EmptyResponseError(provider string) error {
	return fmt.Errorf("%w: provider %s produced no content", ErrEmptyResponse, provider)
}
