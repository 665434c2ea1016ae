package providers

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sessionbridge/sessionbridge/internal/credential"
	"github.com/sessionbridge/sessionbridge/internal/stream"
	"github.com/sessionbridge/sessionbridge/internal/transport"
)

// Claude is the adapter for the Claude web chat backend. Dated model ids
// are canonical; the versionless ids alias the current snapshot.
type Claude struct {
	core
}

func NewClaude(pool *credential.Pool, tr transport.SessionTransport, logger *slog.Logger) *Claude {
	return &Claude{
		core: newCore("claude", pool, tr, logger.With("provider", "claude")),
	}
}

func (c *Claude) Name() string { return "claude" }

func (c *Claude) Models() []Model {
	return []Model{
		{ID: "claude-sonnet-4-5-20250929", OwnedBy: "anthropic"},
		{ID: "claude-opus-4-1-20250805", OwnedBy: "anthropic"},
		{ID: "claude-haiku-4-5-20251001", OwnedBy: "anthropic"},
		{ID: "claude-sonnet-4-5", OwnedBy: "anthropic", AliasOf: "claude-sonnet-4-5-20250929"},
		{ID: "claude-opus-4-1", OwnedBy: "anthropic", AliasOf: "claude-opus-4-1-20250805"},
		{ID: "claude-haiku-4-5", OwnedBy: "anthropic", AliasOf: "claude-haiku-4-5-20251001"},
	}
}

func (c *Claude) MatchModel(requestedID string) bool {
	return strings.HasPrefix(requestedID, "claude")
}

func (c *Claude) MapModel(requestedID string) string {
	for _, m := range c.Models() {
		if m.ID == requestedID {
			if m.AliasOf != "" {
				return m.AliasOf
			}

			return m.ID
		}
	}

	return requestedID
}

func (c *Claude) Capabilities() Capabilities {
	return Capabilities{}
}

func (c *Claude) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	model := c.MapModel(req.Model)
	prompt := BuildPrompt(req.Messages, req.Tools)

	sessionKey := req.SessionKey
	if sessionKey == "" {
		sessionKey = DefaultSessionKey
	}

	upstream, err := c.chat(ctx, sessionKey, prompt, model)
	if err != nil {
		return nil, err
	}

	converter := stream.NewClaudeConverter(stream.Options{
		Model:     model,
		CleanMode: req.CleanMode,
	})

	return &ChatResult{
		Model:     model,
		Upstream:  upstream,
		Converter: converter,
	}, nil
}
