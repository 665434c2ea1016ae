package providers

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sessionbridge/sessionbridge/internal/credential"
	"github.com/sessionbridge/sessionbridge/internal/stream"
	"github.com/sessionbridge/sessionbridge/internal/transport"
)

// DeepSeek is the adapter for the DeepSeek web chat backend.
type DeepSeek struct {
	core
}

func NewDeepSeek(pool *credential.Pool, tr transport.SessionTransport, logger *slog.Logger) *DeepSeek {
	return &DeepSeek{
		core: newCore("deepseek", pool, tr, logger.With("provider", "deepseek")),
	}
}

func (d *DeepSeek) Name() string { return "deepseek" }

func (d *DeepSeek) Models() []Model {
	return []Model{
		{ID: "deepseek-chat", OwnedBy: "deepseek"},
		{ID: "deepseek-reasoner", OwnedBy: "deepseek"},
		{ID: "deepseek-coder", OwnedBy: "deepseek", AliasOf: "deepseek-chat"},
	}
}

func (d *DeepSeek) MatchModel(requestedID string) bool {
	return strings.HasPrefix(requestedID, "deepseek")
}

// MapModel resolves aliases to their canonical id and passes unknown
// deepseek-prefixed ids through unchanged.
func (d *DeepSeek) MapModel(requestedID string) string {
	for _, m := range d.Models() {
		if m.ID == requestedID {
			if m.AliasOf != "" {
				return m.AliasOf
			}

			return m.ID
		}
	}

	return requestedID
}

func (d *DeepSeek) Capabilities() Capabilities {
	return Capabilities{
		SupportsReasoning:   true,
		SupportsExpiryCheck: true,
	}
}

func (d *DeepSeek) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	model := d.MapModel(req.Model)
	prompt := BuildPrompt(req.Messages, req.Tools)

	sessionKey := req.SessionKey
	if sessionKey == "" {
		sessionKey = DefaultSessionKey
	}

	upstream, err := d.chat(ctx, sessionKey, prompt, model)
	if err != nil {
		return nil, err
	}

	converter := stream.NewReclassifier(stream.Options{
		Model:          model,
		StripReasoning: req.StripReasoning,
		CleanMode:      req.CleanMode,
	})

	return &ChatResult{
		Model:     model,
		Upstream:  upstream,
		Converter: converter,
		UpdateSession: func(parentMessageID string) {
			d.updateParent(sessionKey, parentMessageID)
		},
	}, nil
}
