package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	name   string
	prefix string
	models []Model
	resets int
}

func (f *fakeAdapter) Name() string                 { return f.name }
func (f *fakeAdapter) Models() []Model              { return f.models }
func (f *fakeAdapter) MatchModel(id string) bool    { return len(id) >= len(f.prefix) && id[:len(f.prefix)] == f.prefix }
func (f *fakeAdapter) MapModel(id string) string    { return id }
func (f *fakeAdapter) Capabilities() Capabilities   { return Capabilities{} }
func (f *fakeAdapter) ResetClient()                 { f.resets++ }
func (f *fakeAdapter) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	return nil, nil
}

func TestRegistryResolve_FirstMatchWins(t *testing.T) {
	first := &fakeAdapter{name: "first", prefix: "m"}
	second := &fakeAdapter{name: "second", prefix: "model"}

	reg := NewRegistry()
	reg.Register(first)
	reg.Register(second)

	got, err := reg.Resolve("model-x")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Name())
}

func TestRegistryResolve_UnsupportedModel(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeAdapter{name: "only", prefix: "deepseek"})

	_, err := reg.Resolve("gpt-4o")
	assert.ErrorIs(t, err, ErrUnsupportedModel)
}

func TestRegistryModels_AggregatesInOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeAdapter{name: "a", prefix: "a", models: []Model{{ID: "a-1"}, {ID: "a-2"}}})
	reg.Register(&fakeAdapter{name: "b", prefix: "b", models: []Model{{ID: "b-1"}}})

	ids := []string{}
	for _, m := range reg.Models() {
		ids = append(ids, m.ID)
	}

	assert.Equal(t, []string{"a-1", "a-2", "b-1"}, ids)
}

func TestRegistryResetAll(t *testing.T) {
	a := &fakeAdapter{name: "a", prefix: "a"}
	b := &fakeAdapter{name: "b", prefix: "b"}

	reg := NewRegistry()
	reg.Register(a)
	reg.Register(b)

	reg.ResetAll()

	assert.Equal(t, 1, a.resets)
	assert.Equal(t, 1, b.resets)
}

func TestDeepSeekMapModel(t *testing.T) {
	d := &DeepSeek{}

	tests := []struct {
		requested string
		want      string
	}{
		{"deepseek-chat", "deepseek-chat"},
		{"deepseek-reasoner", "deepseek-reasoner"},
		{"deepseek-coder", "deepseek-chat"},
		{"deepseek-future", "deepseek-future"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, d.MapModel(tt.requested), tt.requested)
	}
}

func TestClaudeMapModel_AliasesToDatedID(t *testing.T) {
	c := &Claude{}

	assert.Equal(t, "claude-sonnet-4-5-20250929", c.MapModel("claude-sonnet-4-5"))
	assert.Equal(t, "claude-opus-4-1-20250805", c.MapModel("claude-opus-4-1"))
	assert.Equal(t, "claude-sonnet-4-5-20250929", c.MapModel("claude-sonnet-4-5-20250929"))
}

func TestMatchModel_Prefixes(t *testing.T) {
	d := &DeepSeek{}
	c := &Claude{}

	assert.True(t, d.MatchModel("deepseek-chat"))
	assert.False(t, d.MatchModel("claude-sonnet-4-5"))
	assert.True(t, c.MatchModel("claude-opus-4-1"))
	assert.False(t, c.MatchModel("deepseek-reasoner"))
}
