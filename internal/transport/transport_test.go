package transport

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeepSeekTransport_CreateConversation(t *testing.T) {
	var gotAuth, gotCookie string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v0/chat_session/create", r.URL.Path)

		gotAuth = r.Header.Get("Authorization")
		gotCookie = r.Header.Get("Cookie")

		w.Write([]byte(`{"data":{"biz_data":{"id":"sess-1"}}}`))
	}))
	defer server.Close()

	tr := NewDeepSeekTransport(server.URL)

	id, err := tr.CreateConversation(context.Background(), map[string]string{
		"token":  "tok",
		"cookie": "a=b",
	}, "deepseek-chat")
	require.NoError(t, err)

	assert.Equal(t, "sess-1", id)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "a=b", gotCookie)
}

func TestDeepSeekTransport_AuthStatusMapsToSessionInvalid(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusGone} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))

		tr := NewDeepSeekTransport(server.URL)

		_, err := tr.CreateConversation(context.Background(), map[string]string{}, "deepseek-chat")
		assert.ErrorIs(t, err, ErrSessionInvalid, "status %d", code)

		server.Close()
	}
}

func TestDeepSeekTransport_TextualAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":-1,"msg":"not login"}`))
	}))
	defer server.Close()

	tr := NewDeepSeekTransport(server.URL)

	_, err := tr.CreateConversation(context.Background(), map[string]string{}, "deepseek-chat")
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

func TestDeepSeekTransport_SendMessageStreams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v0/chat/completion", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"v\":\"hi\"}\n\n"))
	}))
	defer server.Close()

	tr := NewDeepSeekTransport(server.URL)

	stream, err := tr.SendMessage(context.Background(), map[string]string{}, "sess-1", "hello", "deepseek-chat")
	require.NoError(t, err)
	defer stream.Close()

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Contains(t, string(data), `{"v":"hi"}`)
}

func TestDecompressedBody_Gzip(t *testing.T) {
	var compressed bytes.Buffer

	zw := gzip.NewWriter(&compressed)
	zw.Write([]byte("payload"))
	zw.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.Write(compressed.Bytes())
	}))
	defer server.Close()

	tr := NewDeepSeekTransport(server.URL)

	stream, err := tr.SendMessage(context.Background(), map[string]string{}, "s", "p", "deepseek-chat")
	require.NoError(t, err)
	defer stream.Close()

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestClaudeTransport_RequiresOrgID(t *testing.T) {
	tr := NewClaudeTransport("http://unused")

	_, err := tr.CreateConversation(context.Background(), map[string]string{}, "claude-sonnet-4-5")
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

func TestClaudeTransport_CreateAndSend(t *testing.T) {
	var createdID string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/organizations/org-1/chat_conversations":
			assert.Contains(t, r.Header.Get("Cookie"), "sessionKey=sk-test")
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{}`))
		default:
			require.Equal(t, "/api/organizations/org-1/chat_conversations/"+createdID+"/completion", r.URL.Path)
			w.Header().Set("Content-Type", "text/event-stream")
			w.Write([]byte("event: message_stop\ndata: {}\n\n"))
		}
	}))
	defer server.Close()

	tr := NewClaudeTransport(server.URL)
	payload := map[string]string{"org_id": "org-1", "session_key": "sk-test"}

	id, err := tr.CreateConversation(context.Background(), payload, "claude-sonnet-4-5")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	createdID = id

	stream, err := tr.SendMessage(context.Background(), payload, id, "hello", "claude-sonnet-4-5")
	require.NoError(t, err)
	defer stream.Close()

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Contains(t, string(data), "message_stop")
}
