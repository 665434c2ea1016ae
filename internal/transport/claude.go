package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
)

const defaultClaudeBase = "https://claude.ai"

// ClaudeTransport drives the Claude web chat surface using a captured
// session cookie and organization id.
type ClaudeTransport struct {
	baseURL string
	client  *http.Client
}

func NewClaudeTransport(baseURL string) *ClaudeTransport {
	if baseURL == "" {
		baseURL = defaultClaudeBase
	}

	return &ClaudeTransport{
		baseURL: baseURL,
		client:  newHTTPClient(),
	}
}

func (t *ClaudeTransport) CreateConversation(ctx context.Context, payload map[string]string, model string) (string, error) {
	org := payload["org_id"]
	if org == "" {
		return "", fmt.Errorf("%w: credential payload has no org_id", ErrSessionInvalid)
	}

	conversationID := uuid.NewString()

	body, err := json.Marshal(map[string]any{
		"uuid": conversationID,
		"name": "",
	})
	if err != nil {
		return "", fmt.Errorf("marshal create request: %w", err)
	}

	url := fmt.Sprintf("%s/api/organizations/%s/chat_conversations", t.baseURL, org)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build create request: %w", err)
	}

	t.applyAuth(req, payload)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read create response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", classifyStatus(resp, respBody)
	}

	return conversationID, nil
}

func (t *ClaudeTransport) SendMessage(ctx context.Context, payload map[string]string, conversationID, prompt, model string) (io.ReadCloser, error) {
	org := payload["org_id"]
	if org == "" {
		return nil, fmt.Errorf("%w: credential payload has no org_id", ErrSessionInvalid)
	}

	body, err := json.Marshal(map[string]any{
		"prompt":      prompt,
		"model":       model,
		"timezone":    "UTC",
		"attachments": []string{},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}

	url := fmt.Sprintf("%s/api/organizations/%s/chat_conversations/%s/completion",
		t.baseURL, org, conversationID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build completion request: %w", err)
	}

	t.applyAuth(req, payload)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()

		return nil, classifyStatus(resp, respBody)
	}

	return decompressedBody(resp)
}

func (t *ClaudeTransport) applyAuth(req *http.Request, payload map[string]string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", t.baseURL)
	req.Header.Set("Referer", t.baseURL+"/")

	if cookie := payload["cookie"]; cookie != "" {
		req.Header.Set("Cookie", cookie)
	} else if key := payload["session_key"]; key != "" {
		req.Header.Set("Cookie", "sessionKey="+key)
	}

	if agent := payload["user_agent"]; agent != "" {
		req.Header.Set("User-Agent", agent)
	}
}
