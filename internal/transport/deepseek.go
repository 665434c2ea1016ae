package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const defaultDeepSeekBase = "https://chat.deepseek.com"

// DeepSeekTransport drives the DeepSeek web chat surface using a captured
// browser token and cookies.
type DeepSeekTransport struct {
	baseURL string
	client  *http.Client
}

func NewDeepSeekTransport(baseURL string) *DeepSeekTransport {
	if baseURL == "" {
		baseURL = defaultDeepSeekBase
	}

	return &DeepSeekTransport{
		baseURL: baseURL,
		client:  newHTTPClient(),
	}
}

func (t *DeepSeekTransport) CreateConversation(ctx context.Context, payload map[string]string, model string) (string, error) {
	body, err := json.Marshal(map[string]any{"character_id": nil})
	if err != nil {
		return "", fmt.Errorf("marshal create request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.baseURL+"/api/v0/chat_session/create", bytes.NewReader(body))
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

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp, respBody)
	}

	if looksLikeAuthFailure(string(respBody)) {
		return "", fmt.Errorf("%w: %s", ErrSessionInvalid, truncate(string(respBody), 200))
	}

	var created struct {
		Data struct {
			BizData struct {
				ID string `json:"id"`
			} `json:"biz_data"`
			ID string `json:"id"`
		} `json:"data"`
	}

	if err := json.Unmarshal(respBody, &created); err != nil {
		return "", fmt.Errorf("decode create response: %w", err)
	}

	id := created.Data.BizData.ID
	if id == "" {
		id = created.Data.ID
	}

	if id == "" {
		return "", fmt.Errorf("create response carried no session id")
	}

	return id, nil
}

func (t *DeepSeekTransport) SendMessage(ctx context.Context, payload map[string]string, conversationID, prompt, model string) (io.ReadCloser, error) {
	request := map[string]any{
		"chat_session_id":  conversationID,
		"prompt":           prompt,
		"ref_file_ids":     []string{},
		"thinking_enabled": isThinkingModel(model),
		"search_enabled":   false,
	}

	if parent, ok := payload["parent_message_id"]; ok && parent != "" {
		request["parent_message_id"] = parent
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.baseURL+"/api/v0/chat/completion", bytes.NewReader(body))
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

func (t *DeepSeekTransport) applyAuth(req *http.Request, payload map[string]string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", t.baseURL)
	req.Header.Set("Referer", t.baseURL+"/")

	if token := payload["token"]; token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if cookie := payload["cookie"]; cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	if agent := payload["user_agent"]; agent != "" {
		req.Header.Set("User-Agent", agent)
	}
}

func isThinkingModel(model string) bool {
	switch model {
	case "deepseek-reasoner":
		return true
	default:
		return false
	}
}
