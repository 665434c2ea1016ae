package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/sessionbridge/sessionbridge/internal/admission"
	"github.com/sessionbridge/sessionbridge/internal/config"
	"github.com/sessionbridge/sessionbridge/internal/credential"
	"github.com/sessionbridge/sessionbridge/internal/metrics"
	"github.com/sessionbridge/sessionbridge/internal/providers"
	"github.com/sessionbridge/sessionbridge/internal/stream"
	"github.com/sessionbridge/sessionbridge/internal/toolcall"
)

// chatRequest is the inbound OpenAI-shaped completion request plus the
// gateway's extension fields.
type chatRequest struct {
	Model          string                  `json:"model"`
	Messages       []providers.ChatMessage `json:"messages"`
	Stream         bool                    `json:"stream"`
	Tools          []toolcall.Definition   `json:"tools,omitempty"`
	ToolChoice     any                     `json:"tool_choice,omitempty"`
	StripReasoning *bool                   `json:"strip_reasoning,omitempty"`
	CleanMode      *bool                   `json:"clean_mode,omitempty"`
}

type ChatHandler struct {
	config   *config.Manager
	registry *providers.Registry
	queue    *admission.Queue
	metrics  *metrics.Gateway
	logger   *slog.Logger
	encoding *tiktoken.Tiktoken
}

func NewChatHandler(cfg *config.Manager, registry *providers.Registry, queue *admission.Queue, gw *metrics.Gateway, logger *slog.Logger) *ChatHandler {
	// Resolved once; per-fragment counting reuses the shared encoding.
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		logger.Warn("token encoding unavailable, falling back to size estimate", "error", err)
	}

	return &ChatHandler{
		config:   cfg,
		registry: registry,
		queue:    queue,
		metrics:  gw,
		logger:   logger,
		encoding: encoding,
	}
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "invalid_request_error", "method not allowed")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}

	if req.Model == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "model is required")
		return
	}

	if len(req.Messages) == 0 {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "messages must not be empty")
		return
	}

	adapter, err := h.registry.Resolve(req.Model)
	if err != nil {
		httpError(w, http.StatusNotFound, "model_not_found", "%v", err)
		return
	}

	chatReq := h.resolveRequest(r, &req)

	started := time.Now()
	h.metrics.RequestStarted()

	status := "ok"
	defer func() {
		h.metrics.RequestFinished(adapter.Name(), time.Since(started).Seconds())
		h.metrics.RecordRequest(adapter.Name(), chatReq.Model, status)
	}()

	h.logger.Info("chat completion request",
		"provider", adapter.Name(),
		"model", req.Model,
		"stream", req.Stream,
		"messages", len(req.Messages),
		"tools", len(req.Tools),
	)

	value, err := h.queue.Do(r.Context(), adapter.Name(), func() (any, error) {
		return adapter.Chat(r.Context(), chatReq)
	})
	if err != nil {
		status = "error"
		h.upstreamError(w, adapter.Name(), err)
		return
	}

	result := value.(*providers.ChatResult)
	defer result.Upstream.Close()

	promptTokens := h.countPromptTokens(chatReq.Messages)

	if req.Stream {
		if !h.streamResponse(r.Context(), w, adapter.Name(), chatReq, result, promptTokens) {
			status = "error"
		}
		return
	}

	if !h.jsonResponse(r.Context(), w, adapter.Name(), chatReq, result, promptTokens) {
		status = "error"
	}
}

// resolveRequest merges config defaults, body fields and header overrides
// into the adapter request. Headers win over body, body wins over config.
func (h *ChatHandler) resolveRequest(r *http.Request, req *chatRequest) *providers.ChatRequest {
	cfg := h.config.Get()

	strip := cfg.StripReasoning
	if req.StripReasoning != nil {
		strip = *req.StripReasoning
	}
	if v := r.Header.Get("x-strip-reasoning"); v != "" {
		strip = v == "true" || v == "1"
	}

	clean := cfg.CleanMode
	if req.CleanMode != nil {
		clean = *req.CleanMode
	}
	if v := r.Header.Get("x-clean-mode"); v != "" {
		clean = v == "true" || v == "1"
	}

	return &providers.ChatRequest{
		Model:          req.Model,
		Messages:       req.Messages,
		Tools:          req.Tools,
		SessionKey:     r.Header.Get("x-session-id"),
		StripReasoning: strip,
		CleanMode:      clean,
	}
}

// streamResponse relays the converted upstream as OpenAI chunks. Returns
// false when the stream failed. A mid-stream failure aborts the response
// without the [DONE] sentinel so clients can tell truncation from
// completion.
func (h *ChatHandler) streamResponse(ctx context.Context, w http.ResponseWriter, provider string, req *providers.ChatRequest, result *providers.ChatResult, promptTokens int) bool {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	emitter := stream.NewEmitter(w, result.Model)
	parser := toolcall.NewStreamParser()
	extractTools := len(req.Tools) > 0

	var (
		calls            []toolcall.ToolCall
		emitted          bool
		completionTokens int
	)

	err := result.Converter.Stream(ctx, result.Upstream, func(f stream.Fragment) error {
		if f.Text == "" {
			return nil
		}

		emitted = true
		completionTokens += h.countTokens(f.Text)

		if f.Reasoning {
			return emitter.Reasoning(f.Text)
		}

		if !extractTools {
			return emitter.Content(f.Text)
		}

		text, found := parser.Feed(f.Text)
		calls = append(calls, found...)

		if err := emitter.Content(text); err != nil {
			return err
		}

		return emitter.ToolCalls(found)
	})
	if err != nil {
		// Headers may already be on the wire; dropping the connection
		// without [DONE] is the only honest signal left.
		h.logger.Error("stream relay failed", "provider", provider, "error", err)
		return false
	}

	if extractTools {
		text, found := parser.Flush()
		calls = append(calls, found...)

		if text != "" {
			emitted = true

			if err := emitter.Content(text); err != nil {
				h.logger.Error("stream relay failed", "provider", provider, "error", err)
				return false
			}
		}

		if err := emitter.ToolCalls(found); err != nil {
			h.logger.Error("stream relay failed", "provider", provider, "error", err)
			return false
		}
	}

	if !emitted {
		h.upstreamError(w, provider, providers.EmptyResponseError(provider))
		return false
	}

	h.recordSessionUpdate(result)
	h.metrics.RecordTokens(provider, "input", promptTokens)
	h.metrics.RecordTokens(provider, "output", completionTokens)

	finish := stream.FinishStop
	if len(calls) > 0 {
		finish = stream.FinishToolCalls
	}

	if err := emitter.Finish(finish); err != nil {
		return false
	}

	return emitter.Done() == nil
}

// jsonResponse drains the upstream and returns one aggregated completion.
func (h *ChatHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, provider string, req *providers.ChatRequest, result *providers.ChatResult, promptTokens int) bool {
	aggregate, err := result.Converter.Drain(ctx, result.Upstream)
	if err != nil {
		h.upstreamError(w, provider, err)
		return false
	}

	content := aggregate.Content
	finish := stream.FinishStop

	var calls []toolcall.ToolCall

	if len(req.Tools) > 0 {
		parsed := toolcall.Parse(content)
		content = parsed.RemainingText
		calls = parsed.ToolCalls

		if len(calls) > 0 {
			finish = stream.FinishToolCalls
		}
	}

	if content == "" && aggregate.Reasoning == "" && len(calls) == 0 {
		h.upstreamError(w, provider, providers.EmptyResponseError(provider))
		return false
	}

	h.recordSessionUpdate(result)

	completionTokens := h.countTokens(aggregate.Reasoning) + h.countTokens(content)
	h.metrics.RecordTokens(provider, "input", promptTokens)
	h.metrics.RecordTokens(provider, "output", completionTokens)

	reasoning := aggregate.Reasoning
	if req.StripReasoning {
		reasoning = ""
	}

	completion := stream.Completion{
		ID:      stream.NewCompletionID(),
		Object:  stream.ObjectCompletion,
		Created: time.Now().Unix(),
		Model:   result.Model,
		Choices: []stream.CompletionChoice{{
			Index: 0,
			Message: stream.CompletionMessage{
				Role:             providers.RoleAssistant,
				Content:          content,
				ReasoningContent: reasoning,
				ToolCalls:        calls,
			},
			FinishReason: finish,
		}},
		Usage: stream.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(completion); err != nil {
		h.logger.Error("write completion failed", "provider", provider, "error", err)
		return false
	}

	return true
}

// recordSessionUpdate threads the upstream conversation forward when the
// converter captured a parent message id.
func (h *ChatHandler) recordSessionUpdate(result *providers.ChatResult) {
	if result.UpdateSession == nil {
		return
	}

	type parentCarrier interface {
		ParentMessageID() string
	}

	if carrier, ok := result.Converter.(parentCarrier); ok {
		if id := carrier.ParentMessageID(); id != "" {
			result.UpdateSession(id)
		}
	}
}

func (h *ChatHandler) upstreamError(w http.ResponseWriter, provider string, err error) {
	switch {
	case errors.Is(err, credential.ErrNoCredentials):
		httpError(w, http.StatusServiceUnavailable, "no_credentials", "provider %s has no active credentials", provider)
	case errors.Is(err, providers.ErrEmptyResponse):
		httpError(w, http.StatusInternalServerError, "empty_response", "%v", err)
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
	default:
		h.logger.Error("upstream request failed", "provider", provider, "error", err)
		httpError(w, http.StatusBadGateway, "upstream_error", "provider %s request failed: %v", provider, err)
	}
}

func (h *ChatHandler) countPromptTokens(messages []providers.ChatMessage) int {
	var b strings.Builder

	for _, msg := range messages {
		b.WriteString(providers.ContentText(msg.Content))
		b.WriteString("\n")
	}

	return h.countTokens(b.String())
}

func (h *ChatHandler) countTokens(text string) int {
	if text == "" {
		return 0
	}

	if h.encoding == nil {
		// Rough estimate when the encoding is unavailable.
		return len(text) / 4
	}

	return len(h.encoding.Encode(text, nil, nil))
}

// httpError writes the structured error body shared by every endpoint.
func httpError(w http.ResponseWriter, code int, errType, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"type":    errType,
			"message": fmt.Sprintf(format, args...),
		},
	})
}
