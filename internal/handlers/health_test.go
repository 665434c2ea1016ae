package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionbridge/sessionbridge/internal/admission"
	"github.com/sessionbridge/sessionbridge/internal/providers"
)

func TestHealthHandler_ReportsQueues(t *testing.T) {
	registry := providers.NewRegistry()
	registry.Register(&stubAdapter{name: "deepseek", prefix: "deepseek"})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	queue := admission.NewQueue(map[string]int{"deepseek": 5}, logger)

	h := NewHealthHandler(registry, queue, logger)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, 200, rec.Code)

	var report healthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))

	assert.Equal(t, "ok", report.Status)
	assert.Equal(t, 5, report.Queues["deepseek"].Limit)
}

func TestHealthHandler_OmitsPayloads(t *testing.T) {
	registry := providers.NewRegistry()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHealthHandler(registry, admission.NewQueue(nil, logger), logger)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, 200, rec.Code)
	assert.NotContains(t, rec.Body.String(), "payload")
}
