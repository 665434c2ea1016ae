package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sessionbridge/sessionbridge/internal/admission"
	"github.com/sessionbridge/sessionbridge/internal/credential"
	"github.com/sessionbridge/sessionbridge/internal/providers"
)

type healthReport struct {
	Status    string                            `json:"status"`
	Providers map[string]credential.PoolSummary `json:"providers"`
	Queues    map[string]admission.Status       `json:"queues"`
}

// HealthHandler reports credential pool state per provider and admission
// queue depth. Payloads never appear here; entries are redacted to status
// and counters.
type HealthHandler struct {
	registry *providers.Registry
	queue    *admission.Queue
	logger   *slog.Logger
}

func NewHealthHandler(registry *providers.Registry, queue *admission.Queue, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		registry: registry,
		queue:    queue,
		logger:   logger,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := healthReport{
		Status:    "ok",
		Providers: make(map[string]credential.PoolSummary),
		Queues:    h.queue.StatusAll(),
	}

	for _, adapter := range h.registry.Adapters() {
		pooled, ok := adapter.(interface{ Pool() *credential.Pool })
		if !ok {
			continue
		}

		report.Providers[adapter.Name()] = pooled.Pool().Summary()
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(report); err != nil {
		h.logger.Error("failed to write health response", "error", err)
	}
}
