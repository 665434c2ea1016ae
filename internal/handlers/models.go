package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sessionbridge/sessionbridge/internal/providers"
)

type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type modelList struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

// ModelsHandler lists every model id the registered adapters advertise,
// aliases included.
type ModelsHandler struct {
	registry *providers.Registry
}

func NewModelsHandler(registry *providers.Registry) *ModelsHandler {
	return &ModelsHandler{registry: registry}
}

func (h *ModelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "invalid_request_error", "method not allowed")
		return
	}

	created := time.Now().Unix()
	list := modelList{Object: "list", Data: []modelEntry{}}

	for _, m := range h.registry.Models() {
		list.Data = append(list.Data, modelEntry{
			ID:      m.ID,
			Object:  "model",
			Created: created,
			OwnedBy: m.OwnedBy,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}
