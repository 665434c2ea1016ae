package providers

import (
	"fmt"
	"sync"
)

// Registry routes a requested model id to the first registered adapter
// that claims it. Registration order is dispatch order.
type Registry struct {
	mu       sync.RWMutex
	adapters []Adapter
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.adapters = append(r.adapters, a)
}

// Resolve returns the adapter claiming the model id, first match wins.
func (r *Registry) Resolve(modelID string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.adapters {
		if a.MatchModel(modelID) {
			return a, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedModel, modelID)
}

// Adapters returns the adapters in registration order.
func (r *Registry) Adapters() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Adapter, len(r.adapters))
	copy(out, r.adapters)

	return out
}

// Models aggregates every adapter's advertised models in registration
// order.
func (r *Registry) Models() []Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var models []Model

	for _, a := range r.adapters {
		models = append(models, a.Models()...)
	}

	return models
}

// ResetAll drops every adapter's cached sessions.
func (r *Registry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.adapters {
		a.ResetClient()
	}
}
