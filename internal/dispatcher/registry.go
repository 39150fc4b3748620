package dispatcher

import (
	"slices"
	"sync"

	"github.com/dshills/gridsync/internal/dispatcher/handler"
)

// Registry holds handlers grouped by layer, in registration order.
type Registry struct {
	mu     sync.RWMutex
	layers [handler.LayerHistory + 1][]handler.Handler
}

// NewRegistry creates a new handler registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a handler to a layer.
func (r *Registry) Register(layer handler.Layer, h handler.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.layers[layer] = append(r.layers[layer], h)
}

// Layer returns the handlers of a layer.
func (r *Registry) Layer(layer handler.Layer) []handler.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.layers[layer])
}

// Core returns the core handlers. Only these see replayed commands.
func (r *Registry) Core() []handler.Handler {
	return r.Layer(handler.LayerCore)
}

// UI returns the UI handlers.
func (r *Registry) UI() []handler.Handler {
	return r.Layer(handler.LayerUI)
}

// All returns every handler: core, then UI, then history.
func (r *Registry) All() []handler.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Concat(r.layers[:]...)
}
