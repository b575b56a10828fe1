package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/switchyard/pkg/domain"
)

// Handler is an in-process call target.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// Registry implements ports.Invoker by dispatching to in-process handlers.
// It is the embedded counterpart of the HTTP and process invokers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[domain.Address]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[domain.Address]Handler)}
}

// Register binds a handler to a reference, replacing any previous binding.
func (r *Registry) Register(target domain.Address, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[target] = h
}

// Unregister removes the binding for target.
func (r *Registry) Unregister(target domain.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, target)
}

// Invoke calls the handler bound to target.
func (r *Registry) Invoke(ctx context.Context, target domain.Address, payload []byte) ([]byte, error) {
	r.mu.RLock()
	h, ok := r.handlers[target]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no handler for %s", domain.ErrInvalidReference, target)
	}
	return h(ctx, payload)
}
