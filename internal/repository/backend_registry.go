package repository

import (
	"sync"

	"github.com/rmahmud/route-director/internal/domain"
	"github.com/rmahmud/route-director/internal/errors"
)

// BackendRegistry is the in-memory store of backend configurations.
// Registration order is preserved so selection over the pool is stable.
type BackendRegistry struct {
	mu       sync.RWMutex
	backends map[string]*domain.Backend
	order    []string
}

// NewBackendRegistry creates an empty registry
func NewBackendRegistry() *BackendRegistry {
	return &BackendRegistry{
		backends: make(map[string]*domain.Backend),
	}
}

// Register adds a backend. Duplicate ids are rejected.
func (r *BackendRegistry) Register(backend *domain.Backend) error {
	if backend == nil {
		return errors.NewError(errors.ErrCodeInvalidBackend, "registry", "backend cannot be nil")
	}
	if err := backend.Validate(); err != nil {
		return errors.NewInvalidBackendError(backend.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[backend.ID]; exists {
		return errors.NewDuplicateBackendError(backend.ID)
	}

	r.backends[backend.ID] = backend
	r.order = append(r.order, backend.ID)
	return nil
}

// Deregister removes a backend by id.
func (r *BackendRegistry) Deregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[id]; !exists {
		return errors.NewBackendNotFoundError(id)
	}

	delete(r.backends, id)
	for i, known := range r.order {
		if known == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns a backend by id.
func (r *BackendRegistry) Get(id string) (*domain.Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	backend, exists := r.backends[id]
	return backend, exists
}

// List returns all backends in registration order.
func (r *BackendRegistry) List() []*domain.Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()

	backends := make([]*domain.Backend, 0, len(r.order))
	for _, id := range r.order {
		backends = append(backends, r.backends[id])
	}
	return backends
}

// Count returns the number of registered backends
func (r *BackendRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.backends)
}

// Exists checks if a backend with the given ID is registered
func (r *BackendRegistry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.backends[id]
	return exists
}
