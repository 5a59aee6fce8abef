package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/davidbz/chatrelay/internal/domain"
)

// Registry implements the domain.AdapterRegistry interface.
type Registry struct {
	mu       sync.RWMutex
	adapters map[domain.ProviderKind]domain.Adapter
}

// NewRegistry creates a new adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		mu:       sync.RWMutex{},
		adapters: make(map[domain.ProviderKind]domain.Adapter),
	}
}

// Register adds an adapter to the registry under its kind.
func (r *Registry) Register(_ context.Context, adapter domain.Adapter) error {
	if adapter == nil {
		return errors.New("adapter cannot be nil")
	}

	kind := adapter.Kind()
	if !kind.Valid() {
		return fmt.Errorf("unknown provider kind %q", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[kind]; exists {
		return fmt.Errorf("adapter %s already registered", kind)
	}

	r.adapters[kind] = adapter
	return nil
}

// Get retrieves an adapter by provider kind.
func (r *Registry) Get(_ context.Context, kind domain.ProviderKind) (domain.Adapter, error) {
	if kind == "" {
		return nil, errors.New("provider kind cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, exists := r.adapters[kind]
	if !exists {
		return nil, fmt.Errorf("adapter %s not found", kind)
	}

	return adapter, nil
}

// List returns the registered provider kinds in sorted order.
func (r *Registry) List(_ context.Context) ([]domain.ProviderKind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]domain.ProviderKind, 0, len(r.adapters))
	for kind := range r.adapters {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	return kinds, nil
}
