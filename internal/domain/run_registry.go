package domain

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// RunRegistry tracks in-flight runs by id.
type RunRegistry struct {
	mu   sync.RWMutex
	runs map[string]*RunHandle
}

// NewRunRegistry creates an empty run registry.
func NewRunRegistry() *RunRegistry {
	return &RunRegistry{
		mu:   sync.RWMutex{},
		runs: make(map[string]*RunHandle),
	}
}

// Register adds a run handle.
func (r *RunRegistry) Register(handle *RunHandle) error {
	if handle == nil {
		return errors.New("run handle cannot be nil")
	}
	if handle.ID == "" {
		return errors.New("run id cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[handle.ID]; exists {
		return fmt.Errorf("run %s already registered", handle.ID)
	}

	r.runs[handle.ID] = handle
	return nil
}

// Get retrieves a run handle by id.
func (r *RunRegistry) Get(runID string) (*RunHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handle, ok := r.runs[runID]
	return handle, ok
}

// Remove deletes a run handle and reports whether it was present.
func (r *RunRegistry) Remove(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.runs[runID]; !ok {
		return false
	}
	delete(r.runs, runID)
	return true
}

// IDs returns the ids of all registered runs in sorted order.
func (r *RunRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.runs))
	for id := range r.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered runs.
func (r *RunRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.runs)
}
