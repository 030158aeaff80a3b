package transport

import (
	"context"
	"sync"
)

// InFlightRegistry maps request IDs of running synchronous executions to
// their cancel functions, so a DELETE can interrupt a blocking run.
//
// All methods are safe for concurrent access.
type InFlightRegistry struct {
	mu      sync.Mutex
	entries map[string]context.CancelFunc
}

// NewInFlightRegistry creates a new empty registry.
func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{entries: make(map[string]context.CancelFunc)}
}

// Register records cancel under id, replacing any previous entry.
func (r *InFlightRegistry) Register(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = cancel
}

// Cancel calls and forgets the cancel function for id. It reports false
// when id is unknown or already finished.
func (r *InFlightRegistry) Cancel(id string) bool {
	r.mu.Lock()
	cancel, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Remove forgets id without cancelling it.
func (r *InFlightRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Len reports how many executions are registered.
func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
