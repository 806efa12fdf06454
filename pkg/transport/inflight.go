package transport

import (
	"context"
	"sync"
)

// InFlightRegistry tracks in-flight invocations by call id so that they
// can be cancelled explicitly or drained on shutdown.
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

// Track derives a cancellable context for callID and registers it. The
// returned release func must be called when the invocation finishes.
func (r *InFlightRegistry) Track(ctx context.Context, callID string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.entries[callID] = cancel
	r.mu.Unlock()

	return ctx, func() {
		r.mu.Lock()
		delete(r.entries, callID)
		r.mu.Unlock()
		cancel()
	}
}

// Cancel cancels an in-flight call. Returns false if the id is unknown
// (already completed or never existed).
func (r *InFlightRegistry) Cancel(callID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cancel, ok := r.entries[callID]
	if !ok {
		return false
	}
	cancel()
	delete(r.entries, callID)
	return true
}

// CancelAll cancels every tracked call and returns how many there were.
func (r *InFlightRegistry) CancelAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.entries)
	for id, cancel := range r.entries {
		cancel()
		delete(r.entries, id)
	}
	return n
}

// Len returns the number of in-flight calls.
func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
