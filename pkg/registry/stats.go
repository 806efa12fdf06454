package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rhuss/toolgate/pkg/adapter"
)

// CallStats is a point-in-time copy of an adapter's call counters.
type CallStats struct {
	Calls    uint64    `json:"calls"`
	Errors   uint64    `json:"errors"`
	LastCall time.Time `json:"last_call,omitzero"`
}

type callStats struct {
	calls    atomic.Uint64
	errors   atomic.Uint64
	lastCall atomic.Int64 // unix nanos
}

func (s *callStats) begin() {
	s.calls.Add(1)
	s.lastCall.Store(time.Now().UnixNano())
}

func (s *callStats) fail() {
	s.errors.Add(1)
}

func (s *callStats) snapshot() CallStats {
	out := CallStats{
		Calls:  s.calls.Load(),
		Errors: s.errors.Load(),
	}
	if ns := s.lastCall.Load(); ns != 0 {
		out.LastCall = time.Unix(0, ns)
	}
	return out
}

// Stats returns the call statistics for the adapter registered under id.
func (r *Registry) Stats(id string) (CallStats, bool) {
	e, ok := r.snap.Load().byID[id]
	if !ok {
		return CallStats{}, false
	}
	return e.stats.snapshot(), true
}

// Status describes one adapter for operators.
type Status struct {
	ID           string         `json:"id"`
	Convention   string         `json:"convention"`
	Capabilities []string       `json:"capabilities,omitempty"`
	Tools        int            `json:"tools"`
	Health       adapter.Health `json:"health"`
	Stats        CallStats      `json:"stats"`
}

// Health probes every adapter concurrently and returns one Status per
// adapter in registration order.
func (r *Registry) Health(ctx context.Context) []Status {
	snap := r.snap.Load()
	out := make([]Status, len(snap.entries))

	var wg sync.WaitGroup
	for i, e := range snap.entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a := e.adapter
			out[i] = Status{
				ID:           a.ID(),
				Convention:   a.Convention().String(),
				Capabilities: a.Capabilities(),
				Tools:        len(a.Tools(ctx)),
				Health:       probe(ctx, a),
				Stats:        e.stats.snapshot(),
			}
		}()
	}
	wg.Wait()
	return out
}

func probe(ctx context.Context, a adapter.Adapter) (h adapter.Health) {
	defer func() {
		if rec := recover(); rec != nil {
			h = adapter.Health{Healthy: false, Detail: "health probe panicked"}
		}
	}()
	return a.Health(ctx)
}
