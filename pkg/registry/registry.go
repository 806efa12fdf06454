package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rhuss/toolgate/pkg/adapter"
	"github.com/rhuss/toolgate/pkg/api"
	"github.com/rhuss/toolgate/pkg/debug"
	"github.com/rhuss/toolgate/pkg/observability"
)

var (
	// ErrDuplicateAdapterID is returned by Register when the id is taken.
	ErrDuplicateAdapterID = errors.New("duplicate adapter id")

	// ErrUnknownTool is returned when no adapter exposes the requested tool.
	ErrUnknownTool = adapter.ErrUnknownTool

	// ErrConventionMismatch is returned by Register when an adapter declares
	// a call convention it does not implement.
	ErrConventionMismatch = errors.New("adapter does not implement its declared call convention")
)

// Registry routes tool calls to registered adapters.
// It is safe for concurrent use.
type Registry struct {
	// mu serializes writers; readers only load snap.
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

type snapshot struct {
	// entries in registration order.
	entries []*entry
	byID    map[string]*entry
}

type entry struct {
	adapter adapter.Adapter
	stats   *callStats
}

// Target is a resolved tool: the owning adapter and its descriptor.
type Target struct {
	Adapter adapter.Adapter
	Tool    api.ToolDescriptor
}

// QualifiedName returns "<adapter>.<tool>".
func (t Target) QualifiedName() string {
	return t.Adapter.ID() + "." + t.Tool.Name
}

// New creates an empty Registry.
func New() *Registry {
	r := &Registry{}
	r.snap.Store(&snapshot{byID: map[string]*entry{}})
	return r
}

// Register adds an adapter. It fails with ErrDuplicateAdapterID if the id is
// already registered and with ErrConventionMismatch if the adapter does not
// implement the invoker interface for its declared convention.
func (r *Registry) Register(a adapter.Adapter) error {
	id := a.ID()
	if id == "" {
		return fmt.Errorf("adapter id must not be empty")
	}
	if strings.Contains(id, ".") {
		return fmt.Errorf("adapter id %q must not contain '.'", id)
	}
	if err := checkConvention(a); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.snap.Load()
	if _, ok := old.byID[id]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateAdapterID, id)
	}

	next := &snapshot{
		entries: make([]*entry, 0, len(old.entries)+1),
		byID:    make(map[string]*entry, len(old.byID)+1),
	}
	next.entries = append(next.entries, old.entries...)
	for k, v := range old.byID {
		next.byID[k] = v
	}

	e := &entry{adapter: a, stats: &callStats{}}
	next.entries = append(next.entries, e)
	next.byID[id] = e
	r.snap.Store(next)

	slog.Info("registered adapter",
		"adapter", id,
		"convention", a.Convention().String(),
		"capabilities", a.Capabilities(),
	)
	return nil
}

func checkConvention(a adapter.Adapter) error {
	switch a.Convention() {
	case adapter.Legacy:
		if _, ok := a.(adapter.LegacyInvoker); !ok {
			return fmt.Errorf("%w: %q declares legacy", ErrConventionMismatch, a.ID())
		}
	case adapter.Modern:
		if _, ok := a.(adapter.ModernInvoker); !ok {
			return fmt.Errorf("%w: %q declares modern", ErrConventionMismatch, a.ID())
		}
	default:
		return fmt.Errorf("%w: %q declares %s", ErrConventionMismatch, a.ID(), a.Convention())
	}
	return nil
}

// Adapter returns the adapter registered under id.
func (r *Registry) Adapter(id string) (adapter.Adapter, bool) {
	e, ok := r.snap.Load().byID[id]
	if !ok {
		return nil, false
	}
	return e.adapter, true
}

// Adapters returns all adapters in registration order.
func (r *Registry) Adapters() []adapter.Adapter {
	snap := r.snap.Load()
	out := make([]adapter.Adapter, len(snap.entries))
	for i, e := range snap.entries {
		out[i] = e.adapter
	}
	return out
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	return len(r.snap.Load().entries)
}

// Resolve locates the adapter owning name. A qualified "<adapter>.<tool>"
// name wins over a bare tool name that happens to contain a dot.
func (r *Registry) Resolve(ctx context.Context, name string) (Target, error) {
	snap := r.snap.Load()

	if id, tool, ok := strings.Cut(name, "."); ok {
		if e, found := snap.byID[id]; found {
			if td, found := findTool(ctx, e.adapter, tool); found {
				return Target{Adapter: e.adapter, Tool: td}, nil
			}
		}
	}

	for _, e := range snap.entries {
		if td, found := findTool(ctx, e.adapter, name); found {
			return Target{Adapter: e.adapter, Tool: td}, nil
		}
	}

	return Target{}, fmt.Errorf("%w: %q", ErrUnknownTool, name)
}

func findTool(ctx context.Context, a adapter.Adapter, name string) (api.ToolDescriptor, bool) {
	for _, td := range a.Tools(ctx) {
		if td.Name == name {
			return td, true
		}
	}
	return api.ToolDescriptor{}, false
}

// Dispatch resolves name and invokes the owning adapter.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any, cc adapter.CallContext) (any, error) {
	target, err := r.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	return r.Invoke(ctx, target, args, cc)
}

// Invoke calls a resolved target according to its adapter's declared
// convention. Every call increments the adapter's call counter; a returned
// error or a panic also increments its error counter. Errors are returned
// unchanged for the caller to present.
func (r *Registry) Invoke(ctx context.Context, target Target, args map[string]any, cc adapter.CallContext) (result any, err error) {
	a := target.Adapter
	id := a.ID()
	tool := target.Tool.Name

	e, ok := r.snap.Load().byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, target.QualifiedName())
	}
	e.stats.begin()

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("adapter panicked",
				"adapter", id,
				"tool", tool,
				"panic", rec,
			)
			result = nil
			err = fmt.Errorf("adapter %q panicked on tool %q", id, tool)
			e.stats.fail()
			observability.ToolCallsTotal.WithLabelValues(id, tool, "panic").Inc()
			observability.ToolDuration.WithLabelValues(id, tool).Observe(time.Since(start).Seconds())
		}
	}()

	if args == nil {
		args = map[string]any{}
	}

	switch a.Convention() {
	case adapter.Legacy:
		result, err = a.(adapter.LegacyInvoker).Invoke(ctx, adapter.LegacyCall{Tool: tool, Args: args})
	case adapter.Modern:
		result, err = a.(adapter.ModernInvoker).InvokeTool(ctx, tool, args, cc)
	default:
		err = fmt.Errorf("%w: %q declares %s", ErrConventionMismatch, id, a.Convention())
	}

	status := "success"
	if err != nil {
		status = "error"
		e.stats.fail()
	}
	observability.ToolCallsTotal.WithLabelValues(id, tool, status).Inc()
	observability.ToolDuration.WithLabelValues(id, tool).Observe(time.Since(start).Seconds())

	debug.Log("registry", "dispatch",
		"adapter", id,
		"tool", tool,
		"status", status,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, err
}

// Tools returns the merged catalog with adapter-qualified names, in
// registration order.
func (r *Registry) Tools(ctx context.Context) []api.ToolDescriptor {
	snap := r.snap.Load()

	var all []api.ToolDescriptor
	for _, e := range snap.entries {
		id := e.adapter.ID()
		for _, td := range e.adapter.Tools(ctx) {
			td.Name = id + "." + td.Name
			all = append(all, td)
		}
	}
	return all
}
