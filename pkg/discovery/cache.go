package discovery

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rhuss/toolgate/pkg/api"
	"github.com/rhuss/toolgate/pkg/observability"
)

// ErrEmptyGeneration is returned when a pass produced no functions while
// the current generation is non-empty.
var ErrEmptyGeneration = errors.New("discovery produced no functions")

// Generation is one complete, immutable catalog snapshot.
type Generation struct {
	GeneratedAt time.Time
	Functions   []Function

	bySlug map[string]Function
	tools  []api.ToolDescriptor
}

func newGeneration(at time.Time, fns []Function) *Generation {
	g := &Generation{
		GeneratedAt: at,
		Functions:   fns,
		bySlug:      make(map[string]Function, len(fns)),
		tools:       make([]api.ToolDescriptor, 0, len(fns)),
	}
	for _, fn := range fns {
		g.bySlug[fn.Slug] = fn
		g.tools = append(g.tools, toolFor(fn))
	}
	return g
}

// Lookup returns the function with the given slug.
func (g *Generation) Lookup(slug string) (Function, bool) {
	fn, ok := g.bySlug[slug]
	return fn, ok
}

// Len returns the number of functions in the generation.
func (g *Generation) Len() int { return len(g.Functions) }

func toolFor(fn Function) api.ToolDescriptor {
	desc := fn.DisplayName
	if fn.Description != "" {
		desc += ": " + fn.Description
	}
	tags := []string{"discovered"}
	if !fn.AuthRequired {
		tags = append(tags, api.TagPublic)
	}
	return api.ToolDescriptor{
		Name:        fn.Slug,
		Description: desc,
		Category:    fn.Category,
		Tags:        tags,
		InputSchema: api.DefaultInputSchema,
	}
}

// refreshFunc produces the functions of a new generation.
type refreshFunc func(ctx context.Context) ([]Function, error)

// Cache holds the current generation and refreshes it lazily.
//
// Concurrent callers that observe an expired generation share one refresh
// through a single-flight group. A failed refresh leaves the current
// generation in place and suppresses further attempts for retryBackoff.
type Cache struct {
	ttl          time.Duration
	retryBackoff time.Duration
	timeout      time.Duration
	refresh      refreshFunc
	now          func() time.Time

	current     atomic.Pointer[Generation]
	lastFailure atomic.Int64 // unix nanos
	group       singleflight.Group
}

func newCache(ttl, retryBackoff, timeout time.Duration, refresh refreshFunc) *Cache {
	c := &Cache{
		ttl:          ttl,
		retryBackoff: retryBackoff,
		timeout:      timeout,
		refresh:      refresh,
		now:          time.Now,
	}
	c.current.Store(&Generation{bySlug: map[string]Function{}})
	return c
}

// Current returns the current generation without refreshing.
func (c *Cache) Current() *Generation {
	return c.current.Load()
}

// Get returns the current generation, refreshing it first when it is older
// than the TTL.
func (c *Cache) Get(ctx context.Context) *Generation {
	g := c.current.Load()
	if !c.expired(g) {
		return g
	}
	if last := c.lastFailure.Load(); last != 0 && c.now().Sub(time.Unix(0, last)) < c.retryBackoff {
		return g
	}
	_ = c.Refresh(ctx)
	return c.current.Load()
}

func (c *Cache) expired(g *Generation) bool {
	return g.GeneratedAt.IsZero() || c.now().Sub(g.GeneratedAt) >= c.ttl
}

// Refresh runs a discovery pass now and swaps in the result on success.
// The pass is detached from ctx cancellation so that a departing caller
// does not abort a refresh other callers are waiting on.
func (c *Cache) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("refresh", func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		prev := c.current.Load()
		fns, err := c.refresh(rctx)
		if err == nil && len(fns) == 0 && prev.Len() > 0 {
			err = ErrEmptyGeneration
		}
		if err != nil {
			c.lastFailure.Store(c.now().UnixNano())
			observability.DiscoveryRefreshTotal.WithLabelValues("error").Inc()
			slog.Warn("discovery refresh failed, serving previous generation",
				"error", err,
				"functions", prev.Len(),
				"generated_at", prev.GeneratedAt,
			)
			return nil, err
		}

		next := newGeneration(c.now(), fns)
		c.current.Store(next)
		c.lastFailure.Store(0)
		observability.DiscoveryRefreshTotal.WithLabelValues("ok").Inc()
		observability.DiscoveryFunctions.Set(float64(next.Len()))
		slog.Info("discovery generation published", "functions", next.Len())
		return nil, nil
	})
	return err
}
