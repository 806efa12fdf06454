package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rhuss/toolgate/pkg/debug"
	"github.com/rhuss/toolgate/pkg/observability"
)

// ErrAllProvidersFailed is returned when the primary provider and its
// single fallback both failed.
var ErrAllProvidersFailed = errors.New("all providers failed")

// Router executes chat requests under a Policy.
type Router struct {
	policy    *Policy
	providers map[string]Provider
	order     []Provider
}

// NewRouter validates policy configuration against providers and creates
// a Router.
func NewRouter(cfg PolicyConfig, providers ...Provider) (*Router, error) {
	r := &Router{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if p.Name() == Auto {
			return nil, fmt.Errorf("provider name %q is reserved", Auto)
		}
		if _, dup := r.providers[p.Name()]; dup {
			return nil, fmt.Errorf("duplicate provider %q", p.Name())
		}
		r.providers[p.Name()] = p
		r.order = append(r.order, p)
	}

	policy, err := NewPolicy(cfg, providers)
	if err != nil {
		return nil, err
	}
	r.policy = policy
	return r, nil
}

// Policy returns the router's policy.
func (r *Router) Policy() *Policy { return r.policy }

// Resolve reports which provider a request naming requested would start
// on, without running it.
func (r *Router) Resolve(requested string) (string, error) {
	return r.policy.Resolve(requested)
}

// Chat resolves the provider for req and executes it with at most one
// fallback. The response is annotated with the provider that served it.
func (r *Router) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	resolved, err := r.Resolve(req.Provider)
	if err != nil {
		observability.ProviderRequestsTotal.WithLabelValues(req.Provider, "", "not_allowed").Inc()
		return nil, err
	}
	if req.Provider != "" && req.Provider != resolved {
		debug.Log("providers", "request provider ignored by policy",
			"requested", req.Provider,
			"resolved", resolved,
		)
	}

	primary, secondary := r.policy.plan(resolved)

	resp, err := r.call(ctx, primary, req)
	if err == nil {
		resp.ServedBy = primary
		resp.Requested = resolved
		observability.ProviderRequestsTotal.WithLabelValues(resolved, primary, "ok").Inc()
		return resp, nil
	}

	if secondary == "" || ctx.Err() != nil {
		observability.ProviderRequestsTotal.WithLabelValues(resolved, primary, "error").Inc()
		return nil, err
	}

	slog.Warn("provider failed, falling back",
		"requested", resolved,
		"failed", primary,
		"fallback", secondary,
		"error", err,
	)

	resp, err2 := r.call(ctx, secondary, req)
	if err2 != nil {
		observability.ProviderRequestsTotal.WithLabelValues(resolved, secondary, "error").Inc()
		return nil, fmt.Errorf("%w: %s: %w; %s: %w", ErrAllProvidersFailed, primary, err, secondary, err2)
	}

	resp.ServedBy = secondary
	resp.Requested = resolved
	resp.FallbackFrom = primary
	observability.ProviderRequestsTotal.WithLabelValues(resolved, secondary, "fallback").Inc()
	return resp, nil
}

func (r *Router) call(ctx context.Context, name string, req *ChatRequest) (*ChatResponse, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	debug.Log("providers", "chat", "provider", name, "messages", len(req.Messages))
	resp, err := p.Chat(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", name, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("provider %q returned no response", name)
	}
	return resp, nil
}

// Service is one entry of the provider catalog.
type Service struct {
	ID          string `json:"id"`
	Kind        Kind   `json:"kind"`
	Description string `json:"description,omitempty"`
}

// Catalog lists the allowed services.
type Catalog struct {
	Services         []Service `json:"services"`
	DefaultProvider  string    `json:"defaultProvider"`
	FallbackProvider string    `json:"fallbackProvider,omitempty"`
}

// Catalog returns the allowed providers in configuration order together
// with the default and fallback names.
func (r *Router) Catalog() Catalog {
	c := Catalog{
		Services:         []Service{},
		DefaultProvider:  r.policy.Default(),
		FallbackProvider: r.policy.Fallback(),
	}
	if m := r.policy.Managed(); m != "" {
		c.DefaultProvider = m
	}
	for _, p := range r.order {
		if !r.policy.IsAllowed(p.Name()) {
			continue
		}
		c.Services = append(c.Services, Service{
			ID:          p.Name(),
			Kind:        p.Kind(),
			Description: p.Description(),
		})
	}
	return c
}
