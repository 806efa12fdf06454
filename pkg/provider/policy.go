package provider

import (
	"errors"
	"fmt"
	"sort"
)

// Auto is the sentinel provider name selecting local-first routing.
const Auto = "auto"

var (
	// ErrProviderNotAllowed is returned when the resolved provider is not in
	// the allowed set.
	ErrProviderNotAllowed = errors.New("provider not allowed")

	// ErrUnknownProvider is returned for names that are not configured.
	ErrUnknownProvider = errors.New("unknown provider")
)

// PolicyConfig is the operator configuration of the router.
type PolicyConfig struct {
	Managed              string
	Default              string
	Fallback             string
	AllowRequestOverride bool

	// Allowed defaults to every configured provider, plus "auto" when a
	// local provider exists.
	Allowed []string

	// AutoLocal is tried first in auto mode; defaults to the first local
	// provider.
	AutoLocal string

	// AutoSecondary is used when AutoLocal fails in auto mode; defaults to
	// Fallback, then the first remote provider.
	AutoSecondary string
}

// Policy is the validated, immutable routing policy.
type Policy struct {
	managed       string
	def           string
	fallback      string
	allowOverride bool
	allowed       map[string]bool
	autoLocal     string
	autoSecondary string
}

// NewPolicy validates cfg against the configured providers. Every
// invalid combination is reported.
func NewPolicy(cfg PolicyConfig, providers []Provider) (*Policy, error) {
	known := make(map[string]Provider, len(providers))
	for _, p := range providers {
		known[p.Name()] = p
	}

	p := &Policy{
		managed:       cfg.Managed,
		def:           cfg.Default,
		fallback:      cfg.Fallback,
		allowOverride: cfg.AllowRequestOverride,
		allowed:       make(map[string]bool),
		autoLocal:     cfg.AutoLocal,
		autoSecondary: cfg.AutoSecondary,
	}
	if p.def == "" {
		p.def = Auto
	}
	if len(cfg.Allowed) == 0 {
		for _, pr := range providers {
			p.allowed[pr.Name()] = true
		}
	} else {
		for _, name := range cfg.Allowed {
			p.allowed[name] = true
		}
	}

	// Auto defaults only ever pick providers the operator allowed.
	candidates := make([]Provider, 0, len(providers))
	for _, pr := range providers {
		if p.allowed[pr.Name()] {
			candidates = append(candidates, pr)
		}
	}
	if p.autoLocal == "" {
		p.autoLocal = firstOfKind(candidates, KindLocal)
	}
	if p.autoSecondary == "" {
		if p.fallback != "" && p.fallback != Auto && p.fallback != p.autoLocal {
			p.autoSecondary = p.fallback
		} else {
			p.autoSecondary = firstOfKind(candidates, KindRemote)
		}
	}
	if len(cfg.Allowed) == 0 && p.autoLocal != "" {
		p.allowed[Auto] = true
	}

	var errs []error
	isKnown := func(name string) bool {
		_, ok := known[name]
		return ok || name == Auto
	}
	for name := range p.allowed {
		if !isKnown(name) {
			errs = append(errs, fmt.Errorf("allowed provider %q: %w", name, ErrUnknownProvider))
		}
	}
	check := func(field, name string) {
		if name == "" {
			return
		}
		if !isKnown(name) {
			errs = append(errs, fmt.Errorf("%s provider %q: %w", field, name, ErrUnknownProvider))
			return
		}
		if !p.allowed[name] {
			errs = append(errs, fmt.Errorf("%s provider %q: %w", field, name, ErrProviderNotAllowed))
		}
	}
	check("managed", p.managed)
	check("default", p.def)
	check("fallback", p.fallback)
	if p.fallback == Auto {
		errs = append(errs, fmt.Errorf("fallback provider must not be %q", Auto))
	}

	if p.allowed[Auto] {
		if p.autoLocal == "" {
			errs = append(errs, fmt.Errorf("auto routing needs a local provider"))
		} else if pr, ok := known[p.autoLocal]; !ok {
			errs = append(errs, fmt.Errorf("auto_local provider %q: %w", p.autoLocal, ErrUnknownProvider))
		} else if pr.Kind() != KindLocal {
			errs = append(errs, fmt.Errorf("auto_local provider %q is not local", p.autoLocal))
		} else if !p.allowed[p.autoLocal] {
			errs = append(errs, fmt.Errorf("auto_local provider %q: %w", p.autoLocal, ErrProviderNotAllowed))
		}
		if p.autoSecondary != "" {
			if _, ok := known[p.autoSecondary]; !ok {
				errs = append(errs, fmt.Errorf("auto_secondary provider %q: %w", p.autoSecondary, ErrUnknownProvider))
			} else if !p.allowed[p.autoSecondary] {
				errs = append(errs, fmt.Errorf("auto_secondary provider %q: %w", p.autoSecondary, ErrProviderNotAllowed))
			}
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return p, nil
}

func firstOfKind(providers []Provider, kind Kind) string {
	for _, p := range providers {
		if p.Kind() == kind {
			return p.Name()
		}
	}
	return ""
}

// Resolve picks the provider name for a request. The managed provider wins
// over everything; the requested name is considered only when request
// overrides are enabled; otherwise the default applies. A resolved name
// outside the allowed set fails with ErrProviderNotAllowed.
func (p *Policy) Resolve(requested string) (string, error) {
	name := p.def
	switch {
	case p.managed != "":
		name = p.managed
	case p.allowOverride && requested != "":
		name = requested
	}
	if !p.allowed[name] {
		return "", fmt.Errorf("%w: %q", ErrProviderNotAllowed, name)
	}
	return name, nil
}

// Default returns the default provider name.
func (p *Policy) Default() string { return p.def }

// Fallback returns the fallback provider name, or "".
func (p *Policy) Fallback() string { return p.fallback }

// Managed returns the forced provider name, or "".
func (p *Policy) Managed() string { return p.managed }

// Allowed returns the sorted allowed set.
func (p *Policy) Allowed() []string {
	out := make([]string, 0, len(p.allowed))
	for name := range p.allowed {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// IsAllowed reports whether name is in the allowed set.
func (p *Policy) IsAllowed(name string) bool { return p.allowed[name] }

// plan returns the primary provider and the single fallback for a resolved
// name. The fallback is empty when it would repeat the primary.
func (p *Policy) plan(resolved string) (primary, secondary string) {
	if resolved == Auto {
		primary, secondary = p.autoLocal, p.autoSecondary
	} else {
		primary, secondary = resolved, p.fallback
	}
	if secondary == primary {
		secondary = ""
	}
	return primary, secondary
}
