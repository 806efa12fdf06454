package config

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
)

// Validate checks the configuration for required fields and valid values.
// Every problem is reported with its field path.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}
	if c.Server.MaxBodySize <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_size must be > 0, got %d", c.Server.MaxBodySize))
	}

	errs = append(errs, c.validateAuth()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateAdapters()...)
	errs = append(errs, c.validateDiscovery()...)
	errs = append(errs, c.validateProviders()...)

	if c.Gateway.MCP.Enabled && !strings.HasPrefix(c.Gateway.MCP.Path, "/") {
		errs = append(errs, fmt.Errorf("gateway.mcp.path must start with \"/\", got %q", c.Gateway.MCP.Path))
	}
	if c.Observability.Metrics.Enabled && !strings.HasPrefix(c.Observability.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("observability.metrics.path must start with \"/\", got %q", c.Observability.Metrics.Path))
	}

	switch strings.ToLower(c.Observability.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("observability.logging.format must be \"text\" or \"json\", got %q", c.Observability.Logging.Format))
	}

	return errors.Join(errs...)
}

func (c *Config) validateAuth() []error {
	var errs []error
	d := c.Auth.Delegate

	switch d.Type {
	case "remote":
		if c.Gateway.RequireAuth && d.URL == "" {
			errs = append(errs, fmt.Errorf("auth.delegate.url is required when auth.delegate.type is \"remote\""))
		}
	case "static":
		for i, k := range d.APIKeys {
			if k.Key == "" && k.KeyFile == "" {
				errs = append(errs, fmt.Errorf("auth.delegate.api_keys[%d]: key or key_file is required", i))
			}
			if k.Subject == "" {
				errs = append(errs, fmt.Errorf("auth.delegate.api_keys[%d].subject is required", i))
			}
			switch k.Kind {
			case "", "bearer", "api_key":
			default:
				errs = append(errs, fmt.Errorf("auth.delegate.api_keys[%d].kind must be \"bearer\" or \"api_key\", got %q", i, k.Kind))
			}
		}
	default:
		errs = append(errs, fmt.Errorf("auth.delegate.type must be \"remote\" or \"static\", got %q", d.Type))
	}

	if c.Auth.Secondary.Enabled && c.Auth.Secondary.URL == "" {
		errs = append(errs, fmt.Errorf("auth.secondary.url is required when auth.secondary.enabled is true"))
	}

	if c.Auth.RateLimits.DefaultRPM < 0 {
		errs = append(errs, fmt.Errorf("auth.rate_limits.default_rpm must be >= 0"))
	}
	for tier, rpm := range c.Auth.RateLimits.Tiers {
		if rpm < 0 {
			errs = append(errs, fmt.Errorf("auth.rate_limits.tiers[%s] must be >= 0", tier))
		}
	}
	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error
	switch c.Storage.Type {
	case "none", "memory":
	case "postgres":
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"none\", \"memory\", or \"postgres\", got %q", c.Storage.Type))
	}
	for i, p := range c.Storage.Principals {
		if p.Subject == "" {
			errs = append(errs, fmt.Errorf("storage.principals[%d].subject is required", i))
		}
	}
	return errs
}

func (c *Config) validateAdapters() []error {
	var errs []error
	seen := make(map[string]bool)
	reserve := func(id, path string) {
		if id == "" {
			return
		}
		if seen[id] {
			errs = append(errs, fmt.Errorf("%s: duplicate adapter id %q", path, id))
		}
		seen[id] = true
	}

	for i, a := range c.Adapters {
		path := fmt.Sprintf("adapters[%d]", i)
		if a.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", path))
		}
		reserve(a.ID, path)
		if a.BaseURL == "" {
			errs = append(errs, fmt.Errorf("%s.base_url is required", path))
		}
		switch a.Convention {
		case "", "legacy", "modern":
		default:
			errs = append(errs, fmt.Errorf("%s.convention must be \"legacy\" or \"modern\", got %q", path, a.Convention))
		}
		switch a.Type {
		case "", "rest":
		case "mcp":
			errs = append(errs, validateMCPAdapter(a, path)...)
			continue
		default:
			errs = append(errs, fmt.Errorf("%s.type must be \"rest\" or \"mcp\", got %q", path, a.Type))
		}
		for j, t := range a.Tools {
			tpath := fmt.Sprintf("%s.tools[%d]", path, j)
			if t.Name == "" {
				errs = append(errs, fmt.Errorf("%s.name is required", tpath))
			}
			if len(t.Paths) == 0 {
				errs = append(errs, fmt.Errorf("%s.paths must list at least one endpoint", tpath))
			}
			switch strings.ToUpper(t.Method) {
			case "", http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			default:
				errs = append(errs, fmt.Errorf("%s.method %q is not supported", tpath, t.Method))
			}
		}
	}

	if c.Discovery.Enabled {
		reserve(c.Discovery.ID, "discovery")
	}
	if c.Providers.Enabled {
		reserve(c.Providers.ID, "providers")
	}
	return errs
}

func validateMCPAdapter(a AdapterConfig, path string) []error {
	var errs []error
	if a.Convention == "modern" {
		errs = append(errs, fmt.Errorf("%s.convention: mcp adapters use the legacy convention", path))
	}
	switch a.Transport {
	case "", "streamable-http", "sse":
	default:
		errs = append(errs, fmt.Errorf("%s.transport must be \"streamable-http\" or \"sse\", got %q", path, a.Transport))
	}
	if len(a.Tools) > 0 {
		errs = append(errs, fmt.Errorf("%s.tools: mcp adapters list their tools from the server", path))
	}
	if o := a.OAuth; o != nil {
		if o.TokenURL == "" {
			errs = append(errs, fmt.Errorf("%s.oauth.token_url is required", path))
		}
		if o.ClientID == "" {
			errs = append(errs, fmt.Errorf("%s.oauth.client_id is required", path))
		}
	}
	return errs
}

func (c *Config) validateDiscovery() []error {
	if !c.Discovery.Enabled {
		return nil
	}
	var errs []error
	if c.Discovery.ID == "" {
		errs = append(errs, fmt.Errorf("discovery.id is required"))
	}
	if c.Discovery.PlatformURL == "" {
		errs = append(errs, fmt.Errorf("discovery.platform_url is required when discovery.enabled is true"))
	}
	if len(c.Discovery.Sources) == 0 {
		errs = append(errs, fmt.Errorf("discovery.sources must list at least one documentation source"))
	}
	for i, s := range c.Discovery.Sources {
		if s.Location == "" {
			errs = append(errs, fmt.Errorf("discovery.sources[%d].location is required", i))
		}
		switch s.Format {
		case "", "auto", "markdown", "html":
		default:
			errs = append(errs, fmt.Errorf("discovery.sources[%d].format must be \"auto\", \"markdown\", or \"html\", got %q", i, s.Format))
		}
	}
	if c.Discovery.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("discovery.cache_ttl must be > 0"))
	}
	return errs
}

func (c *Config) validateProviders() []error {
	if !c.Providers.Enabled {
		return nil
	}
	var errs []error
	if len(c.Providers.List) == 0 {
		errs = append(errs, fmt.Errorf("providers.list must not be empty when providers.enabled is true"))
	}

	names := make([]string, 0, len(c.Providers.List))
	for i, p := range c.Providers.List {
		path := fmt.Sprintf("providers.list[%d]", i)
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", path))
		} else if p.Name == "auto" {
			errs = append(errs, fmt.Errorf("%s.name \"auto\" is reserved", path))
		} else if slices.Contains(names, p.Name) {
			errs = append(errs, fmt.Errorf("%s: duplicate provider name %q", path, p.Name))
		}
		names = append(names, p.Name)

		switch p.Kind {
		case "local", "remote":
		default:
			errs = append(errs, fmt.Errorf("%s.kind must be \"local\" or \"remote\", got %q", path, p.Kind))
		}
		switch p.Type {
		case "", "openaicompat", "openai":
		default:
			errs = append(errs, fmt.Errorf("%s.type must be \"openaicompat\" or \"openai\", got %q", path, p.Type))
		}
		if p.BaseURL == "" && p.Type != "openai" {
			errs = append(errs, fmt.Errorf("%s.base_url is required", path))
		}
	}

	known := func(name string) bool {
		return name == "" || name == "auto" || slices.Contains(names, name)
	}
	pol := c.Providers.Policy
	for field, name := range map[string]string{
		"managed":        pol.Managed,
		"default":        pol.Default,
		"fallback":       pol.Fallback,
		"auto_local":     pol.AutoLocal,
		"auto_secondary": pol.AutoSecondary,
	} {
		if !known(name) {
			errs = append(errs, fmt.Errorf("providers.policy.%s references unknown provider %q", field, name))
		}
	}
	for i, name := range pol.Allowed {
		if !known(name) {
			errs = append(errs, fmt.Errorf("providers.policy.allowed[%d] references unknown provider %q", i, name))
		}
	}
	return errs
}
