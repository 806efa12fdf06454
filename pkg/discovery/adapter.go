package discovery

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rhuss/toolgate/pkg/adapter"
	"github.com/rhuss/toolgate/pkg/api"
	"github.com/rhuss/toolgate/pkg/upstream"
)

// Config configures the discovery adapter.
type Config struct {
	// ID is the adapter id (default "functions").
	ID string

	// PlatformURL is the base URL of the function-hosting platform.
	PlatformURL string

	// FunctionPrefix is the path under which functions are invoked and
	// mentioned in documentation (default "/functions/v1/").
	FunctionPrefix string

	Sources []Source
	Filter  Filter

	CacheTTL       time.Duration // default 5m
	RetryBackoff   time.Duration // default 30s
	RefreshTimeout time.Duration // default 60s
	FetchTimeout   time.Duration // default 10s
	InvokeTimeout  time.Duration // default 30s
	HealthTTL      time.Duration // default 30s
	HealthTimeout  time.Duration // default 3s
	HealthPath     string        // default "/"

	// APIKey is sent as the "apikey" header on invocations when the
	// caller did not supply one.
	APIKey string

	// ForwardHeaders lists inbound headers passed to the platform.
	ForwardHeaders []string

	// HTTPClient allows injecting a custom client (useful for testing).
	HTTPClient *http.Client
}

func (c *Config) applyDefaults() {
	if c.ID == "" {
		c.ID = "functions"
	}
	if c.FunctionPrefix == "" {
		c.FunctionPrefix = "/functions/v1/"
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 5 * time.Minute
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 30 * time.Second
	}
	if c.RefreshTimeout == 0 {
		c.RefreshTimeout = 60 * time.Second
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = 10 * time.Second
	}
	if c.InvokeTimeout == 0 {
		c.InvokeTimeout = 30 * time.Second
	}
	if c.HealthTTL == 0 {
		c.HealthTTL = 30 * time.Second
	}
	if c.HealthTimeout == 0 {
		c.HealthTimeout = 3 * time.Second
	}
	if c.HealthPath == "" {
		c.HealthPath = "/"
	}
	if len(c.ForwardHeaders) == 0 {
		c.ForwardHeaders = []string{"Authorization", "apikey", "X-API-Key"}
	}
}

// Adapter exposes discovered functions as tools. It uses the modern call
// convention so that auth headers reach the platform.
type Adapter struct {
	cfg      Config
	parser   *Parser
	platform *upstream.Client
	cache    *Cache
	health   *healthCache
}

var (
	_ adapter.Adapter       = (*Adapter)(nil)
	_ adapter.ModernInvoker = (*Adapter)(nil)
)

// New creates a discovery Adapter. No source is read until the first
// catalog access or an explicit Refresh.
func New(cfg Config) (*Adapter, error) {
	cfg.applyDefaults()
	if cfg.PlatformURL == "" {
		return nil, fmt.Errorf("discovery: platform_url is required")
	}
	if err := cfg.Filter.Validate(); err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}
	for i, s := range cfg.Sources {
		if s.Location == "" {
			return nil, fmt.Errorf("discovery: source %d has no location", i)
		}
	}

	a := &Adapter{
		cfg:    cfg,
		parser: NewParser(cfg.FunctionPrefix),
		platform: upstream.New(upstream.Config{
			BaseURL:    cfg.PlatformURL,
			Timeout:    cfg.InvokeTimeout,
			HTTPClient: cfg.HTTPClient,
		}),
	}

	fetcher := upstream.New(upstream.Config{Timeout: cfg.FetchTimeout, HTTPClient: cfg.HTTPClient})
	discoverer := NewDiscoverer(a.parser, fetcher)

	a.cache = newCache(cfg.CacheTTL, cfg.RetryBackoff, cfg.RefreshTimeout, func(ctx context.Context) ([]Function, error) {
		res, err := discoverer.Discover(ctx, cfg.Sources)
		if err != nil {
			return nil, err
		}
		kept := res.Functions[:0:0]
		for _, fn := range res.Functions {
			if cfg.Filter.ShouldInclude(fn.Slug) {
				kept = append(kept, fn)
			}
		}
		return kept, nil
	})
	a.health = &healthCache{
		ttl:     cfg.HealthTTL,
		timeout: cfg.HealthTimeout,
		probe:   platformProbe(a.platform, cfg.HealthPath),
		now:     time.Now,
	}
	return a, nil
}

// ID returns the adapter id.
func (a *Adapter) ID() string { return a.cfg.ID }

// Capabilities returns the adapter's capability labels.
func (a *Adapter) Capabilities() []string { return []string{"functions", "discovery"} }

// Convention returns adapter.Modern.
func (a *Adapter) Convention() adapter.CallConvention { return adapter.Modern }

// Tools returns the current generation's tools, refreshing it first if the
// TTL has elapsed.
func (a *Adapter) Tools(ctx context.Context) []api.ToolDescriptor {
	return a.cache.Get(ctx).tools
}

// Functions returns the current generation's functions.
func (a *Adapter) Functions(ctx context.Context) []Function {
	return a.cache.Get(ctx).Functions
}

// Generation returns the current generation without refreshing.
func (a *Adapter) Generation() *Generation {
	return a.cache.Current()
}

// Refresh forces a discovery pass.
func (a *Adapter) Refresh(ctx context.Context) error {
	return a.cache.Refresh(ctx)
}

// ShouldInclude reports whether slug passes the configured filter.
func (a *Adapter) ShouldInclude(slug string) bool {
	return a.cfg.Filter.ShouldInclude(slug)
}

// InvokeTool calls POST <platform><prefix><slug> with args as the JSON body.
func (a *Adapter) InvokeTool(ctx context.Context, tool string, args map[string]any, cc adapter.CallContext) (any, error) {
	if _, ok := a.cache.Current().Lookup(tool); !ok {
		return nil, fmt.Errorf("discovery: %w: function %q is not in the current catalog", adapter.ErrUnknownTool, tool)
	}

	headers := make(map[string]string, len(a.cfg.ForwardHeaders)+1)
	for _, name := range a.cfg.ForwardHeaders {
		if v := cc.Header(name); v != "" {
			headers[name] = v
		}
	}
	if a.cfg.APIKey != "" && cc.Header("apikey") == "" {
		headers["apikey"] = a.cfg.APIKey
	}

	resp, err := a.platform.Do(ctx, upstream.Request{
		Method:  http.MethodPost,
		Path:    a.parser.Prefix() + tool,
		Headers: headers,
		Body:    args,
	})
	if err != nil {
		return nil, err
	}
	return resp.Data(), nil
}

// Health returns the cached platform reachability.
func (a *Adapter) Health(ctx context.Context) adapter.Health {
	return a.health.get(ctx)
}
