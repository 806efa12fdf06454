package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/rhuss/toolgate/pkg/adapter"
	mcpadapter "github.com/rhuss/toolgate/pkg/adapter/mcp"
	"github.com/rhuss/toolgate/pkg/adapter/rest"
	"github.com/rhuss/toolgate/pkg/auth"
	"github.com/rhuss/toolgate/pkg/auth/apikey"
	"github.com/rhuss/toolgate/pkg/auth/delegate"
	"github.com/rhuss/toolgate/pkg/auth/jwt"
	"github.com/rhuss/toolgate/pkg/config"
	"github.com/rhuss/toolgate/pkg/discovery"
	"github.com/rhuss/toolgate/pkg/provider"
	"github.com/rhuss/toolgate/pkg/provider/openai"
	"github.com/rhuss/toolgate/pkg/provider/openaicompat"
	"github.com/rhuss/toolgate/pkg/registry"
	"github.com/rhuss/toolgate/pkg/storage"
	"github.com/rhuss/toolgate/pkg/storage/memory"
	"github.com/rhuss/toolgate/pkg/storage/postgres"
)

// BuildOptions carries process-level inputs that are not configuration.
type BuildOptions struct {
	Version string
	Logger  *slog.Logger

	// HTTPClient is used for every outbound call (useful for testing).
	HTTPClient *http.Client

	// SkipWarmup disables the background discovery refresh at startup.
	SkipWarmup bool
}

// App is the assembled gateway.
type App struct {
	Gateway    *Gateway
	Dispatcher *Dispatcher
	Registry   *registry.Registry
	Discovery  *discovery.Adapter
	Principals storage.PrincipalStore

	closers []io.Closer
}

// Close releases backend resources (database pools, idle connections).
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Build assembles the gateway from a validated configuration. On error,
// everything created so far is closed.
func Build(ctx context.Context, cfg *config.Config, opts BuildOptions) (_ *App, err error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	app := &App{Registry: registry.New()}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	principals, err := buildPrincipals(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	if principals != nil {
		app.Principals = principals
		app.closers = append(app.closers, principals)
	}

	var guard *auth.Guard
	if cfg.Gateway.RequireAuth {
		guard, err = buildGuard(cfg.Auth, principals, opts.HTTPClient)
		if err != nil {
			return nil, err
		}
	} else {
		opts.Logger.Warn("authentication disabled, every tool is callable anonymously")
	}

	var mcpAdapters []*mcpadapter.Adapter
	for _, ac := range cfg.Adapters {
		var a adapter.Adapter
		if ac.Type == "mcp" {
			m, err := buildMCPAdapter(ac, opts)
			if err != nil {
				return nil, err
			}
			app.closers = append(app.closers, m)
			mcpAdapters = append(mcpAdapters, m)
			a = m
		} else {
			r, err := buildRESTAdapter(ac, cfg.Gateway.ForwardHeaders, opts.HTTPClient)
			if err != nil {
				return nil, err
			}
			a = r
		}
		if err := app.Registry.Register(a); err != nil {
			return nil, err
		}
	}

	if cfg.Discovery.Enabled {
		d, err := buildDiscovery(cfg.Discovery, cfg.Gateway.ForwardHeaders, opts.HTTPClient)
		if err != nil {
			return nil, err
		}
		if err := app.Registry.Register(d); err != nil {
			return nil, err
		}
		app.Discovery = d
	}

	if cfg.Providers.Enabled {
		pa, closers, err := buildProviders(cfg.Providers, opts.HTTPClient)
		app.closers = append(app.closers, closers...)
		if err != nil {
			return nil, err
		}
		if err := app.Registry.Register(pa); err != nil {
			return nil, err
		}
	}

	app.Dispatcher = NewDispatcher(app.Registry, DispatcherConfig{
		Guard:          guard,
		ForwardHeaders: cfg.Gateway.ForwardHeaders,
		Credentials:    credentialOptions(cfg.Auth),
		Errors:         ErrorMapper{ExposeInternals: cfg.Gateway.ExposeInternals},
	})

	gcfg := Config{
		Guard:              guard,
		PublicPaths:        cfg.Gateway.BypassEndpoints,
		CORSOriginSuffixes: cfg.Gateway.CORSOriginSuffixes,
		Version:            opts.Version,
		Logger:             opts.Logger,
	}
	if cfg.Gateway.MCP.Enabled {
		gcfg.MCPPath = cfg.Gateway.MCP.Path
	}
	if cfg.Observability.Metrics.Enabled {
		gcfg.MetricsPath = cfg.Observability.Metrics.Path
	}
	if principals != nil {
		gcfg.Ready = principals.HealthCheck
	}
	app.Gateway = New(app.Dispatcher, gcfg)

	if !opts.SkipWarmup {
		if app.Discovery != nil {
			go warmup(context.WithoutCancel(ctx), app.Discovery, opts.Logger)
		}
		for _, m := range mcpAdapters {
			go warmupMCP(context.WithoutCancel(ctx), m, opts.Logger)
		}
	}

	opts.Logger.Info("gateway assembled",
		"adapters", app.Registry.Len(),
		"require_auth", cfg.Gateway.RequireAuth,
		"secondary_issuer", cfg.Gateway.RequireAuth && cfg.Auth.Secondary.Enabled,
		"principals", cfg.Storage.Type,
	)
	return app, nil
}

func warmup(ctx context.Context, d *discovery.Adapter, logger *slog.Logger) {
	if err := d.Refresh(ctx); err != nil {
		logger.Warn("initial discovery refresh failed", "adapter", d.ID(), "error", err)
		return
	}
	logger.Info("discovery catalog loaded", "adapter", d.ID(), "functions", len(d.Functions(ctx)))
}

func warmupMCP(ctx context.Context, m *mcpadapter.Adapter, logger *slog.Logger) {
	if err := m.Refresh(ctx); err != nil {
		logger.Warn("initial mcp tool listing failed", "adapter", m.ID(), "error", err)
		return
	}
	logger.Info("mcp tools loaded", "adapter", m.ID(), "tools", len(m.Tools(ctx)))
}

func credentialOptions(cfg config.AuthConfig) auth.CredentialOptions {
	return auth.CredentialOptions{
		APIKeyHeader:   cfg.APIKeyHeader,
		APIKeyPrefixes: cfg.APIKeyPrefixes,
	}
}

func buildPrincipals(ctx context.Context, cfg config.StorageConfig) (storage.PrincipalStore, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "memory":
		ps := make([]storage.Principal, 0, len(cfg.Principals))
		for _, p := range cfg.Principals {
			ps = append(ps, storage.Principal{
				Subject:     p.Subject,
				TenantID:    p.TenantID,
				ServiceTier: p.ServiceTier,
				Disabled:    p.Disabled,
			})
		}
		return memory.New(ps...), nil
	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("principal store: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}

func buildGuard(cfg config.AuthConfig, principals storage.PrincipalStore, client *http.Client) (*auth.Guard, error) {
	var del auth.Delegate
	switch cfg.Delegate.Type {
	case "static":
		entries := make([]apikey.RawKeyEntry, 0, len(cfg.Delegate.APIKeys))
		for _, k := range cfg.Delegate.APIKeys {
			kind, err := parseKeyKind(k.Kind)
			if err != nil {
				return nil, err
			}
			id := auth.Identity{Subject: k.Subject, ServiceTier: k.ServiceTier}
			if k.TenantID != "" {
				id.Metadata = map[string]string{"tenant_id": k.TenantID}
			}
			entries = append(entries, apikey.RawKeyEntry{Key: k.Key, Identity: id, Kind: kind})
		}
		store, err := apikey.New(entries)
		if err != nil {
			return nil, fmt.Errorf("static delegate: %w", err)
		}
		del = store
	default:
		remote, err := delegate.New(delegate.Config{
			BaseURL:    cfg.Delegate.URL,
			Timeout:    cfg.Delegate.Timeout,
			Headers:    cfg.Delegate.Headers,
			HTTPClient: client,
		})
		if err != nil {
			return nil, err
		}
		del = remote
	}

	chainCfg := auth.ChainConfig{
		Delegate:         del,
		SecondaryEnabled: cfg.Secondary.Enabled,
		Credentials:      credentialOptions(cfg),
	}
	if cfg.Secondary.Enabled {
		issuer, err := jwt.New(jwt.Config{
			URL:        cfg.Secondary.URL,
			APIKey:     cfg.Secondary.APIKey,
			Issuer:     cfg.Secondary.Issuer,
			Audience:   cfg.Secondary.Audience,
			JWKSURL:    cfg.Secondary.JWKSURL,
			Timeout:    cfg.Secondary.Timeout,
			HTTPClient: client,
		})
		if err != nil {
			return nil, err
		}
		chainCfg.Secondary = issuer
	}

	chain, err := auth.NewChain(chainCfg)
	if err != nil {
		return nil, err
	}

	var limiter auth.RateLimiter
	if cfg.RateLimits.DefaultRPM > 0 || len(cfg.RateLimits.Tiers) > 0 {
		tiers := make(map[string]auth.TierConfig, len(cfg.RateLimits.Tiers))
		for name, rpm := range cfg.RateLimits.Tiers {
			tiers[name] = auth.TierConfig{RequestsPerMinute: rpm}
		}
		limiter = auth.NewInProcessLimiter(tiers, cfg.RateLimits.DefaultRPM)
	}

	return auth.NewGuard(chain, limiter, principals), nil
}

func parseKeyKind(s string) (auth.CredentialKind, error) {
	switch s {
	case "":
		return auth.KindNone, nil
	case "bearer":
		return auth.KindBearer, nil
	case "api_key":
		return auth.KindAPIKey, nil
	}
	return auth.KindNone, fmt.Errorf("unknown credential kind %q", s)
}

func buildRESTAdapter(cfg config.AdapterConfig, forward []string, client *http.Client) (*rest.Adapter, error) {
	conv, err := adapter.ParseConvention(cfg.Convention)
	if err != nil {
		return nil, fmt.Errorf("adapter %q: %w", cfg.ID, err)
	}
	tools := make([]rest.Tool, 0, len(cfg.Tools))
	for _, t := range cfg.Tools {
		var schema json.RawMessage
		if t.InputSchema != nil {
			schema, err = json.Marshal(t.InputSchema)
			if err != nil {
				return nil, fmt.Errorf("adapter %q tool %q: input_schema: %w", cfg.ID, t.Name, err)
			}
		}
		tools = append(tools, rest.Tool{
			Name:        t.Name,
			Description: t.Description,
			Category:    t.Category,
			Tags:        t.Tags,
			InputSchema: schema,
			Method:      t.Method,
			Paths:       t.Paths,
		})
	}
	return rest.New(rest.Config{
		ID:             cfg.ID,
		BaseURL:        cfg.BaseURL,
		Convention:     conv,
		Capabilities:   cfg.Capabilities,
		Timeout:        cfg.Timeout,
		Headers:        cfg.Headers,
		ForwardHeaders: forward,
		HealthPath:     cfg.HealthPath,
		HealthTimeout:  cfg.HealthTimeout,
		Tools:          tools,
		HTTPClient:     client,
	})
}

func buildMCPAdapter(cfg config.AdapterConfig, opts BuildOptions) (*mcpadapter.Adapter, error) {
	mc := mcpadapter.Config{
		ID:            cfg.ID,
		Capabilities:  cfg.Capabilities,
		Transport:     cfg.Transport,
		URL:           cfg.BaseURL,
		Headers:       cfg.Headers,
		Category:      cfg.Category,
		CallTimeout:   cfg.Timeout,
		HealthTimeout: cfg.HealthTimeout,
		Version:       opts.Version,
		HTTPClient:    opts.HTTPClient,
	}
	if o := cfg.OAuth; o != nil {
		mc.OAuth = &mcpadapter.OAuthConfig{
			TokenURL:     o.TokenURL,
			ClientID:     o.ClientID,
			ClientSecret: o.ClientSecret,
			Scopes:       o.Scopes,
		}
	}
	return mcpadapter.New(mc)
}

func buildDiscovery(cfg config.DiscoveryConfig, forward []string, client *http.Client) (*discovery.Adapter, error) {
	sources := make([]discovery.Source, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		format, err := discovery.ParseFormat(s.Format)
		if err != nil {
			return nil, fmt.Errorf("discovery source %q: %w", s.Location, err)
		}
		sources = append(sources, discovery.Source{Name: s.Name, Location: s.Location, Format: format})
	}
	return discovery.New(discovery.Config{
		ID:             cfg.ID,
		PlatformURL:    cfg.PlatformURL,
		FunctionPrefix: cfg.FunctionPrefix,
		Sources:        sources,
		Filter:         discovery.Filter{Include: cfg.Include, Exclude: cfg.Exclude},
		CacheTTL:       cfg.CacheTTL,
		RetryBackoff:   cfg.RetryBackoff,
		FetchTimeout:   cfg.FetchTimeout,
		InvokeTimeout:  cfg.InvokeTimeout,
		HealthTTL:      cfg.HealthTTL,
		HealthTimeout:  cfg.HealthTimeout,
		HealthPath:     cfg.HealthPath,
		APIKey:         cfg.APIKey,
		ForwardHeaders: forward,
		HTTPClient:     client,
	})
}

func buildProviders(cfg config.ProvidersConfig, client *http.Client) (*provider.Adapter, []io.Closer, error) {
	var (
		providers []provider.Provider
		closers   []io.Closer
	)
	for _, pc := range cfg.List {
		kind, err := provider.ParseKind(pc.Kind)
		if err != nil {
			return nil, closers, fmt.Errorf("provider %q: %w", pc.Name, err)
		}
		timeout := pc.Timeout
		if timeout == 0 {
			timeout = 120 * time.Second
		}
		switch pc.Type {
		case "", "openaicompat":
			c, err := openaicompat.New(openaicompat.Config{
				Name:        pc.Name,
				Kind:        kind,
				Description: pc.Description,
				BaseURL:     pc.BaseURL,
				APIKey:      pc.APIKey,
				Model:       pc.Model,
				Timeout:     timeout,
				HTTPClient:  client,
			})
			if err != nil {
				return nil, closers, fmt.Errorf("provider %q: %w", pc.Name, err)
			}
			providers = append(providers, c)
			closers = append(closers, c)
		case "openai":
			p, err := openai.New(openai.Config{
				Name:        pc.Name,
				Kind:        kind,
				Description: pc.Description,
				BaseURL:     pc.BaseURL,
				APIKey:      pc.APIKey,
				Model:       pc.Model,
				Timeout:     timeout,
				HTTPClient:  client,
			})
			if err != nil {
				return nil, closers, fmt.Errorf("provider %q: %w", pc.Name, err)
			}
			providers = append(providers, p)
		default:
			return nil, closers, fmt.Errorf("provider %q: unknown type %q", pc.Name, pc.Type)
		}
	}

	router, err := provider.NewRouter(provider.PolicyConfig{
		Managed:              cfg.Policy.Managed,
		Default:              cfg.Policy.Default,
		Fallback:             cfg.Policy.Fallback,
		AllowRequestOverride: cfg.Policy.AllowRequestOverride,
		Allowed:              cfg.Policy.Allowed,
		AutoLocal:            cfg.Policy.AutoLocal,
		AutoSecondary:        cfg.Policy.AutoSecondary,
	}, providers...)
	if err != nil {
		return nil, closers, fmt.Errorf("provider policy: %w", err)
	}
	return provider.NewAdapter(cfg.ID, router), closers, nil
}
