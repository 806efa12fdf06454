// Package config provides unified configuration for the toolgate gateway.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (TOOLGATE_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
//
// The result is parsed once at startup; nothing here is re-read at
// request time.
package config

import "time"

// Config holds all configuration for the gateway.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Gateway       GatewayConfig       `yaml:"gateway"`
	Auth          AuthConfig          `yaml:"auth"`
	Storage       StorageConfig       `yaml:"storage"`
	Adapters      []AdapterConfig     `yaml:"adapters"`
	Discovery     DiscoveryConfig     `yaml:"discovery"`
	Providers     ProvidersConfig     `yaml:"providers"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 120s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
	MaxBodySize     int64         `yaml:"max_body_size"`    // default: 1 MiB
}

// GatewayConfig holds dispatch and HTTP surface settings.
type GatewayConfig struct {
	// RequireAuth gates every non-public tool behind verification.
	RequireAuth bool `yaml:"require_auth"` // default: true

	// ExposeInternals includes upstream bodies and raw errors in
	// responses. Development only.
	ExposeInternals bool `yaml:"expose_internals"`

	// CORSOriginSuffixes allow cross-origin callers whose Origin host
	// ends with one of these suffixes (e.g. ".example.com").
	CORSOriginSuffixes []string `yaml:"cors_origin_suffixes"`

	// ForwardHeaders lists inbound headers passed to modern adapters.
	ForwardHeaders []string `yaml:"forward_headers"`

	// BypassEndpoints skip authentication on protected routes (operator
	// endpoints and metrics). Entries ending in "/" match by prefix.
	BypassEndpoints []string `yaml:"bypass_endpoints"`

	// MCP exposes the tool catalog as an MCP server.
	MCP MCPConfig `yaml:"mcp"`
}

// MCPConfig holds the MCP endpoint settings.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/mcp"
}

// AuthConfig holds identity verification settings.
type AuthConfig struct {
	Delegate  DelegateConfig  `yaml:"delegate"`
	Secondary SecondaryConfig `yaml:"secondary"`

	// APIKeyPrefixes reclassify bearer tokens as API keys.
	APIKeyPrefixes []string `yaml:"api_key_prefixes"` // default: ["sk_", "ak_"]

	// APIKeyHeader is the explicit API-key header.
	APIKeyHeader string `yaml:"api_key_header"` // default: "X-API-Key"

	RateLimits RateLimitConfig `yaml:"rate_limits"`
}

// DelegateConfig configures the primary verifier.
type DelegateConfig struct {
	Type    string            `yaml:"type"` // "remote" or "static", default: "remote"
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"` // default: 5s
	Headers map[string]string `yaml:"headers"`
	APIKeys []APIKeyConfig    `yaml:"api_keys"` // for type=static
}

// APIKeyConfig describes a single static credential.
type APIKeyConfig struct {
	Key         string `yaml:"key" json:"key"`
	KeyFile     string `yaml:"key_file" json:"key_file"`
	Kind        string `yaml:"kind" json:"kind"` // "", "bearer" or "api_key"
	Subject     string `yaml:"subject" json:"subject"`
	TenantID    string `yaml:"tenant_id" json:"tenant_id"`
	ServiceTier string `yaml:"service_tier" json:"service_tier"`
}

// SecondaryConfig configures the secondary token issuer.
type SecondaryConfig struct {
	Enabled    bool          `yaml:"enabled"`
	URL        string        `yaml:"url"`
	APIKey     string        `yaml:"api_key"`
	APIKeyFile string        `yaml:"api_key_file"`
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	JWKSURL    string        `yaml:"jwks_url"`
	Timeout    time.Duration `yaml:"timeout"` // default: 5s
}

// RateLimitConfig holds per-tier request limits.
type RateLimitConfig struct {
	DefaultRPM int            `yaml:"default_rpm"` // 0 = unlimited
	Tiers      map[string]int `yaml:"tiers"`       // tier -> requests per minute
}

// StorageConfig selects the principal store.
type StorageConfig struct {
	Type       string            `yaml:"type"` // "none", "memory" or "postgres", default: "none"
	Principals []PrincipalConfig `yaml:"principals"`
	Postgres   PostgresConfig    `yaml:"postgres"`
}

// PrincipalConfig is one principal for the memory store.
type PrincipalConfig struct {
	Subject     string `yaml:"subject"`
	TenantID    string `yaml:"tenant_id"`
	ServiceTier string `yaml:"service_tier"`
	Disabled    bool   `yaml:"disabled"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`
	MaxConns       int32  `yaml:"max_conns"` // default: 10
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

// AdapterConfig describes one configured adapter: a REST service with
// declared tools, or an MCP server whose tools are listed at runtime.
type AdapterConfig struct {
	ID            string            `yaml:"id"`
	Type          string            `yaml:"type"` // "rest" (default) or "mcp"
	BaseURL       string            `yaml:"base_url"`
	Convention    string            `yaml:"convention"` // "legacy" or "modern", default: "modern"; mcp adapters are always legacy
	Capabilities  []string          `yaml:"capabilities"`
	Timeout       time.Duration     `yaml:"timeout"`
	Headers       map[string]string `yaml:"headers"`
	HealthPath    string            `yaml:"health_path"`
	HealthTimeout time.Duration     `yaml:"health_timeout"`
	Tools         []ToolConfig      `yaml:"tools"`

	// MCP-only settings. BaseURL is the server endpoint.
	Transport string       `yaml:"transport"` // "streamable-http" (default) or "sse"
	Category  string       `yaml:"category"`
	OAuth     *OAuthConfig `yaml:"oauth"`
}

// OAuthConfig configures the client_credentials grant for an MCP adapter.
type OAuthConfig struct {
	TokenURL         string   `yaml:"token_url"`
	ClientID         string   `yaml:"client_id"`
	ClientSecret     string   `yaml:"client_secret"`
	ClientSecretFile string   `yaml:"client_secret_file"`
	Scopes           []string `yaml:"scopes"`
}

// ToolConfig describes one REST tool.
type ToolConfig struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Category    string         `yaml:"category"`
	Method      string         `yaml:"method"`
	Paths       []string       `yaml:"paths"`
	Tags        []string       `yaml:"tags"`
	InputSchema map[string]any `yaml:"input_schema"`
}

// DiscoveryConfig configures the function auto-discovery adapter.
type DiscoveryConfig struct {
	Enabled        bool           `yaml:"enabled"`
	ID             string         `yaml:"id"` // default: "functions"
	PlatformURL    string         `yaml:"platform_url"`
	FunctionPrefix string         `yaml:"function_prefix"` // default: "/functions/v1/"
	Sources        []SourceConfig `yaml:"sources"`
	CacheTTL       time.Duration  `yaml:"cache_ttl"`      // default: 5m
	RetryBackoff   time.Duration  `yaml:"retry_backoff"`  // default: 30s
	FetchTimeout   time.Duration  `yaml:"fetch_timeout"`  // default: 10s
	InvokeTimeout  time.Duration  `yaml:"invoke_timeout"` // default: 30s
	HealthTTL      time.Duration  `yaml:"health_ttl"`     // default: 30s
	HealthTimeout  time.Duration  `yaml:"health_timeout"` // default: 3s
	HealthPath     string         `yaml:"health_path"`
	Include        []string       `yaml:"include"`
	Exclude        []string       `yaml:"exclude"`
	APIKey         string         `yaml:"api_key"`
	APIKeyFile     string         `yaml:"api_key_file"`
}

// SourceConfig is one documentation source.
type SourceConfig struct {
	Name     string `yaml:"name" json:"name"`
	Location string `yaml:"location" json:"location"`
	Format   string `yaml:"format" json:"format"` // "auto", "markdown" or "html"
}

// ProvidersConfig configures the chat provider router.
type ProvidersConfig struct {
	Enabled bool             `yaml:"enabled"`
	ID      string           `yaml:"id"` // adapter id, default: "ai"
	List    []ProviderConfig `yaml:"list"`
	Policy  PolicyConfig     `yaml:"policy"`
}

// ProviderConfig describes one chat backend.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Kind        string        `yaml:"kind"` // "local" or "remote"
	Type        string        `yaml:"type"` // "openaicompat" or "openai"
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	APIKeyFile  string        `yaml:"api_key_file"`
	Model       string        `yaml:"model"`
	Description string        `yaml:"description"`
	Timeout     time.Duration `yaml:"timeout"`
}

// PolicyConfig is the operator routing policy.
type PolicyConfig struct {
	Managed              string   `yaml:"managed"`
	Default              string   `yaml:"default"` // default: "auto"
	Fallback             string   `yaml:"fallback"`
	Allowed              []string `yaml:"allowed"`
	AllowRequestOverride bool     `yaml:"allow_request_override"`
	AutoLocal            string   `yaml:"auto_local"`
	AutoSecondary        string   `yaml:"auto_secondary"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig configures the default logger. TOOLGATE_LOG_LEVEL,
// TOOLGATE_LOG_FORMAT and TOOLGATE_DEBUG override these values.
type LoggingConfig struct {
	Level  string   `yaml:"level"`  // default: "INFO"
	Format string   `yaml:"format"` // "text" (default) or "json"
	Debug  []string `yaml:"debug"`  // debug categories, "all" for every one
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodySize:     1 << 20,
		},
		Gateway: GatewayConfig{
			RequireAuth:     true,
			ForwardHeaders:  []string{"Authorization", "X-API-Key", "apikey"},
			BypassEndpoints: []string{"/healthz", "/readyz", "/metrics"},
			MCP: MCPConfig{
				Enabled: true,
				Path:    "/mcp",
			},
		},
		Auth: AuthConfig{
			Delegate: DelegateConfig{
				Type:    "remote",
				Timeout: 5 * time.Second,
			},
			Secondary: SecondaryConfig{
				Timeout: 5 * time.Second,
			},
			APIKeyPrefixes: []string{"sk_", "ak_"},
			APIKeyHeader:   "X-API-Key",
		},
		Storage: StorageConfig{
			Type: "none",
			Postgres: PostgresConfig{
				MaxConns: 10,
			},
		},
		Discovery: DiscoveryConfig{
			ID:             "functions",
			FunctionPrefix: "/functions/v1/",
			CacheTTL:       5 * time.Minute,
			RetryBackoff:   30 * time.Second,
			FetchTimeout:   10 * time.Second,
			InvokeTimeout:  30 * time.Second,
			HealthTTL:      30 * time.Second,
			HealthTimeout:  3 * time.Second,
		},
		Providers: ProvidersConfig{
			ID: "ai",
			Policy: PolicyConfig{
				Default: "auto",
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
			Logging: LoggingConfig{
				Level:  "INFO",
				Format: "text",
			},
		},
	}
}
