package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "TOOLGATE_"

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, TOOLGATE_CONFIG env, ./config.yaml, /etc/toolgate/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. TOOLGATE_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/toolgate/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv(EnvPrefix + "CONFIG"); envPath != "" {
		return envPath
	}
	candidates := []string{
		"config.yaml",
		"/etc/toolgate/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps TOOLGATE_* environment variables onto config
// fields. List-valued settings take JSON arrays. A malformed value is an
// error rather than silently ignored.
func applyEnvOverrides(cfg *Config) error {
	env := envReader{}

	env.int("PORT", &cfg.Server.Port)
	env.bool("REQUIRE_AUTH", &cfg.Gateway.RequireAuth)
	env.bool("EXPOSE_INTERNALS", &cfg.Gateway.ExposeInternals)
	env.list("CORS_ORIGIN_SUFFIXES", &cfg.Gateway.CORSOriginSuffixes)
	env.list("FORWARD_HEADERS", &cfg.Gateway.ForwardHeaders)

	env.str("DELEGATE_TYPE", &cfg.Auth.Delegate.Type)
	env.str("DELEGATE_URL", &cfg.Auth.Delegate.URL)
	env.duration("DELEGATE_TIMEOUT", &cfg.Auth.Delegate.Timeout)
	env.json("API_KEYS", &cfg.Auth.Delegate.APIKeys)
	env.list("API_KEY_PREFIXES", &cfg.Auth.APIKeyPrefixes)

	env.bool("SECONDARY_ENABLED", &cfg.Auth.Secondary.Enabled)
	env.str("SECONDARY_URL", &cfg.Auth.Secondary.URL)
	env.str("SECONDARY_API_KEY", &cfg.Auth.Secondary.APIKey)
	env.str("SECONDARY_ISSUER", &cfg.Auth.Secondary.Issuer)
	env.str("SECONDARY_JWKS_URL", &cfg.Auth.Secondary.JWKSURL)

	env.str("STORAGE", &cfg.Storage.Type)
	env.str("POSTGRES_DSN", &cfg.Storage.Postgres.DSN)

	env.bool("DISCOVERY_ENABLED", &cfg.Discovery.Enabled)
	env.str("PLATFORM_URL", &cfg.Discovery.PlatformURL)
	env.str("PLATFORM_API_KEY", &cfg.Discovery.APIKey)
	env.duration("DISCOVERY_CACHE_TTL", &cfg.Discovery.CacheTTL)
	env.json("DISCOVERY_SOURCES", &cfg.Discovery.Sources)

	env.str("PROVIDER_MANAGED", &cfg.Providers.Policy.Managed)
	env.str("PROVIDER_DEFAULT", &cfg.Providers.Policy.Default)
	env.str("PROVIDER_FALLBACK", &cfg.Providers.Policy.Fallback)

	env.bool("METRICS_ENABLED", &cfg.Observability.Metrics.Enabled)

	return env.err()
}

// envReader collects parse failures so every bad variable is reported.
type envReader struct {
	errs []string
}

func (e *envReader) lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (e *envReader) fail(name string, err error) {
	e.errs = append(e.errs, fmt.Sprintf("%s%s: %v", EnvPrefix, name, err))
}

func (e *envReader) str(name string, dst *string) {
	if v, ok := e.lookup(name); ok {
		*dst = v
	}
}

func (e *envReader) int(name string, dst *int) {
	if v, ok := e.lookup(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(name, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) bool(name string, dst *bool) {
	if v, ok := e.lookup(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(name, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) duration(name string, dst *time.Duration) {
	if v, ok := e.lookup(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(name, err)
			return
		}
		*dst = d
	}
}

func (e *envReader) list(name string, dst *[]string) {
	e.json(name, dst)
}

func (e *envReader) json(name string, dst any) {
	if v, ok := e.lookup(name); ok {
		if err := json.Unmarshal([]byte(v), dst); err != nil {
			e.fail(name, fmt.Errorf("expected JSON: %w", err))
		}
	}
}

func (e *envReader) err() error {
	if len(e.errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s", strings.Join(e.errs, "; "))
}

// fileRef binds a _file setting to the value field it populates.
type fileRef struct {
	path string
	file string
	dst  *string
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	refs := []fileRef{
		{"storage.postgres.dsn_file", cfg.Storage.Postgres.DSNFile, &cfg.Storage.Postgres.DSN},
		{"auth.secondary.api_key_file", cfg.Auth.Secondary.APIKeyFile, &cfg.Auth.Secondary.APIKey},
		{"discovery.api_key_file", cfg.Discovery.APIKeyFile, &cfg.Discovery.APIKey},
	}
	for i := range cfg.Auth.Delegate.APIKeys {
		k := &cfg.Auth.Delegate.APIKeys[i]
		refs = append(refs, fileRef{fmt.Sprintf("auth.delegate.api_keys[%d].key_file", i), k.KeyFile, &k.Key})
	}
	for i := range cfg.Adapters {
		if o := cfg.Adapters[i].OAuth; o != nil {
			refs = append(refs, fileRef{fmt.Sprintf("adapters[%d].oauth.client_secret_file", i), o.ClientSecretFile, &o.ClientSecret})
		}
	}
	for i := range cfg.Providers.List {
		p := &cfg.Providers.List[i]
		refs = append(refs, fileRef{fmt.Sprintf("providers.list[%d].api_key_file", i), p.APIKeyFile, &p.APIKey})
	}

	for _, r := range refs {
		if r.file == "" || *r.dst != "" {
			continue
		}
		val, err := readSecretFile(r.file)
		if err != nil {
			return fmt.Errorf("%s: %w", r.path, err)
		}
		*r.dst = val
	}
	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
