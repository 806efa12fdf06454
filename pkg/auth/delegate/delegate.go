// Package delegate verifies credentials against an external verification
// service. Tokens are posted to /verify-token and API keys to
// /verify-api-key; the credential travels in both the header and the body
// so that a proxy stripping one still leaves the other.
package delegate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rhuss/toolgate/pkg/auth"
	"github.com/rhuss/toolgate/pkg/upstream"
)

// Config holds the remote delegate configuration.
type Config struct {
	// BaseURL of the verification service (required).
	BaseURL string

	// Timeout bounds each verification call (default: 5s).
	Timeout time.Duration

	// TokenPath and APIKeyPath default to /verify-token and /verify-api-key.
	TokenPath  string
	APIKeyPath string

	// Headers are sent with every call (e.g. a service key).
	Headers map[string]string

	// HTTPClient allows injecting a custom HTTP client (useful for testing).
	HTTPClient *http.Client
}

func (c *Config) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.TokenPath == "" {
		c.TokenPath = "/verify-token"
	}
	if c.APIKeyPath == "" {
		c.APIKeyPath = "/verify-api-key"
	}
}

// Remote is an auth.Delegate backed by an HTTP verification service.
type Remote struct {
	cfg    Config
	client *upstream.Client
}

var _ auth.Delegate = (*Remote)(nil)

// New creates a remote delegate.
func New(cfg Config) (*Remote, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("delegate: base URL is required")
	}
	cfg.applyDefaults()

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Remote{
		cfg: cfg,
		client: upstream.New(upstream.Config{
			BaseURL:    cfg.BaseURL,
			Timeout:    cfg.Timeout,
			Headers:    cfg.Headers,
			HTTPClient: hc,
		}),
	}, nil
}

// Verify posts the credential to the endpoint matching its kind.
func (d *Remote) Verify(ctx context.Context, cred auth.Credential) auth.Verdict {
	req := upstream.Request{
		Method:  http.MethodPost,
		Headers: cred.Headers,
	}
	switch cred.Kind {
	case auth.KindBearer:
		req.Path = d.cfg.TokenPath
		req.Body = map[string]string{"token": cred.Value}
	case auth.KindAPIKey:
		req.Path = d.cfg.APIKeyPath
		req.Body = map[string]string{"api_key": cred.Value}
	default:
		return auth.Verdict{Outcome: auth.Rejected, Status: http.StatusUnauthorized, Err: auth.ErrNoCredential}
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	resp, err := d.client.Do(ctx, req)
	if err != nil {
		return auth.VerdictFromError(err)
	}

	id, err := auth.ParseUserDocument(resp.Body)
	if err != nil {
		return auth.Verdict{
			Outcome: auth.Unavailable,
			Status:  http.StatusBadGateway,
			Err:     fmt.Errorf("delegate response: %w", err),
		}
	}
	return auth.Verdict{Outcome: auth.Verified, Identity: id, Status: resp.Status}
}
