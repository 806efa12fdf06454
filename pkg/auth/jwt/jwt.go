// Package jwt implements the secondary token issuer. A token qualifies
// when it is a three-segment JWT (optionally with a matching iss claim);
// it is then checked for expiry or, when a JWKS URL is configured, for a
// valid RSA signature, and finally confirmed against the issuer's
// userinfo endpoint.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/toolgate/pkg/auth"
	"github.com/rhuss/toolgate/pkg/debug"
	"github.com/rhuss/toolgate/pkg/upstream"
)

// Config holds the secondary issuer configuration.
type Config struct {
	// URL is the issuer base URL; userinfo is fetched from URL + UserInfoPath.
	URL string

	// APIKey is sent as the "apikey" header on userinfo calls.
	APIKey string

	// Issuer is the expected iss claim. If empty, any issuer matches.
	Issuer string

	// Audience is the expected aud claim, checked only with JWKSURL.
	Audience string

	// JWKSURL enables local signature verification before userinfo.
	JWKSURL string

	// UserInfoPath defaults to "/userinfo".
	UserInfoPath string

	// TenantClaim is copied into tenant_id metadata when the userinfo
	// response does not carry one. Default: "tenant_id".
	TenantClaim string

	// Timeout bounds the userinfo and JWKS calls (default: 5s).
	Timeout time.Duration

	// CacheTTL controls how long JWKS keys are cached. Default: 1 hour.
	CacheTTL time.Duration

	// HTTPClient allows injecting a custom HTTP client (useful for testing).
	HTTPClient *http.Client
}

func (c *Config) applyDefaults() {
	if c.UserInfoPath == "" {
		c.UserInfoPath = "/userinfo"
	}
	if c.TenantClaim == "" {
		c.TenantClaim = "tenant_id"
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Hour
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
}

// Issuer is an auth.Secondary backed by a JWT issuer.
type Issuer struct {
	config Config
	client *upstream.Client
	parser *jwtlib.Parser
	jwks   *jwksCache
}

var _ auth.Secondary = (*Issuer)(nil)

// New creates a secondary issuer verifier.
func New(cfg Config) (*Issuer, error) {
	if cfg.URL == "" {
		return nil, errors.New("secondary issuer: URL is required")
	}
	cfg.applyDefaults()

	iss := &Issuer{
		config: cfg,
		client: upstream.New(upstream.Config{
			BaseURL:    cfg.URL,
			Timeout:    cfg.Timeout,
			HTTPClient: cfg.HTTPClient,
		}),
		parser: jwtlib.NewParser(),
	}
	if cfg.JWKSURL != "" {
		iss.jwks = newJWKSCache(cfg.JWKSURL, cfg.CacheTTL, cfg.HTTPClient)
	}
	return iss, nil
}

// Matches reports whether token is a structurally valid JWT from the
// configured issuer. It does not verify the signature.
func (i *Issuer) Matches(token string) bool {
	if strings.Count(token, ".") != 2 {
		return false
	}
	claims := jwtlib.MapClaims{}
	if _, _, err := i.parser.ParseUnverified(token, claims); err != nil {
		return false
	}
	if i.config.Issuer == "" {
		return true
	}
	iss, _ := claims.GetIssuer()
	return iss == i.config.Issuer
}

// Verify checks the token locally and then against the userinfo endpoint.
func (i *Issuer) Verify(ctx context.Context, token string) auth.Verdict {
	claims, err := i.checkToken(ctx, token)
	if err != nil {
		debug.Log("auth", "secondary token check failed", "error", err)
		return auth.Verdict{
			Outcome: auth.Rejected,
			Status:  http.StatusUnauthorized,
			Err:     fmt.Errorf("%w: %w", auth.ErrUnauthenticated, err),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, i.config.Timeout)
	defer cancel()

	headers := map[string]string{"Authorization": "Bearer " + token}
	if i.config.APIKey != "" {
		headers["apikey"] = i.config.APIKey
	}
	resp, err := i.client.Do(ctx, upstream.Request{
		Method:  http.MethodGet,
		Path:    i.config.UserInfoPath,
		Headers: headers,
	})
	if err != nil {
		return auth.VerdictFromError(err)
	}

	id, err := auth.ParseUserDocument(resp.Body)
	if err != nil {
		return auth.Verdict{
			Outcome: auth.Unavailable,
			Status:  http.StatusBadGateway,
			Err:     fmt.Errorf("userinfo response: %w", err),
		}
	}

	if sub, _ := claims.GetSubject(); sub != "" && sub != id.Subject {
		return auth.Verdict{
			Outcome: auth.Rejected,
			Status:  http.StatusUnauthorized,
			Err:     fmt.Errorf("%w: userinfo subject does not match token", auth.ErrUnauthenticated),
		}
	}
	if id.TenantID() == "" {
		if tenant, ok := claims[i.config.TenantClaim].(string); ok && tenant != "" {
			id.Metadata["tenant_id"] = tenant
		}
	}
	return auth.Verdict{Outcome: auth.Verified, Identity: id, Status: resp.Status}
}

// checkToken validates the signature when JWKS is configured, otherwise
// only the registered time-based claims.
func (i *Issuer) checkToken(ctx context.Context, token string) (jwtlib.MapClaims, error) {
	if i.jwks == nil {
		claims := jwtlib.MapClaims{}
		if _, _, err := i.parser.ParseUnverified(token, claims); err != nil {
			return nil, fmt.Errorf("invalid JWT: %w", err)
		}
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil && time.Now().After(exp.Time) {
			return nil, jwtlib.ErrTokenExpired
		}
		return claims, nil
	}

	parsed, err := jwtlib.Parse(token, func(t *jwtlib.Token) (any, error) {
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("token missing kid header")
		}
		return i.jwks.getKey(ctx, kid)
	}, i.parserOptions()...)
	if err != nil {
		slog.Debug("secondary JWT validation failed", "error", err)
		return nil, fmt.Errorf("invalid JWT: %w", err)
	}

	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid JWT claims")
	}
	return claims, nil
}

func (i *Issuer) parserOptions() []jwtlib.ParserOption {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
	}
	if i.config.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(i.config.Issuer))
	}
	if i.config.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(i.config.Audience))
	}
	return opts
}
