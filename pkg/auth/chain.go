package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rhuss/toolgate/pkg/debug"
	"github.com/rhuss/toolgate/pkg/observability"
)

// VerificationResult is produced fresh for every request.
type VerificationResult struct {
	OK        bool   `json:"ok"`
	Method    Method `json:"method"`
	Principal string `json:"principal,omitempty"`
	Status    int    `json:"status"`
	Error     string `json:"error,omitempty"`

	// Identity is set when OK is true.
	Identity *Identity `json:"-"`

	// Credential is the kind of credential that was presented.
	Credential CredentialKind `json:"-"`
}

// Retryable reports whether the failure came from a verifier that could
// not evaluate the credential, as opposed to a definitive rejection.
func (r VerificationResult) Retryable() bool {
	return !r.OK && r.Status >= http.StatusInternalServerError
}

// ChainConfig configures a Chain.
type ChainConfig struct {
	// Delegate is required.
	Delegate Delegate

	// Secondary is consulted only when SecondaryEnabled is true.
	Secondary        Secondary
	SecondaryEnabled bool

	Credentials CredentialOptions
}

// Chain runs the verification state machine.
type Chain struct {
	delegate         Delegate
	secondary        Secondary
	secondaryEnabled bool
	credentials      CredentialOptions
}

// NewChain validates the configuration and returns a Chain.
func NewChain(cfg ChainConfig) (*Chain, error) {
	if cfg.Delegate == nil {
		return nil, errors.New("auth chain: delegate is required")
	}
	if cfg.SecondaryEnabled && cfg.Secondary == nil {
		return nil, errors.New("auth chain: secondary issuer enabled but not configured")
	}
	return &Chain{
		delegate:         cfg.Delegate,
		secondary:        cfg.Secondary,
		secondaryEnabled: cfg.SecondaryEnabled,
		credentials:      cfg.Credentials.withDefaults(),
	}, nil
}

// Verify classifies the credential in headers and verifies it. Steps run
// strictly in order; the secondary issuer is never called before the
// delegate has answered.
func (c *Chain) Verify(ctx context.Context, headers http.Header) VerificationResult {
	cred := ExtractCredential(headers, c.credentials)
	res := c.verify(ctx, cred)
	res.Credential = cred.Kind

	outcome := "ok"
	switch {
	case cred.Kind == KindNone:
		outcome = "missing"
	case res.Retryable():
		outcome = "unavailable"
	case !res.OK:
		outcome = "rejected"
	}
	observability.VerificationsTotal.WithLabelValues(string(res.Method), outcome).Inc()

	debug.Log("auth", "verification",
		"method", res.Method,
		"credential", cred.Kind,
		"reclassified", cred.Reclassified,
		"ok", res.OK,
		"status", res.Status,
	)
	return res
}

func (c *Chain) verify(ctx context.Context, cred Credential) VerificationResult {
	if cred.Kind == KindNone {
		return failed(MethodNone, http.StatusUnauthorized, ErrNoCredential)
	}

	method := MethodBearerDelegate
	if cred.Kind == KindAPIKey {
		method = MethodAPIKeyDelegate
	}

	v := c.delegate.Verify(ctx, cred)
	switch v.Outcome {
	case Verified:
		return verified(method, v.Identity, cred.Kind)

	case Unavailable:
		// The delegate never evaluated the credential; the secondary
		// issuer is not a substitute for it.
		slog.Warn("delegate verification unavailable", "method", method, "error", v.Err)
		return failed(method, unavailableStatus(v.Status), v.Err)
	}

	// Terminal rejection. Only bearer tokens shaped like secondary-issuer
	// tokens may take the single fallback hop.
	if cred.Kind != KindBearer || !c.secondaryEnabled || !c.secondary.Matches(cred.Value) {
		return failed(method, rejectedStatus(v.Status), v.Err)
	}

	debug.Log("auth", "delegate rejected token, trying secondary issuer", "status", v.Status)

	sv := c.secondary.Verify(ctx, cred.Value)
	if sv.Outcome == Verified {
		return verified(MethodSecondaryJWT, sv.Identity, cred.Kind)
	}

	slog.Warn("secondary issuer did not verify token",
		"outcome", sv.Outcome,
		"status", sv.Status,
		"error", sv.Err,
	)
	// The delegate's answer is the one reported to the caller.
	return failed(method, rejectedStatus(v.Status), v.Err)
}

func verified(method Method, id *Identity, kind CredentialKind) VerificationResult {
	if id == nil || id.Subject == "" {
		slog.Error("verifier returned identity with empty subject", "method", method)
		return failed(method, http.StatusBadGateway, fmt.Errorf("%s: %w", method, ErrNoPrincipal))
	}
	if kind == KindAPIKey {
		id.ServiceTier = TierAPIKey
	}
	return VerificationResult{
		OK:        true,
		Method:    method,
		Principal: id.Subject,
		Status:    http.StatusOK,
		Identity:  id,
	}
}

func failed(method Method, status int, err error) VerificationResult {
	if err == nil {
		err = ErrUnauthenticated
	}
	return VerificationResult{
		Method: method,
		Status: status,
		Error:  err.Error(),
	}
}

func rejectedStatus(status int) int {
	if status >= 400 && status < 500 {
		return status
	}
	return http.StatusUnauthorized
}

func unavailableStatus(status int) int {
	if status >= 500 {
		return status
	}
	return http.StatusServiceUnavailable
}
