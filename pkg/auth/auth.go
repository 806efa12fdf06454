package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rhuss/toolgate/pkg/upstream"
)

// Method names the verification step that produced a result.
type Method string

const (
	MethodBearerDelegate Method = "bearer_delegate"
	MethodAPIKeyDelegate Method = "api_key_delegate"
	MethodSecondaryJWT   Method = "secondary_jwt"
	MethodNone           Method = "none"
)

// TierAPIKey is the rate-limit tier applied to API-key credentials.
const TierAPIKey = "api_key"

// Outcome is the three-way answer of one verification step.
type Outcome int

const (
	// Verified means the credential is valid. The chain stops.
	Verified Outcome = iota

	// Rejected is a terminal answer: the verifier evaluated the credential
	// and refused it (401/403).
	Rejected

	// Unavailable means the verifier could not evaluate the credential
	// (5xx, timeout, network error).
	Unavailable
)

func (o Outcome) String() string {
	switch o {
	case Verified:
		return "verified"
	case Rejected:
		return "rejected"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Verdict is the result of one verification step.
type Verdict struct {
	Outcome  Outcome
	Identity *Identity // populated only when Outcome == Verified
	Status   int       // HTTP status reported by the verifier
	Err      error
}

// Identity represents a verified caller.
type Identity struct {
	// Subject is the principal id (required, non-empty).
	Subject string

	// ServiceTier determines rate limits.
	ServiceTier string

	// Scopes lists the authorization scopes granted.
	Scopes []string

	// Metadata carries verifier-specific data.
	// The key "tenant_id" is used for tenant scoping.
	Metadata map[string]string
}

// TenantID returns the tenant identifier from metadata, or empty string.
func (id *Identity) TenantID() string {
	if id == nil || id.Metadata == nil {
		return ""
	}
	return id.Metadata["tenant_id"]
}

// Delegate is the authoritative verifier for both credential kinds.
type Delegate interface {
	Verify(ctx context.Context, cred Credential) Verdict
}

// Secondary is an independently trusted token issuer consulted after a
// terminal delegate rejection.
type Secondary interface {
	// Matches reports whether the token is shaped like one this issuer
	// would have minted. It must not perform I/O.
	Matches(token string) bool

	// Verify validates the token against the issuer.
	Verify(ctx context.Context, token string) Verdict
}

// Sentinel errors.
var (
	ErrUnauthenticated     = errors.New("authentication required")
	ErrNoCredential        = errors.New("no credential presented")
	ErrForbidden           = errors.New("access denied")
	ErrTooManyRequests     = errors.New("rate limit exceeded")
	ErrVerifierUnavailable = errors.New("verifier unavailable")
)

// VerdictFromError maps an upstream call failure to a verdict. Only 401
// and 403 are terminal rejections carrying the verifier's message; any
// other status (429, 404, 5xx...) or transport failure means the verifier
// did not evaluate the credential.
func VerdictFromError(err error) Verdict {
	var se *upstream.StatusError
	if errors.As(err, &se) {
		if se.Status == http.StatusUnauthorized || se.Status == http.StatusForbidden {
			return Verdict{
				Outcome: Rejected,
				Status:  se.Status,
				Err:     fmt.Errorf("%w: %s", ErrUnauthenticated, se.Message()),
			}
		}
		return Verdict{
			Outcome: Unavailable,
			Status:  se.Status,
			Err:     fmt.Errorf("%w: status %d", ErrVerifierUnavailable, se.Status),
		}
	}
	return Verdict{
		Outcome: Unavailable,
		Status:  http.StatusServiceUnavailable,
		Err:     fmt.Errorf("%w: %w", ErrVerifierUnavailable, err),
	}
}
