package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rhuss/toolgate/pkg/api"
	"github.com/rhuss/toolgate/pkg/observability"
	"github.com/rhuss/toolgate/pkg/storage"
)

// Guard is the single admission path for protected requests: verify the
// credential, apply the principal record, then enforce the tier limit.
type Guard struct {
	chain      *Chain
	limiter    RateLimiter
	principals storage.PrincipalStore
}

// NewGuard creates a Guard. limiter and principals are optional.
func NewGuard(chain *Chain, limiter RateLimiter, principals storage.PrincipalStore) *Guard {
	return &Guard{chain: chain, limiter: limiter, principals: principals}
}

// Admit returns the verified identity or an *api.APIError describing why
// the request is denied. Denial messages are generic.
func (g *Guard) Admit(ctx context.Context, headers http.Header) (*Identity, *api.APIError) {
	res := g.chain.Verify(ctx, headers)
	if !res.OK {
		slog.Warn("verification failed",
			"method", res.Method,
			"status", res.Status,
			"error", res.Error,
		)
		if res.Retryable() {
			return nil, api.NewVerificationFailedError(http.StatusServiceUnavailable)
		}
		return nil, api.NewVerificationFailedError(http.StatusUnauthorized)
	}

	id := res.Identity
	if apiErr := g.applyPrincipal(ctx, id); apiErr != nil {
		return nil, apiErr
	}

	if g.limiter != nil {
		if err := g.limiter.Allow(ctx, id); err != nil {
			tier := TierOf(id)
			slog.Warn("rate limit exceeded", "subject", id.Subject, "tier", tier)
			observability.RateLimitRejectedTotal.WithLabelValues(tier).Inc()
			return nil, api.NewTooManyRequestsError("rate limit exceeded")
		}
	}

	return id, nil
}

// applyPrincipal overlays the stored principal on the verified identity.
// Unknown principals are admitted unchanged; disabled ones are denied.
func (g *Guard) applyPrincipal(ctx context.Context, id *Identity) *api.APIError {
	if g.principals == nil {
		return nil
	}

	p, err := g.principals.LookupPrincipal(ctx, id.Subject)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		slog.Error("principal lookup failed", "subject", id.Subject, "error", err)
		return api.NewServerError("principal lookup failed")
	}

	if p.Disabled {
		slog.Warn("disabled principal denied", "subject", id.Subject)
		return api.NewForbiddenError("access denied")
	}

	if p.TenantID != "" {
		if id.Metadata == nil {
			id.Metadata = make(map[string]string)
		}
		id.Metadata["tenant_id"] = p.TenantID
	}
	// API-key credentials stay on the api_key tier.
	if p.ServiceTier != "" && id.ServiceTier != TierAPIKey {
		id.ServiceTier = p.ServiceTier
	}
	return nil
}

// WithIdentity stores the identity and its tenant in ctx.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return storage.WithTenant(SetIdentity(ctx, id), id.TenantID())
}
