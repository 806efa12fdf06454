package storage

import (
	"context"
	"fmt"
	"time"
)

// Principal is the gateway-side record for a verified subject.
type Principal struct {
	// Subject matches the principal id produced by identity verification.
	Subject string `json:"subject" yaml:"subject"`

	// TenantID scopes the caller for downstream adapters.
	TenantID string `json:"tenant_id,omitempty" yaml:"tenant_id"`

	// ServiceTier selects the rate-limit tier. Empty keeps the tier
	// reported by the verifier.
	ServiceTier string `json:"service_tier,omitempty" yaml:"service_tier"`

	// Disabled principals are rejected with 403 even when their
	// credential verifies.
	Disabled bool `json:"disabled,omitempty" yaml:"disabled"`

	UpdatedAt time.Time `json:"updated_at,omitzero" yaml:"-"`
}

// Validate checks that the principal can be stored.
func (p Principal) Validate() error {
	if p.Subject == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidPrincipal)
	}
	return nil
}

// PrincipalStore looks up principals by subject.
type PrincipalStore interface {
	// LookupPrincipal returns ErrNotFound when the subject is unknown.
	LookupPrincipal(ctx context.Context, subject string) (*Principal, error)

	// HealthCheck reports whether the backing store is reachable.
	HealthCheck(ctx context.Context) error

	Close() error
}
