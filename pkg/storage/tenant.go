package storage

import "context"

type tenantCtxKey struct{}

// WithTenant scopes ctx to a tenant. An empty tenantID leaves ctx unchanged.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	if tenantID == "" {
		return ctx
	}
	return context.WithValue(ctx, tenantCtxKey{}, tenantID)
}

// TenantFromContext returns the tenant ctx is scoped to, or "".
func TenantFromContext(ctx context.Context) string {
	tenantID, _ := ctx.Value(tenantCtxKey{}).(string)
	return tenantID
}
