package auth

import (
	"errors"
	"slices"
	"testing"
)

func TestParseUserDocument(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		subject string
		tenant  string
		tier    string
		scopes  []string
		wantErr error
	}{
		{name: "nested user id", body: `{"user":{"id":"u1","tenant_id":"t1","tier":"gold"}}`, subject: "u1", tenant: "t1", tier: "gold"},
		{name: "top-level sub", body: `{"sub":"u2","scope":"read write"}`, subject: "u2", scopes: []string{"read", "write"}},
		{name: "user_id", body: `{"user_id":"u3","scopes":["a","b"]}`, subject: "u3", scopes: []string{"a", "b"}},
		{name: "numeric id", body: `{"user":{"id":42}}`, subject: "42"},
		{name: "sub beside nested user", body: `{"sub":"u4","user":{"email":"x@y"}}`, subject: "u4"},
		{name: "org id as tenant", body: `{"id":"u5","org_id":"o1"}`, subject: "u5", tenant: "o1"},
		{name: "no subject", body: `{"user":{"email":"x@y"}}`, wantErr: ErrNoPrincipal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ParseUserDocument([]byte(tt.body))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id.Subject != tt.subject {
				t.Errorf("Subject = %q, want %q", id.Subject, tt.subject)
			}
			if id.TenantID() != tt.tenant {
				t.Errorf("TenantID = %q, want %q", id.TenantID(), tt.tenant)
			}
			if id.ServiceTier != tt.tier {
				t.Errorf("ServiceTier = %q, want %q", id.ServiceTier, tt.tier)
			}
			if !slices.Equal(id.Scopes, tt.scopes) {
				t.Errorf("Scopes = %v, want %v", id.Scopes, tt.scopes)
			}
		})
	}
}

func TestParseUserDocument_InvalidJSON(t *testing.T) {
	if _, err := ParseUserDocument([]byte("not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
