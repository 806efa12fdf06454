package apikey

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/rhuss/toolgate/pkg/auth"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New([]RawKeyEntry{
		{
			Key: "sk_test_key_1",
			Identity: auth.Identity{
				Subject:     "alice",
				ServiceTier: "standard",
				Metadata:    map[string]string{"tenant_id": "org-1"},
			},
		},
		{
			Key:      "session-token-bob",
			Identity: auth.Identity{Subject: "bob"},
			Kind:     auth.KindBearer,
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func TestVerify_ValidAPIKey(t *testing.T) {
	s := newTestStore(t)

	v := s.Verify(context.Background(), auth.Credential{Kind: auth.KindAPIKey, Value: "sk_test_key_1"})
	if v.Outcome != auth.Verified {
		t.Fatalf("Outcome = %v, want verified (err: %v)", v.Outcome, v.Err)
	}
	if v.Identity.Subject != "alice" {
		t.Errorf("Subject = %q, want alice", v.Identity.Subject)
	}
	if v.Identity.TenantID() != "org-1" {
		t.Errorf("TenantID = %q, want org-1", v.Identity.TenantID())
	}
}

func TestVerify_UnknownKeyRejected(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		name string
		cred auth.Credential
		msg  string
	}{
		{"unknown token", auth.Credential{Kind: auth.KindBearer, Value: "nope"}, "token not found"},
		{"unknown key", auth.Credential{Kind: auth.KindAPIKey, Value: "sk_nope"}, "api key not found"},
		{"kind restricted", auth.Credential{Kind: auth.KindAPIKey, Value: "session-token-bob"}, "api key not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := s.Verify(context.Background(), tt.cred)
			if v.Outcome != auth.Rejected {
				t.Fatalf("Outcome = %v, want rejected", v.Outcome)
			}
			if v.Status != http.StatusUnauthorized {
				t.Errorf("Status = %d, want 401", v.Status)
			}
			if !errors.Is(v.Err, auth.ErrUnauthenticated) || !strings.Contains(v.Err.Error(), tt.msg) {
				t.Errorf("Err = %v, want %q", v.Err, tt.msg)
			}
		})
	}
}

func TestVerify_BearerRestrictedEntry(t *testing.T) {
	s := newTestStore(t)

	v := s.Verify(context.Background(), auth.Credential{Kind: auth.KindBearer, Value: "session-token-bob"})
	if v.Outcome != auth.Verified || v.Identity.Subject != "bob" {
		t.Errorf("verdict = %+v, want verified bob", v)
	}
}

func TestVerify_IdentityIsCopied(t *testing.T) {
	s := newTestStore(t)
	cred := auth.Credential{Kind: auth.KindAPIKey, Value: "sk_test_key_1"}

	first := s.Verify(context.Background(), cred)
	first.Identity.Metadata["tenant_id"] = "mutated"
	first.Identity.ServiceTier = "mutated"

	second := s.Verify(context.Background(), cred)
	if second.Identity.TenantID() != "org-1" || second.Identity.ServiceTier != "standard" {
		t.Errorf("stored identity leaked mutation: %+v", second.Identity)
	}
}

func TestNew_RejectsInvalidEntries(t *testing.T) {
	if _, err := New([]RawKeyEntry{{Key: "", Identity: auth.Identity{Subject: "a"}}}); err == nil {
		t.Error("expected error for empty key")
	}
	if _, err := New([]RawKeyEntry{{Key: "k"}}); err == nil {
		t.Error("expected error for empty subject")
	}
}

func TestVerify_NoCredential(t *testing.T) {
	s := newTestStore(t)
	v := s.Verify(context.Background(), auth.Credential{})
	if v.Outcome != auth.Rejected || !errors.Is(v.Err, auth.ErrNoCredential) {
		t.Errorf("verdict = %+v, want rejected ErrNoCredential", v)
	}
}
