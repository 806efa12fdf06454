// Package apikey provides a static auth.Delegate that verifies credentials
// against a configured key store using SHA-256 hashing and constant-time
// comparison. It answers the same contract as the remote delegate and is
// meant for single-instance deployments and local development.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"maps"
	"net/http"
	"slices"

	"github.com/rhuss/toolgate/pkg/auth"
)

// RawKeyEntry is the configuration format for one credential.
type RawKeyEntry struct {
	Key      string
	Identity auth.Identity

	// Kind restricts the entry to one credential kind. KindNone accepts
	// both bearer tokens and API keys.
	Kind auth.CredentialKind
}

type keyEntry struct {
	hash     [32]byte
	identity auth.Identity
	kind     auth.CredentialKind
}

// Store verifies credentials against hashed keys. Plaintext keys are not
// retained.
type Store struct {
	keys []keyEntry
}

var _ auth.Delegate = (*Store)(nil)

// New hashes the given entries. Entries with an empty key or subject are
// rejected.
func New(entries []RawKeyEntry) (*Store, error) {
	s := &Store{}
	for i, e := range entries {
		if e.Key == "" {
			return nil, fmt.Errorf("apikey: entry %d has an empty key", i)
		}
		if e.Identity.Subject == "" {
			return nil, fmt.Errorf("apikey: entry %d has an empty subject", i)
		}
		s.keys = append(s.keys, keyEntry{
			hash:     sha256.Sum256([]byte(e.Key)),
			identity: e.Identity,
			kind:     e.Kind,
		})
	}
	return s, nil
}

// Verify compares the credential against every stored hash.
func (s *Store) Verify(_ context.Context, cred auth.Credential) auth.Verdict {
	if cred.Kind == auth.KindNone || cred.Value == "" {
		return auth.Verdict{Outcome: auth.Rejected, Status: http.StatusUnauthorized, Err: auth.ErrNoCredential}
	}

	h := sha256.Sum256([]byte(cred.Value))

	// Compare against all entries so timing does not reveal the position.
	var match *keyEntry
	for i := range s.keys {
		e := &s.keys[i]
		if subtle.ConstantTimeCompare(h[:], e.hash[:]) == 1 && (e.kind == auth.KindNone || e.kind == cred.Kind) {
			match = e
		}
	}

	if match == nil {
		msg := "token not found"
		if cred.Kind == auth.KindAPIKey {
			msg = "api key not found"
		}
		return auth.Verdict{
			Outcome: auth.Rejected,
			Status:  http.StatusUnauthorized,
			Err:     fmt.Errorf("%w: %s", auth.ErrUnauthenticated, msg),
		}
	}

	id := match.identity
	id.Metadata = maps.Clone(match.identity.Metadata)
	id.Scopes = slices.Clone(match.identity.Scopes)
	return auth.Verdict{Outcome: auth.Verified, Identity: &id, Status: http.StatusOK}
}

// Len returns the number of stored keys.
func (s *Store) Len() int { return len(s.keys) }

