// Package memory provides an in-memory PrincipalStore for tests and
// single-instance deployments that declare principals in configuration.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rhuss/toolgate/pkg/storage"
)

// Store is an in-memory PrincipalStore.
type Store struct {
	mu         sync.RWMutex
	principals map[string]storage.Principal
}

var _ storage.PrincipalStore = (*Store)(nil)

// New creates a store seeded with the given principals. Entries with an
// empty subject are skipped; later duplicates replace earlier ones.
func New(principals ...storage.Principal) *Store {
	s := &Store{principals: make(map[string]storage.Principal, len(principals))}
	for _, p := range principals {
		if p.Validate() != nil {
			continue
		}
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = time.Now()
		}
		s.principals[p.Subject] = p
	}
	return s
}

// LookupPrincipal returns a copy of the stored principal.
func (s *Store) LookupPrincipal(_ context.Context, subject string) (*storage.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.principals[subject]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &p, nil
}

// Put inserts or replaces a principal.
func (s *Store) Put(_ context.Context, p storage.Principal) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.UpdatedAt = time.Now()

	s.mu.Lock()
	s.principals[p.Subject] = p
	s.mu.Unlock()
	return nil
}

// Delete removes a principal. Returns ErrNotFound if it does not exist.
func (s *Store) Delete(_ context.Context, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.principals[subject]; !ok {
		return storage.ErrNotFound
	}
	delete(s.principals, subject)
	return nil
}

// Subjects returns all stored subjects in sorted order.
func (s *Store) Subjects() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.principals))
	for subject := range s.principals {
		out = append(out, subject)
	}
	sort.Strings(out)
	return out
}

// HealthCheck always succeeds for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }
