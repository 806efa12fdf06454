package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when no principal exists for a subject.
	ErrNotFound = errors.New("principal not found")

	// ErrInvalidPrincipal is returned when a principal cannot be stored.
	ErrInvalidPrincipal = errors.New("invalid principal")
)
