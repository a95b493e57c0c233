// Package id provides UUIDv7 identifiers for all billing entities.
// Time-ordered UUIDs keep invoice and ledger rows naturally sorted by
// creation time and give good B-tree locality in PostgreSQL.
package id

import (
	"github.com/google/uuid"
)

// ID is a type alias for UUID, used across all entities.
type ID = uuid.UUID

// New generates a new UUIDv7 (RFC 9562, time-ordered).
func New() ID {
	id, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if the entropy source does; fall back to V4.
		return uuid.New()
	}
	return id
}

// Parse converts a string to ID with validation.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// MustParse converts a string to ID, panics on error.
// Use only for constants and tests.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}

// Nil returns the zero-value UUID.
func Nil() ID {
	return uuid.Nil
}

// IsNil checks if an ID is the zero value.
func IsNil(id ID) bool {
	return id == uuid.Nil
}
