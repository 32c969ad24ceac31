package stats

import (
	"context"

	"git.home.luguber.info/inful/docsmith/internal/catalog"
)

// Store persists the last known Record per package identity across runs.
// Each run overwrites (not merges) the entry for every package it fetched.
type Store interface {
	// Get retrieves the cached record for the package.
	// Returns ErrNotFound if no record exists.
	Get(ctx context.Context, pkg catalog.Package) (*Record, error)

	// PutAll writes the given records, replacing any existing entry for the
	// same package identity.
	PutAll(ctx context.Context, records []Record) error

	// Close releases any resources held by the store.
	Close() error
}

// ErrNotFound is returned when no record exists for a package identity.
type ErrNotFound struct {
	Identity string
}

func (e ErrNotFound) Error() string {
	return "stats record not found: " + e.Identity
}

// IsNotFound returns true if the error is ErrNotFound.
func IsNotFound(err error) bool {
	_, ok := err.(ErrNotFound)
	return ok
}
