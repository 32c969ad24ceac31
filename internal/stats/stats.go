// Package stats fetches and persists per-package download-count records.
//
// The fetcher fans out bounded concurrent registry queries and degrades per
// package: a failed query falls back to the cached record (marked stale) or
// to an absent count, never aborting the batch.
package stats

import (
	"time"

	"git.home.luguber.info/inful/docsmith/internal/catalog"
)

// Record is one package's download-count observation for a run.
// Downloads is nil when the count is unavailable (never fabricated).
type Record struct {
	Package   catalog.Package
	Downloads *int64
	AsOf      time.Time
	Stale     bool
}

// HasCount reports whether the record carries a genuine download count.
func (r Record) HasCount() bool { return r.Downloads != nil }

// Count returns the download count, or 0 when absent; check HasCount first.
func (r Record) Count() int64 {
	if r.Downloads == nil {
		return 0
	}
	return *r.Downloads
}
