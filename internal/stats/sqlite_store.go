package stats

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/docsmith/internal/catalog"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (creating if needed) the stats store at dbPath.
// Use ":memory:" for an in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS download_stats (
		name TEXT NOT NULL,
		registry TEXT NOT NULL,
		downloads INTEGER,
		as_of INTEGER NOT NULL,
		stale INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (name, registry)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get retrieves the cached record for the package.
func (s *SQLiteStore) Get(ctx context.Context, pkg catalog.Package) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var downloads sql.NullInt64
	var asOfUnix int64
	var stale bool
	err := s.db.QueryRowContext(ctx,
		"SELECT downloads, as_of, stale FROM download_stats WHERE name = ? AND registry = ?",
		pkg.Name, pkg.Registry,
	).Scan(&downloads, &asOfUnix, &stale)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound{Identity: pkg.Identity()}
	}
	if err != nil {
		return nil, fmt.Errorf("query stats record: %w", err)
	}

	rec := &Record{
		Package: pkg,
		AsOf:    time.Unix(asOfUnix, 0).UTC(),
		Stale:   stale,
	}
	if downloads.Valid {
		v := downloads.Int64
		rec.Downloads = &v
	}
	return rec, nil
}

// PutAll upserts all records in one transaction, overwriting per identity.
func (s *SQLiteStore) PutAll(ctx context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO download_stats (name, registry, downloads, as_of, stale)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name, registry) DO UPDATE SET
			downloads = excluded.downloads,
			as_of = excluded.as_of,
			stale = excluded.stale
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		var downloads any
		if rec.Downloads != nil {
			downloads = *rec.Downloads
		}
		if _, err := stmt.ExecContext(ctx, rec.Package.Name, rec.Package.Registry, downloads, rec.AsOf.Unix(), rec.Stale); err != nil {
			return fmt.Errorf("upsert %s: %w", rec.Package.Identity(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
