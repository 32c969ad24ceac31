// Package syncdocs installs a subtree of a companion repository's snapshot
// into the local documentation tree, stripping citations that only resolve in
// the origin repository. The job is idempotent: a populated destination makes
// it a no-op.
package syncdocs

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"git.home.luguber.info/inful/docsmith/internal/config"
	apperrors "git.home.luguber.info/inful/docsmith/internal/errors"
	"git.home.luguber.info/inful/docsmith/internal/fsutil"
	"git.home.luguber.info/inful/docsmith/internal/logfields"
	"git.home.luguber.info/inful/docsmith/internal/markdown"
)

// Job performs one external-docs sync.
type Job struct {
	cfg        config.SyncConfig
	httpClient *http.Client
}

// Outcome summarizes what a sync run did.
type Outcome struct {
	Skipped   bool // destination already populated, nothing fetched
	Extracted int  // files installed
	Stripped  int  // files whose citations were rewritten
	Warnings  []string
}

// Option customizes a Job.
type Option func(*Job)

// WithHTTPClient replaces the archive-fetch HTTP client (tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(j *Job) { j.httpClient = hc }
}

// NewJob builds a sync job from configuration.
func NewJob(cfg config.SyncConfig, opts ...Option) *Job {
	j := &Job{cfg: cfg, httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run executes the sync. A populated destination short-circuits before any
// network I/O. Fetch failures are fatal to this job only; a snapshot with no
// entries matching the selector is a warning, since the destination may be
// legitimately populated by a prior run in offline environments.
func (j *Job) Run(ctx context.Context) (*Outcome, error) {
	if j.cfg.Source == "" {
		return nil, apperrors.ConfigRequired("sync.source")
	}
	if j.cfg.Destination == "" {
		return nil, apperrors.ConfigRequired("sync.destination")
	}

	populated, err := fsutil.DirHasEntries(j.cfg.Destination)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryFileSystem, apperrors.SeverityError, "destination unreadable").
			WithContext("path", j.cfg.Destination)
	}
	if populated {
		slog.Debug("sync destination already populated, skipping", logfields.Path(j.cfg.Destination))
		return &Outcome{Skipped: true}, nil
	}

	parent := filepath.Dir(j.cfg.Destination)
	if err := os.MkdirAll(parent, 0o750); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryFileSystem, apperrors.SeverityError, "create destination parent").
			WithContext("path", parent)
	}
	// Staging lives next to the destination so the final install is a rename,
	// never a partially visible tree.
	staging, err := os.MkdirTemp(parent, ".sync-staging-*")
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryFileSystem, apperrors.SeverityError, "create staging directory")
	}
	defer func() { _ = os.RemoveAll(staging) }()

	var extracted int
	switch j.cfg.Mode {
	case config.SyncSourceGit:
		extracted, err = j.fetchGit(ctx, staging)
	default:
		extracted, err = j.fetchArchive(ctx, staging)
	}
	if err != nil {
		return nil, err
	}

	if extracted == 0 {
		warn := apperrors.SyncNoEntries(j.cfg.Source, j.cfg.Selector)
		slog.Warn("snapshot yielded no matching entries", logfields.Source(j.cfg.Source))
		return &Outcome{Warnings: []string{warn.Error()}}, nil
	}

	stripped, err := j.postProcess(staging)
	if err != nil {
		return nil, err
	}

	if err := os.Rename(staging, j.cfg.Destination); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryFileSystem, apperrors.SeverityError, "install synced docs").
			WithContext("path", j.cfg.Destination)
	}

	slog.Info("external docs synced",
		logfields.Source(j.cfg.Source),
		logfields.Path(j.cfg.Destination),
		slog.Int("files", extracted),
		slog.Int("stripped", stripped))
	return &Outcome{Extracted: extracted, Stripped: stripped}, nil
}

// selectEntry decides whether an entry path belongs to the synced subtree and
// returns its destination-relative path after stripping leading components.
func (j *Job) selectEntry(name string) (string, bool) {
	name = strings.TrimPrefix(filepath.ToSlash(name), "./")
	if name == "" {
		return "", false
	}
	parts := strings.Split(name, "/")
	// Traversal check is per segment; filenames like "notes..md" are fine.
	for _, part := range parts {
		if part == ".." {
			return "", false
		}
	}
	matched, err := doublestar.Match(j.cfg.Selector, name)
	if err != nil || !matched {
		return "", false
	}
	if len(parts) <= j.cfg.StripComponents {
		return "", false
	}
	return filepath.Join(parts[j.cfg.StripComponents:]...), true
}

// postProcess rewrites extracted markdown files, deleting reference-style
// citation markup. Returns the number of files changed.
func (j *Job) postProcess(root string) (int, error) {
	changed := 0
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isTextFile(path) {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		out, res := markdown.StripCitations(raw)
		if !res.Changed() {
			return nil
		}
		if err := os.WriteFile(path, out, 0o644); err != nil {
			return fmt.Errorf("rewrite %s: %w", path, err)
		}
		changed++
		return nil
	})
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CategorySync, apperrors.SeverityError, "citation strip failed")
	}
	return changed, nil
}

func isTextFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".txt", ".rst":
		return true
	}
	return false
}
