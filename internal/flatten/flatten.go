// Package flatten concatenates the documentation tree into a single text
// corpus for downstream bulk ingestion. Output is deterministic: same tree
// and exclusions, same bytes.
package flatten

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/inful/mdfp"

	apperrors "git.home.luguber.info/inful/docsmith/internal/errors"
	"git.home.luguber.info/inful/docsmith/internal/fsutil"
	"git.home.luguber.info/inful/docsmith/internal/logfields"
)

// Entry is one document in the corpus, keyed by its slash-normalized path
// relative to the tree root.
type Entry struct {
	Path    string
	Content []byte
}

// Result summarizes a flatten run.
type Result struct {
	Files       int
	Bytes       int
	Fingerprint string
	Unchanged   bool // existing output already matched, write skipped
}

// Collect walks the tree and returns the working set: every file whose
// relative path matches no exclusion glob, sorted lexicographically.
func Collect(root string, exclusions []string) ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if excluded(rel, exclusions) {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		entries = append(entries, Entry{Path: rel, Content: content})
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryFlatten, apperrors.SeverityFatal, "walk documentation tree").
			WithContext("root", root)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func excluded(rel string, exclusions []string) bool {
	for _, pattern := range exclusions {
		if matched, err := doublestar.Match(pattern, rel); err == nil && matched {
			return true
		}
	}
	return false
}

// Render concatenates entries into the corpus format: a path-marker header
// line preceding each entry's content, entries separated by a blank line.
// Pure: no I/O, byte-identical for identical input.
func Render(entries []Entry) []byte {
	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString("=== ")
		sb.WriteString(e.Path)
		sb.WriteString(" ===\n")
		sb.Write(e.Content)
		if len(e.Content) > 0 && e.Content[len(e.Content)-1] != '\n' {
			sb.WriteByte('\n')
		}
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}

// Run flattens root into the output file. The output path is excluded from
// the walk automatically when it lives inside the tree. The write is atomic,
// and skipped entirely when the existing output already carries the same
// content fingerprint.
func Run(root string, exclusions []string, output string) (*Result, error) {
	if rel, err := filepath.Rel(root, output); err == nil && !strings.HasPrefix(rel, "..") {
		exclusions = append(append([]string(nil), exclusions...), filepath.ToSlash(rel))
	}

	entries, err := Collect(root, exclusions)
	if err != nil {
		return nil, err
	}

	corpus := Render(entries)
	res := &Result{
		Files:       len(entries),
		Bytes:       len(corpus),
		Fingerprint: mdfp.CalculateFingerprintFromParts("", string(corpus)),
	}

	if existing, err := os.ReadFile(output); err == nil {
		if mdfp.CalculateFingerprintFromParts("", string(existing)) == res.Fingerprint {
			res.Unchanged = true
			slog.Debug("corpus unchanged, skipping write", logfields.Path(output))
			return res, nil
		}
	}

	if err := fsutil.WriteFileAtomic(output, corpus, 0o644); err != nil {
		return nil, apperrors.FileWriteError(output, err)
	}

	slog.Info("corpus written",
		logfields.Path(output),
		slog.Int("files", res.Files),
		slog.Int("bytes", res.Bytes),
		slog.String("fingerprint", res.Fingerprint))
	return res, nil
}
