package syncdocs

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	apperrors "git.home.luguber.info/inful/docsmith/internal/errors"
)

// maxEntrySize caps a single extracted file; companion-repo docs are text.
const maxEntrySize = 32 << 20

// fetchArchive downloads the snapshot tarball and extracts selected entries
// into the staging directory. Returns the number of files written.
func (j *Job) fetchArchive(ctx context.Context, staging string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.cfg.Source, nil)
	if err != nil {
		return 0, apperrors.SyncFetchFailed(j.cfg.Source, err)
	}

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return 0, apperrors.SyncFetchFailed(j.cfg.Source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, apperrors.SyncFetchFailed(j.cfg.Source, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return 0, apperrors.SyncFetchFailed(j.cfg.Source, fmt.Errorf("not a gzip archive: %w", err))
	}
	defer gz.Close()

	extracted := 0
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, apperrors.SyncFetchFailed(j.cfg.Source, fmt.Errorf("corrupt archive: %w", err))
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		rel, ok := j.selectEntry(hdr.Name)
		if !ok {
			continue
		}

		target := filepath.Join(staging, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return 0, fmt.Errorf("create entry directory: %w", err)
		}
		f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return 0, fmt.Errorf("create entry file: %w", err)
		}
		_, copyErr := io.Copy(f, io.LimitReader(tr, maxEntrySize))
		closeErr := f.Close()
		if copyErr != nil {
			return 0, fmt.Errorf("extract %s: %w", hdr.Name, copyErr)
		}
		if closeErr != nil {
			return 0, fmt.Errorf("extract %s: %w", hdr.Name, closeErr)
		}
		extracted++
	}
	return extracted, nil
}
