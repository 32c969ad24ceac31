package syncdocs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	apperrors "git.home.luguber.info/inful/docsmith/internal/errors"
)

// fetchGit shallow-clones the companion repository and copies selected files
// into the staging directory. Returns the number of files written.
func (j *Job) fetchGit(ctx context.Context, staging string) (int, error) {
	cloneDir, err := os.MkdirTemp("", "docsmith-sync-clone-*")
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CategoryFileSystem, apperrors.SeverityError, "create clone directory")
	}
	defer func() { _ = os.RemoveAll(cloneDir) }()

	opts := &gogit.CloneOptions{
		URL:          j.cfg.Source,
		Depth:        1,
		SingleBranch: true,
	}
	if j.cfg.Ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(j.cfg.Ref)
	}
	if _, err := gogit.PlainCloneContext(ctx, cloneDir, false, opts); err != nil {
		return 0, apperrors.SyncFetchFailed(j.cfg.Source, err)
	}

	extracted := 0
	err = filepath.WalkDir(cloneDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == gogit.GitDirName {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(cloneDir, path)
		if err != nil {
			return err
		}
		target, ok := j.selectEntry(rel)
		if !ok {
			return nil
		}
		if err := copyFile(path, filepath.Join(staging, target)); err != nil {
			return err
		}
		extracted++
		return nil
	})
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CategorySync, apperrors.SeverityError, "copy cloned subtree")
	}
	return extracted, nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("create entry directory: %w", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
