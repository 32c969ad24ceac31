package server

import (
	"io/fs"
	"path/filepath"
)

// walkDirs calls fn for root and every directory below it.
func walkDirs(root string, fn func(dir string) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // tree may be mutating underneath us
		}
		if !d.IsDir() {
			return nil
		}
		return fn(path)
	})
}
