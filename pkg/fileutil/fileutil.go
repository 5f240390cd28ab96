// Package fileutil writes output files with tmp+mv semantics: content goes
// to a sibling .tmp file that replaces the target only once complete.
package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// TmpSuffix is appended to the target path while a file is being written.
const TmpSuffix = ".tmp"

// Exists returns true if the file exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// AtomicFile is an output file that appears at its path only after Commit.
type AtomicFile struct {
	*os.File
	path string
	done bool
}

// CreateAtomic starts writing path. Missing parent directories are created.
func CreateAtomic(path string) (*AtomicFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path + TmpSuffix)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &AtomicFile{File: f, path: path}, nil
}

// Path returns the final path.
func (a *AtomicFile) Path() string {
	return a.path
}

// Commit fsyncs the temp file and renames it over the final path. Calling
// Commit or Abort again is a no-op.
func (a *AtomicFile) Commit() error {
	if a.done {
		return nil
	}
	a.done = true
	tmp := a.File.Name()

	if err := a.File.Sync(); err != nil {
		a.File.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := a.File.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, a.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp to final: %w", err)
	}
	return nil
}

// Abort discards everything written and leaves the final path untouched.
func (a *AtomicFile) Abort() error {
	if a.done {
		return nil
	}
	a.done = true
	cerr := a.File.Close()
	if err := os.Remove(a.File.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove temp file: %w", err)
	}
	return cerr
}

// Close commits, so an AtomicFile can stand in for an *os.File.
func (a *AtomicFile) Close() error {
	return a.Commit()
}
