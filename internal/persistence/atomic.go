package persistence

import (
	"fmt"
	"os"
	"path/filepath"
)

// ReplaceFile writes a new version of path through write, which receives the
// path of a temporary file in the same directory. The temporary file is
// flushed and renamed over path only if write succeeds, so readers see
// either the old or the new content, never a partial file.
func ReplaceFile(path string, write func(tmpPath string) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := write(tmpPath); err != nil {
		return err
	}

	if err := syncFile(tmpPath); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	// best effort: not every platform can fsync a directory
	_ = syncFile(dir)
	return nil
}

func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
