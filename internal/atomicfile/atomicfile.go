// Package atomicfile provides the write-temp+fsync+rename primitive the
// policy core and boot applier both use to persist state documents: a
// reader never observes a partially written file, and a crash after fsync
// but before process exit still leaves a complete, parseable file on disk.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// Write serializes data to a temp file in the same directory as path,
// fsyncs it, and renames it over path. Either the old contents remain
// fully intact or the new contents are fully visible; no partial file is
// ever observable by a concurrent reader.
func Write(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".controlbus-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if err := tmp.Chmod(perm); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file into place: %w", err)
	}
	return nil
}
