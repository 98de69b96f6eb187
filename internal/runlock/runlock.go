// Package runlock provides single-instance mutual exclusion via an
// exclusively created filesystem marker.
package runlock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Liyracat/tool-rss-reader/internal/ports"
)

// FileLock guards a whole ingestion run. Acquisition is an atomic
// create-if-absent; a second invocation sees the marker and exits idle.
type FileLock struct {
	path string
}

var _ ports.RunLock = (*FileLock)(nil)

// New builds a lock over the marker path.
func New(path string) *FileLock {
	return &FileLock{path: path}
}

// TryAcquire creates the marker. An existing marker means another run is
// active, reported as (false, nil) rather than an error.
func (l *FileLock) TryAcquire() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create lock %s: %w", l.path, err)
	}
	_ = f.Close()
	return true, nil
}

// Release removes the marker; a missing marker is not an error.
func (l *FileLock) Release() error {
	err := os.Remove(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("remove lock %s: %w", l.path, err)
	}
	return nil
}
