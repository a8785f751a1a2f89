package io

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockFileName is the name of the lock file created inside a locked directory.
const LockFileName = ".dkg-stress.lock"

// ErrAlreadyLocked is returned when the directory is locked by another process.
var ErrAlreadyLocked = errors.New("directory is locked by another process")

// FileLock is an exclusive, advisory lock on a directory. It keeps two
// orchestrator runs from sharing the same scratch directory.
type FileLock struct {
	lockFile *flock.Flock
	path     string
}

// NewFileLock creates a lock for the given directory. The directory is
// created on Lock if it does not exist yet.
func NewFileLock(dir string) *FileLock {
	lockPath := filepath.Join(dir, LockFileName)

	return &FileLock{
		lockFile: flock.New(lockPath),
		path:     lockPath,
	}
}

// Lock acquires the lock without blocking. It returns an error wrapping
// ErrAlreadyLocked if another process holds it.
func (fl *FileLock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(fl.path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for lock file %s: %w", fl.path, err)
	}

	locked, err := fl.lockFile.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire file lock at %s: %w", fl.path, err)
	}
	if !locked {
		return fmt.Errorf("cannot lock %s: %w", fl.path, ErrAlreadyLocked)
	}
	return nil
}

// Unlock releases the lock and removes the lock file. Unlocking a lock that
// is not held is a no-op.
func (fl *FileLock) Unlock() error {
	if !fl.lockFile.Locked() {
		return nil
	}
	if err := fl.lockFile.Unlock(); err != nil {
		return fmt.Errorf("failed to release file lock at %s: %w", fl.path, err)
	}
	if err := os.Remove(fl.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove lock file %s: %w", fl.path, err)
	}
	return nil
}

// Path returns the path to the lock file.
func (fl *FileLock) Path() string {
	return fl.path
}
