// Package project resolves the on-disk identity of a time-lapse project.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"
)

// RawDirName is the subdirectory the capture driver writes into.
const RawDirName = "raw"

// ErrLocked is returned when another process already owns the project.
var ErrLocked = errors.New("project is locked by another process")

// Project is immutable for the lifetime of a run.
type Project struct {
	Name        string
	StoragePath string
	RawPath     string
}

// Open resolves storagePath to an absolute path, creates it and its raw
// subdirectory when missing, and checks both are writable.
func Open(name, storagePath string) (Project, error) {
	name = strings.TrimSpace(name)
	storagePath = strings.TrimSpace(storagePath)
	if name == "" {
		return Project{}, fmt.Errorf("project name is required")
	}
	if strings.ContainsAny(name, `/\`) {
		return Project{}, fmt.Errorf("project name %q must not contain path separators", name)
	}
	if name == "." || name == ".." {
		return Project{}, fmt.Errorf("project name %q is not a directory name", name)
	}
	if storagePath == "" {
		return Project{}, fmt.Errorf("project path is required")
	}

	abs, err := filepath.Abs(storagePath)
	if err != nil {
		return Project{}, fmt.Errorf("resolve project path: %w", err)
	}
	p := Project{
		Name:        name,
		StoragePath: abs,
		RawPath:     filepath.Join(abs, RawDirName),
	}

	for _, dir := range []string{p.StoragePath, p.RawPath} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Project{}, fmt.Errorf("create %s: %w", dir, err)
		}
		if err := unix.Access(dir, unix.W_OK|unix.X_OK); err != nil {
			return Project{}, fmt.Errorf("%s is not writable: %w", dir, err)
		}
	}
	return p, nil
}

// LockPath returns the lock file location. It lives beside the storage
// directory so the photo directory only ever holds canonical files.
func (p Project) LockPath() string {
	return filepath.Join(filepath.Dir(p.StoragePath), "."+filepath.Base(p.StoragePath)+".lock")
}

// Lock guards a project against concurrent runs.
type Lock struct {
	fl *flock.Flock
}

// Acquire takes the project lock without blocking.
func Acquire(p Project) (*Lock, error) {
	fl := flock.New(p.LockPath())
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", p.LockPath(), err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, p.LockPath())
	}
	return &Lock{fl: fl}, nil
}

// Release drops the lock. Safe on a nil receiver.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
