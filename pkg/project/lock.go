package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/joshuarubin/moldock-supervisor/pkg/stopsignal"
)

// LockFileName is the name of the run lock in the project state directory
const LockFileName = "run.lock"

// ErrProjectBusy is returned by TryLock when another run holds the lock
var ErrProjectBusy = errors.New("project already has a run in progress")

// ErrNotDirectory is returned by TryLock when the project is not a directory
var ErrNotDirectory = errors.New("not a directory")

// LockPath returns the run lock of the project in dir
func LockPath(dir string) string {
	return filepath.Join(dir, stopsignal.StateDir, LockFileName)
}

// TryLock takes the run lock of the project in dir without blocking. The
// caller must Unlock the returned lock once the run is over. The lock is held
// across processes, so two supervisors can not run the same project either.
// The project itself must already exist, only its state directory is created.
func TryLock(dir string) (*flock.Flock, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("error opening project: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}

	path := LockPath(dir)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:mnd
		return nil, fmt.Errorf("error creating lock directory: %w", err)
	}

	lock := flock.New(path)

	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("error acquiring run lock: %w", err)
	}

	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrProjectBusy, dir)
	}

	return lock, nil
}
