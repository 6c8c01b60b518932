//go:build !unix

package lock

import (
	"errors"
	"path/filepath"
)

var ErrLocked = errors.New("another instance is running")

// PIDLock is a no-op on platforms without flock(2).
type PIDLock struct {
	path string
}

func AcquirePIDLock(lockPath string) (*PIDLock, error) {
	return &PIDLock{path: lockPath}, nil
}

func ReadPID(string) (int, bool) { return 0, false }

func PathFor(statePath string) string {
	if statePath == "" {
		return "pointzerver.lock"
	}
	return filepath.Join(filepath.Dir(statePath), "pointzerver.lock")
}

func (l *PIDLock) Path() string { return l.path }

func (l *PIDLock) Release() error { return nil }
