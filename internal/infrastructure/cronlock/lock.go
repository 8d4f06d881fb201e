// Package cronlock provides the cross-process, file-backed exclusive
// locks spec §4.8/§5 requires for at-most-one cron execution and for
// serialising plan-close transitions. Grounded on the teacher's PID-lock
// directory convention (discoclaw.pid.lock/), generalized from a
// single-process PID lock into a per-key lock directory.
package cronlock

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Lock is an O_EXCL-based advisory lock living at <dir>/<key>.lock.
type Lock struct {
	path string
	file *os.File
}

// Acquire attempts to create the lock file exclusively; ErrExist means
// another process (or run) already holds it.
func Acquire(dir, key string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, key+".lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	return &Lock{path: path, file: f}, nil
}

// Release closes and removes the lock file.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	_ = l.file.Close()
	return os.Remove(l.path)
}

// Stale reports whether the lock file at <dir>/<key>.lock is older than
// threshold, the recovery signal for an interrupted prior run.
func Stale(dir, key string, threshold time.Duration) bool {
	path := filepath.Join(dir, key+".lock")
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) > threshold
}

// ForceRelease removes a lock file unconditionally, used after Stale
// reports an interrupted run.
func ForceRelease(dir, key string) error {
	return os.Remove(filepath.Join(dir, key+".lock"))
}

// IsHeld reports whether a lock file currently exists for key.
func IsHeld(dir, key string) bool {
	_, err := os.Stat(filepath.Join(dir, key+".lock"))
	return err == nil
}
