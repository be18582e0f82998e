// Package lockfile keeps two DASSPipe instances from sharing a state directory.
//
// The lock is an advisory flock on a file in the state directory, so the
// operating system releases it when the process exits, gracefully or not.
package lockfile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/gofrs/flock"
)

// LockFileName is the name of the lock file created in the state directory
const LockFileName = "dasspipe.lock"

// ErrLocked is the cause of a LockError when another process holds the lock.
var ErrLocked = errors.New("state directory is locked by another process")

// Lock represents an active directory lock
type Lock struct {
	flock    *flock.Flock
	path     string
	acquired bool
}

// AcquireLock attempts to acquire an exclusive lock on the state directory
// without blocking. If the lock is held elsewhere it returns a *LockError
// describing the holder.
func AcquireLock(stateDir string) (*Lock, error) {
	lockPath := filepath.Join(stateDir, LockFileName)
	slog.Debug("Lockfile.AcquireLock: attempting", "lock_path", lockPath)

	if err := os.MkdirAll(stateDir, 0755); err != nil {
		slog.Error("Lockfile.AcquireLock: failed to create state directory", "error", err, "state_dir", stateDir)
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	fl := flock.New(lockPath)
	acquired, err := fl.TryLock()
	if err != nil {
		slog.Error("Lockfile.AcquireLock: lock attempt failed", "error", err, "lock_path", lockPath)
		return nil, &LockError{LockPath: lockPath, ExistingInfo: readExistingLockInfo(lockPath), Cause: err}
	}
	if !acquired {
		_ = fl.Close()
		lockInfo := readExistingLockInfo(lockPath)
		slog.Error("Lockfile.AcquireLock: another DASSPipe instance is running", "lock_path", lockPath, "existing_lock_info", lockInfo)
		return nil, &LockError{LockPath: lockPath, ExistingInfo: lockInfo, Cause: ErrLocked}
	}

	if err := os.WriteFile(lockPath, []byte(fmt.Sprintf("pid=%d\n", os.Getpid())), 0644); err != nil {
		_ = fl.Unlock()
		slog.Error("Lockfile.AcquireLock: failed to write lock information", "error", err, "lock_path", lockPath)
		return nil, fmt.Errorf("failed to write lock information to %s: %w", lockPath, err)
	}

	slog.Info("Lockfile.AcquireLock: state directory locked", "lock_path", lockPath, "pid", os.Getpid())
	return &Lock{flock: fl, path: lockPath, acquired: true}, nil
}

// Release releases the lock and removes the lock file.
// This method is safe to call multiple times.
func (l *Lock) Release() error {
	if !l.acquired {
		return nil
	}

	// Remove while still holding the lock so a waiting instance never sees our pid.
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Lockfile.Release: failed to remove lock file", "error", err, "lock_path", l.path)
	}
	if err := l.flock.Unlock(); err != nil {
		slog.Error("Lockfile.Release: failed to unlock", "error", err, "lock_path", l.path)
		return fmt.Errorf("failed to release lock on %s: %w", l.path, err)
	}
	l.acquired = false

	slog.Info("Lockfile.Release: state directory unlocked", "lock_path", l.path)
	return nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// LockError represents an error when failing to acquire a lock due to another process
type LockError struct {
	LockPath     string
	ExistingInfo string
	Cause        error
}

func (e *LockError) Error() string {
	msg := fmt.Sprintf("Another DASSPipe instance is already running using the same state directory.\n\nLock file: %s", e.LockPath)
	if e.ExistingInfo != "" {
		msg += fmt.Sprintf("\nExisting process: %s", e.ExistingInfo)
	}
	msg += "\n\nThe lock is released automatically when that process exits. Stop the other instance" +
		"\nor point this one at a different state directory with -state-dir."
	return msg
}

func (e *LockError) Unwrap() error {
	return e.Cause
}

// readExistingLockInfo describes the current lock holder for error messages.
func readExistingLockInfo(lockPath string) string {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return "unable to read lock file information"
	}
	content := string(data)
	if content == "" {
		return "lock file exists but contains no process information"
	}
	if pid := extractPIDFromLockInfo(content); pid > 0 {
		if isProcessRunning(pid) {
			return fmt.Sprintf("PID %d (running)", pid)
		}
		return fmt.Sprintf("PID %d (not running)", pid)
	}
	return fmt.Sprintf("process information: %s", strings.TrimSpace(content))
}

// extractPIDFromLockInfo extracts the number after "pid=", or 0.
func extractPIDFromLockInfo(content string) int {
	const pidPrefix = "pid="
	idx := strings.Index(content, pidPrefix)
	if idx == -1 {
		return 0
	}
	start := idx + len(pidPrefix)
	end := start
	for end < len(content) && content[end] >= '0' && content[end] <= '9' {
		end++
	}
	pid, err := strconv.Atoi(content[start:end])
	if err != nil {
		return 0
	}
	return pid
}

// isProcessRunning sends signal 0 to pid.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
