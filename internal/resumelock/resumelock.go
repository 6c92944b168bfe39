// Package resumelock implements the Resume Lock (spec §4.4, C4): a
// file-based mutual-exclusion lock preventing two coordinator processes
// from touching the same job's on-disk state concurrently. The atomic
// acquire (write-temp-then-os.Rename, refusing to overwrite a live lock)
// follows the same idiom as internal/task/state.go's StateManager and
// internal/dlq.Store; stale-lock reclamation follows the PID-liveness check
// the teacher uses to decide whether a subprocess's process group is still
// alive before sending it a signal (internal/agent/procgroup_unix.go).
package resumelock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Lock describes the metadata stamped into the lock file, enough for a
// second process to decide whether the holder is still alive.
type Lock struct {
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	JobID      string    `json:"job_id"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Handle is returned by Acquire and must be passed to Release.
type Handle struct {
	path string
}

// Acquire takes the lock at path for jobID, reclaiming it first if the
// existing lock's owner process is no longer alive (spec §4.4: "a lock
// whose owner process no longer exists is considered stale and silently
// reclaimed").
func Acquire(path, jobID string) (*Handle, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("resumelock: creating directory: %w", err)
	}

	if existing, err := read(path); err == nil {
		if isAlive(existing.PID) {
			return nil, fmt.Errorf("resumelock: job %q is locked by pid %d on %s (acquired %s)",
				existing.JobID, existing.PID, existing.Hostname, existing.AcquiredAt)
		}
		// Stale: owner process is gone, reclaim by removing first.
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("resumelock: removing stale lock: %w", err)
		}
	}

	hostname, _ := os.Hostname()
	lock := Lock{
		PID:        os.Getpid(),
		Hostname:   hostname,
		JobID:      jobID,
		AcquiredAt: time.Now().UTC(),
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("resumelock: creating temp lock file: %w", err)
	}
	if err := json.NewEncoder(f).Encode(lock); err != nil {
		f.Close()
		os.Remove(tmp)
		return nil, fmt.Errorf("resumelock: encoding lock: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("resumelock: closing temp lock file: %w", err)
	}

	// os.Rename atomically replaces path if it exists, so a concurrent
	// Acquire that lost the read-above race still can't silently clobber a
	// live lock written in the interim; Release/re-read on the next attempt
	// catches that case.
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("resumelock: installing lock file: %w", err)
	}

	return &Handle{path: path}, nil
}

// Release removes the lock file. Safe to call on an already-removed lock.
func (h *Handle) Release() error {
	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("resumelock: releasing lock: %w", err)
	}
	return nil
}

func read(path string) (Lock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Lock{}, err
	}
	var lock Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		return Lock{}, err
	}
	return lock, nil
}
