//go:build !windows

package resumelock

import (
	"os"
	"syscall"
)

// isAlive reports whether pid names a running process, by sending it the
// null signal (no-op, existence check only) — the same liveness check the
// teacher's process-group cancellation relies on before signaling a group.
func isAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
