//go:build windows

package resumelock

import "os"

// isAlive reports whether pid names a running process. On Windows
// os.FindProcess opens a handle to the process and fails when no such
// process exists, so a successful FindProcess is taken as alive.
func isAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := os.FindProcess(pid)
	return err == nil
}
