//go:build windows

package execx

import (
	"os/exec"
	"time"
)

// setProcGroup only sets WaitDelay on Windows: exec.CommandContext already
// sends os.Kill on cancellation and Windows has no Unix-style process groups.
func setProcGroup(cmd *exec.Cmd) {
	cmd.WaitDelay = 3 * time.Second
}
