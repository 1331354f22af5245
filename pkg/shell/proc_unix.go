//go:build unix

package shell

import (
	"os/exec"
	"syscall"
	"time"
)

// killGrace is how long Wait waits for pipes after the group was killed.
const killGrace = 5 * time.Second

func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		// Negative pid signals the whole group.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = killGrace
}
