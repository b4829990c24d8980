//go:build !windows

package agent

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts the command in its own process group and makes
// context cancellation run stop and then SIGKILL the whole group, so
// children spawned by the worker cannot outlive it or hold stdout open.
func setProcessGroup(cmd *exec.Cmd, stop func()) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		stop()
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
