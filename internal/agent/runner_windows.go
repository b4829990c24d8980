//go:build windows

package agent

import "os/exec"

func setProcessGroup(cmd *exec.Cmd, stop func()) {
	cmd.Cancel = func() error {
		stop()
		return cmd.Process.Kill()
	}
}
