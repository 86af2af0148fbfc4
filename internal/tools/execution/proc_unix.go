//go:build !windows

package execution

import (
	"os/exec"
	"syscall"
)

// setProcGroup places the child in its own process group so the kill timer
// reaches grandchildren too.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
