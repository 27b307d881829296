//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// setDetached puts the child in its own process group so the whole tree can be
// signalled and a terminal interrupt aimed at the controller does not reach it.
func setDetached(c *exec.Cmd) {
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}
