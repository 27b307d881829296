//go:build windows

package supervisor

import (
	"os/exec"
	"syscall"
)

func setDetached(c *exec.Cmd) {
	c.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// killGroup is a no-op; killTree walks the descendants instead.
func killGroup(pid int) error {
	return nil
}
