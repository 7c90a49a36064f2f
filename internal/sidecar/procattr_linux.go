//go:build linux

package sidecar

import (
	"os/exec"
	"syscall"
)

// configureCommand makes the worker a process-group leader and asks the
// kernel to SIGKILL it if the shell dies without running any hook.
func configureCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}
