//go:build unix && !linux

package sidecar

import (
	"os/exec"
	"syscall"
)

// configureCommand makes the worker a process-group leader. There is no
// parent-death signal outside Linux; the lifecycle hooks are the only guard.
func configureCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
