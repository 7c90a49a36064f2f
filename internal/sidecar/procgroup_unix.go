//go:build unix

package sidecar

import (
	"errors"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// procGroup kills the worker's whole process group so helpers it forked do
// not outlive it.
type procGroup struct{}

func (procGroup) attach(*os.Process) error { return nil }

func (procGroup) kill(p *os.Process) error {
	err := unix.Kill(-p.Pid, unix.SIGKILL)
	if errors.Is(err, unix.ESRCH) {
		return ErrAlreadyTerminated
	}
	if err != nil {
		return p.Kill()
	}
	return nil
}

func (procGroup) release() {}

func signalOf(state *os.ProcessState) string {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return unix.SignalName(ws.Signal())
	}
	return ""
}
