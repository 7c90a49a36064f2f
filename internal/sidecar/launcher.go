package sidecar

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/zjrosen/tether/internal/log"
)

// CommandFactoryFunc creates the exec.Cmd for the worker. Tests use it to
// substitute a shell script for the real binary.
type CommandFactoryFunc func(name string, args ...string) *exec.Cmd

// LaunchConfig describes how to start the worker.
type LaunchConfig struct {
	// Executable is the resolved path of the worker binary. Required.
	Executable string
	// Args are passed after the executable path. Normally empty.
	Args []string
	// Env entries ("KEY=VALUE") are appended to os.Environ().
	Env []string
	// WorkDir is the working directory; empty means inherit.
	WorkDir string
	// LineLimit caps a single emitted line. Zero means DefaultLineLimit.
	LineLimit int
	// EventBuffer is the event channel capacity. Zero means DefaultEventBuffer.
	EventBuffer int
}

// Launcher starts the worker once per application run.
type Launcher struct {
	cfg            LaunchConfig
	commandFactory CommandFactoryFunc
}

// LauncherOption configures a Launcher.
type LauncherOption func(*Launcher)

// WithCommandFactory overrides exec.Command.
func WithCommandFactory(fn CommandFactoryFunc) LauncherOption {
	return func(l *Launcher) {
		l.commandFactory = fn
	}
}

// NewLauncher creates a Launcher for cfg.
func NewLauncher(cfg LaunchConfig, opts ...LauncherOption) *Launcher {
	if cfg.LineLimit <= 0 {
		cfg.LineLimit = DefaultLineLimit
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}
	l := &Launcher{cfg: cfg}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Executable returns the configured worker path.
func (l *Launcher) Executable() string {
	return l.cfg.Executable
}

// Launch starts the worker and its output goroutines. The caller must store
// the returned Process in the Slot before handing control back to any code
// that can fire a lifecycle hook.
//
// On error nothing is left running.
func (l *Launcher) Launch() (*Process, error) {
	if l.cfg.Executable == "" {
		return nil, errors.New("sidecar: executable path is required")
	}

	var cmd *exec.Cmd
	if l.commandFactory != nil {
		cmd = l.commandFactory(l.cfg.Executable, l.cfg.Args...)
	} else {
		// #nosec G204 -- executable comes from the resolved sidecar path
		cmd = exec.Command(l.cfg.Executable, l.cfg.Args...)
	}
	cmd.Dir = l.cfg.WorkDir
	if len(l.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), l.cfg.Env...)
	}
	configureCommand(cmd)

	var stdout, stderr io.ReadCloser
	cleanup := func() {
		if stdout != nil {
			_ = stdout.Close()
		}
		if stderr != nil {
			_ = stderr.Close()
		}
	}

	var err error
	stdout, err = cmd.StdoutPipe()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("sidecar: failed to create stdout pipe: %w", err)
	}
	stderr, err = cmd.StderrPipe()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("sidecar: failed to create stderr pipe: %w", err)
	}

	log.Debug(log.CatSidecar, "Spawning sidecar", "path", l.cfg.Executable, "args", len(l.cfg.Args))

	if err := cmd.Start(); err != nil {
		cleanup()
		return nil, fmt.Errorf("sidecar: failed to start %s: %w", l.cfg.Executable, err)
	}

	p := &Process{
		cmd:       cmd,
		execPath:  l.cfg.Executable,
		stdout:    stdout,
		stderr:    stderr,
		lineLimit: l.cfg.LineLimit,
		events:    make(chan Event, l.cfg.EventBuffer),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		startedAt: time.Now(),
	}

	if err := p.group.attach(cmd.Process); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, fmt.Errorf("sidecar: %w", err)
	}

	log.Info(log.CatSidecar, "Sidecar started", "pid", cmd.Process.Pid, "path", l.cfg.Executable)

	p.start()
	return p, nil
}
