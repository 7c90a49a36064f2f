//go:build unix

package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/tether/internal/commands"
	"github.com/zjrosen/tether/internal/config"
	"github.com/zjrosen/tether/internal/history"
	"github.com/zjrosen/tether/internal/sidecar"
	"github.com/zjrosen/tether/internal/tracing"
	"github.com/zjrosen/tether/internal/ui/window"
)

type harness struct {
	dir     string
	cfg     config.Config
	signals chan os.Signal
}

// newHarness writes script as the sidecar binary "server" into a temp dir.
// An empty script leaves the directory without a sidecar.
func newHarness(t *testing.T, script string) *harness {
	t.Helper()
	dir := t.TempDir()
	if script != "" {
		path := filepath.Join(dir, "server")
		require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755)) //nolint:gosec // test executable
	}

	cfg := config.Defaults()
	cfg.Sidecar.Dir = dir
	cfg.History.Path = filepath.Join(dir, "history.db")
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "file"
	cfg.Tracing.FilePath = filepath.Join(dir, "traces.jsonl")
	return &harness{dir: dir, cfg: cfg, signals: make(chan os.Signal, 1)}
}

func (h *harness) app() *App {
	return New(Options{
		Config:  h.cfg,
		Version: "1.0.0",
		Signals: h.signals,
		ProgramOptions: []tea.ProgramOption{
			tea.WithInput(nil),
			tea.WithOutput(io.Discard),
		},
	})
}

// start runs a in the background and waits until the window is starting.
func start(t *testing.T, a *App) <-chan Result {
	t.Helper()
	done := make(chan Result, 1)
	go func() { done <- a.Run(context.Background()) }()
	select {
	case <-a.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("app not ready")
	}
	return done
}

func wait(t *testing.T, done <-chan Result) Result {
	t.Helper()
	select {
	case res := <-done:
		return res
	case <-time.After(10 * time.Second):
		t.Fatal("run did not end")
		return Result{}
	}
}

func (h *harness) runs(t *testing.T) []history.Run {
	t.Helper()
	store, err := history.Open(h.cfg.History.Path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	runs, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	return runs
}

func TestRun_LaunchFailureExitsOneWithoutWindow(t *testing.T) {
	h := newHarness(t, "")

	res := h.app().Run(context.Background())

	require.Equal(t, 1, res.Code)
	require.False(t, res.Restart)
	require.ErrorIs(t, res.Err, sidecar.ErrExecutableNotFound)

	runs := h.runs(t)
	require.Len(t, runs, 1)
	require.Equal(t, string(sidecar.ReasonSpawnFailed), runs[0].Reason)
	require.NotEmpty(t, runs[0].Error)
}

// TestRun_SidecarExitEndsApplication verifies that the sidecar stopping on
// its own ends the application with status 1, whatever its own status was.
func TestRun_SidecarExitEndsApplication(t *testing.T) {
	h := newHarness(t, "echo ready\nsleep 0.2\nexit 0")

	res := wait(t, start(t, h.app()))

	require.Equal(t, 1, res.Code)
	require.False(t, res.Restart)

	runs := h.runs(t)
	require.Len(t, runs, 1)
	require.Equal(t, string(sidecar.ReasonTerminated), runs[0].Reason)
	require.NotNil(t, runs[0].ExitCode)
	require.Equal(t, 0, *runs[0].ExitCode)
	require.NotZero(t, runs[0].PID)
	require.NotEmpty(t, runs[0].Fingerprint)
	require.NotEmpty(t, runs[0].TraceID)
}

func TestRun_SignalRunsExitHook(t *testing.T) {
	h := newHarness(t, "echo ready\nexec sleep 30")
	a := h.app()
	done := start(t, a)

	h.signals <- syscall.SIGTERM
	res := wait(t, done)

	require.Equal(t, 0, res.Code)
	require.Equal(t, sidecar.StateShuttingDown, a.Supervisor().State())

	runs := h.runs(t)
	require.Equal(t, string(sidecar.ReasonExitRequested), runs[0].Reason)
}

func TestRun_CloseRequestStopsSidecarAndExitsZero(t *testing.T) {
	h := newHarness(t, "exec sleep 30")
	a := h.app()
	done := start(t, a)

	a.shell.mu.Lock()
	program := a.shell.program
	a.shell.mu.Unlock()
	program.Send(window.CloseRequestedMsg{})

	res := wait(t, done)
	require.Equal(t, 0, res.Code)
	require.False(t, res.Restart)
	require.Equal(t, string(sidecar.ReasonCloseRequested), h.runs(t)[0].Reason)
}

func TestRun_GracefulRestartRequestsRestart(t *testing.T) {
	h := newHarness(t, "exec sleep 30")
	a := h.app()
	done := start(t, a)

	_, err := a.Dispatcher().Invoke(context.Background(), commands.GracefulRestart, "")
	require.NoError(t, err)

	res := wait(t, done)
	require.Equal(t, 0, res.Code)
	require.True(t, res.Restart)
	require.Equal(t, string(sidecar.ReasonRestart), h.runs(t)[0].Reason)
}

func TestRun_ContextCancelEndsRun(t *testing.T) {
	h := newHarness(t, "exec sleep 30")
	h.cfg.History.Enabled = false
	a := h.app()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Result, 1)
	go func() { done <- a.Run(ctx) }()
	<-a.Ready()
	cancel()

	res := wait(t, done)
	require.Equal(t, 0, res.Code)
}

func TestRun_WritesRunSpan(t *testing.T) {
	h := newHarness(t, "echo one\necho two >&2\nsleep 0.2")

	_ = wait(t, start(t, h.app()))

	data, err := os.ReadFile(h.cfg.Tracing.FilePath)
	require.NoError(t, err)
	require.Contains(t, string(data), tracing.SpanSidecarRun)
	require.Contains(t, string(data), string(sidecar.ReasonTerminated))
}

func TestGreetThroughDispatcher(t *testing.T) {
	h := newHarness(t, "")
	a := h.app()
	t.Cleanup(a.close)

	got, err := a.Dispatcher().Invoke(context.Background(), commands.Greet, `{"name":"Ada"}`)
	require.NoError(t, err)
	require.Equal(t, "Hello, Ada! You've been greeted from Go!", got)
	require.Equal(t, []string{commands.GracefulRestart, commands.Greet}, a.Dispatcher().Names())
}
