//go:build unix

package sidecar

import (
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func shellLauncher(t *testing.T, script string, cfg LaunchConfig) *Launcher {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	if cfg.Executable == "" {
		cfg.Executable = "sh"
	}
	return NewLauncher(cfg, WithCommandFactory(func(string, ...string) *exec.Cmd {
		return exec.Command("sh", "-c", script)
	}))
}

// collect drains events until the stream closes or the timeout fires.
func collect(t *testing.T, p *Process, timeout time.Duration) []Event {
	t.Helper()
	var out []Event
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-p.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("timed out after %d events", len(out))
			return nil
		}
	}
}

func linesOf(events []Event, kind EventKind) []string {
	var out []string
	for _, ev := range events {
		if ev.Kind == kind {
			out = append(out, ev.Text())
		}
	}
	return out
}

func TestLauncher_MissingExecutable(t *testing.T) {
	l := NewLauncher(LaunchConfig{Executable: filepath.Join(t.TempDir(), "does-not-exist")})

	p, err := l.Launch()

	require.Error(t, err)
	require.Nil(t, p)
	require.Contains(t, err.Error(), "failed to start")
}

func TestLauncher_EmptyExecutable(t *testing.T) {
	_, err := NewLauncher(LaunchConfig{}).Launch()
	require.Error(t, err)
}

func TestLauncher_EventsInOrder_TerminatedLast(t *testing.T) {
	l := shellLauncher(t, "echo one; echo two; echo oops 1>&2; echo three; exit 3", LaunchConfig{})

	p, err := l.Launch()
	require.NoError(t, err)
	require.Positive(t, p.PID())

	events := collect(t, p, 5*time.Second)
	require.NotEmpty(t, events)

	require.Equal(t, []string{"one", "two", "three"}, linesOf(events, EventStdout))
	require.Equal(t, []string{"oops"}, linesOf(events, EventStderr))

	last := events[len(events)-1]
	require.Equal(t, EventTerminated, last.Kind)
	require.Equal(t, 3, last.Status.Code)
	for _, ev := range events[:len(events)-1] {
		require.NotEqual(t, EventTerminated, ev.Kind, "terminated is emitted once, last")
	}

	status, ok := p.ExitStatus()
	require.True(t, ok)
	require.Equal(t, 3, status.Code)
	<-p.Done()
}

func TestLauncher_Terminate_KillsProcess(t *testing.T) {
	l := shellLauncher(t, "echo ready; exec sleep 30", LaunchConfig{})

	p, err := l.Launch()
	require.NoError(t, err)

	select {
	case ev := <-p.Events():
		require.Equal(t, "ready", ev.Text())
	case <-time.After(5 * time.Second):
		t.Fatal("no output from sidecar")
	}

	start := time.Now()
	require.NoError(t, p.Terminate())

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process not reaped after terminate")
	}
	require.Less(t, time.Since(start), 5*time.Second)

	status, ok := p.ExitStatus()
	require.True(t, ok)
	require.Equal(t, unix.SignalName(unix.SIGKILL), status.Signal)

	// Second call is a no-op returning the first result.
	require.NoError(t, p.Terminate())
}

// TestLauncher_Terminate_KillsGroup verifies children of the worker die
// with it. The background sleep inherits stdout, so the stream only ends
// once it is gone too.
func TestLauncher_Terminate_KillsGroup(t *testing.T) {
	l := shellLauncher(t, "sleep 30 & echo ready; wait", LaunchConfig{})

	p, err := l.Launch()
	require.NoError(t, err)
	select {
	case <-p.Events():
	case <-time.After(5 * time.Second):
		t.Fatal("no output from sidecar")
	}

	require.NoError(t, p.Terminate())

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("stream still open, child outlived the worker")
	}
}

func TestLauncher_AfterExit_TerminateReportsAlreadyTerminated(t *testing.T) {
	l := shellLauncher(t, "exit 0", LaunchConfig{})

	p, err := l.Launch()
	require.NoError(t, err)
	collect(t, p, 5*time.Second)

	require.ErrorIs(t, p.Terminate(), ErrAlreadyTerminated)
}

func TestLauncher_LongLines_AreSplit(t *testing.T) {
	l := shellLauncher(t, "printf 'abcdefghij\\n'; printf 'wxyz\\n'", LaunchConfig{LineLimit: 4})

	p, err := l.Launch()
	require.NoError(t, err)

	events := collect(t, p, 5*time.Second)
	require.Equal(t, []string{"abcd", "efgh", "ij", "wxyz"}, linesOf(events, EventStdout))
}

func TestLauncher_InvalidUTF8_DecodedLossily(t *testing.T) {
	l := shellLauncher(t, "printf 'ok\\377\\n'", LaunchConfig{})

	p, err := l.Launch()
	require.NoError(t, err)

	events := collect(t, p, 5*time.Second)
	lines := linesOf(events, EventStdout)
	require.Len(t, lines, 1)
	require.Equal(t, "ok�", lines[0])
}

func TestLauncher_Env_IsPassedToWorker(t *testing.T) {
	l := shellLauncher(t, "echo $TETHER_TEST_VALUE", LaunchConfig{Env: []string{"TETHER_TEST_VALUE=hello"}})

	p, err := l.Launch()
	require.NoError(t, err)

	events := collect(t, p, 5*time.Second)
	require.Equal(t, []string{"hello"}, linesOf(events, EventStdout))
}
