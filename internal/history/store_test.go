package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/tether/internal/sidecar"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// TestOpen_CreatesDirectory verifies the parent directory is created private.
func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "history.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	require.True(t, info.IsDir())
	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0o700), info.Mode().Perm())
	}
}

func TestOpen_RunsMigrations(t *testing.T) {
	s := openTestStore(t)

	var name string
	err := s.db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='runs'`).Scan(&name)
	require.NoError(t, err)
	require.Equal(t, "runs", name)

	drv, err := newMigrateDriver(s.db)
	require.NoError(t, err)
	version, dirty, err := drv.Version()
	require.NoError(t, err)
	require.Equal(t, 2, version)
	require.False(t, dirty)
}

// TestOpen_ReopenKeepsDataAndBacksUp verifies a second Open is a no-op
// migration and leaves a .bak copy.
func TestOpen_ReopenKeepsDataAndBacksUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.RecordLaunch(ctx, Run{ID: "r1", Executable: "/bin/server", PID: 10}))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	run, err := s2.Get(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, 10, run.PID)

	info, err := os.Stat(path + ".bak")
	require.NoError(t, err)
	require.Positive(t, info.Size())
}

func TestOpen_WALMode(t *testing.T) {
	s := openTestStore(t)

	var mode string
	require.NoError(t, s.db.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	require.Equal(t, "wal", mode)
}

func TestRecordLaunch_ThenExit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	started := time.UnixMilli(time.Now().UnixMilli())

	require.NoError(t, s.RecordLaunch(ctx, Run{
		ID: "run-1", Executable: "/opt/server", Fingerprint: "abcd", PID: 99, StartedAt: started, TraceID: "t1",
	}))

	run, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, run.Running())
	require.Nil(t, run.EndedAt)
	require.Equal(t, started, run.StartedAt)
	require.Equal(t, "abcd", run.Fingerprint)
	require.Equal(t, "t1", run.TraceID)

	require.NoError(t, s.RecordExit(ctx, "run-1", sidecar.ReasonTerminated, sidecar.ExitStatus{Code: 3}))

	run, err = s.Get(ctx, "run-1")
	require.NoError(t, err)
	require.False(t, run.Running())
	require.Equal(t, "terminated", run.Reason)
	require.NotNil(t, run.ExitCode)
	require.Equal(t, 3, *run.ExitCode)
	require.Empty(t, run.Signal)
	require.NotNil(t, run.EndedAt)
}

// TestRecordExit_FirstReasonWins verifies a hook racing the relay cannot
// overwrite the recorded reason.
func TestRecordExit_FirstReasonWins(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.RecordLaunch(ctx, Run{ID: "run-2", Executable: "/opt/server"}))

	require.NoError(t, s.RecordExit(ctx, "run-2", sidecar.ReasonCloseRequested, sidecar.ExitStatus{Code: -1, Signal: "killed"}))
	require.NoError(t, s.RecordExit(ctx, "run-2", sidecar.ReasonTerminated, sidecar.ExitStatus{Code: -1, Signal: "SIGKILL"}))

	run, err := s.Get(ctx, "run-2")
	require.NoError(t, err)
	require.Equal(t, "close_requested", run.Reason)
	require.Equal(t, "killed", run.Signal)
}

func TestRecordExit_UnknownRun(t *testing.T) {
	s := openTestStore(t)

	err := s.RecordExit(context.Background(), "nope", sidecar.ReasonDestroyed, sidecar.ExitStatus{})
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestRecordSpawnFailure(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordSpawnFailure(ctx, "run-3", "/missing/server", errors.New("no such file")))

	run, err := s.Get(ctx, "run-3")
	require.NoError(t, err)
	require.Equal(t, "spawn_failed", run.Reason)
	require.Equal(t, "no such file", run.Error)
	require.Zero(t, run.PID)
	require.Nil(t, run.ExitCode)
	require.Zero(t, run.Duration())
}

func TestRecent_NewestFirstWithLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.RecordLaunch(ctx, Run{
			ID: id, Executable: "/opt/server", StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	runs, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "c", runs[0].ID)
	require.Equal(t, "b", runs[1].ID)

	all, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestRecordLaunch_RequiresID(t *testing.T) {
	s := openTestStore(t)
	require.Error(t, s.RecordLaunch(context.Background(), Run{Executable: "/x"}))
}

func TestNewRunID_Unique(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	require.Len(t, a, 36)
	require.NotEqual(t, a, b)
}

func TestMigrateDriver_Lock(t *testing.T) {
	s := openTestStore(t)
	drv, err := newMigrateDriver(s.db)
	require.NoError(t, err)

	require.NoError(t, drv.Lock())
	require.Error(t, drv.Lock())
	require.NoError(t, drv.Unlock())
	require.Error(t, drv.Unlock())
}
