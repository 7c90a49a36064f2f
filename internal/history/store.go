// Package history keeps a SQLite ledger of sidecar runs: when each worker
// was launched, which binary it was, and why and how it stopped.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver" // registers "sqlite3"
	_ "github.com/ncruces/go-sqlite3/embed"  // bundled SQLite build

	"github.com/zjrosen/tether/internal/log"
	"github.com/zjrosen/tether/internal/sidecar"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("history: run not found")

// Run is one sidecar lifetime.
type Run struct {
	ID          string     `json:"id" yaml:"id"`
	Executable  string     `json:"executable" yaml:"executable"`
	Fingerprint string     `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
	PID         int        `json:"pid,omitempty" yaml:"pid,omitempty"`
	StartedAt   time.Time  `json:"started_at" yaml:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty" yaml:"ended_at,omitempty"`
	Reason      string     `json:"reason,omitempty" yaml:"reason,omitempty"`
	ExitCode    *int       `json:"exit_code,omitempty" yaml:"exit_code,omitempty"`
	Signal      string     `json:"signal,omitempty" yaml:"signal,omitempty"`
	Error       string     `json:"error,omitempty" yaml:"error,omitempty"`
	TraceID     string     `json:"trace_id,omitempty" yaml:"trace_id,omitempty"`
}

// Running reports whether no exit has been recorded.
func (r Run) Running() bool {
	return r.Reason == ""
}

// Duration is the run length, measured up to now while still running.
func (r Run) Duration() time.Duration {
	if r.EndedAt == nil {
		return time.Since(r.StartedAt)
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Store is the run ledger.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path and applies pending
// migrations. An existing file is copied to path+".bak" first.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("history: creating directory: %w", err)
	}
	if err := backup(path); err != nil {
		return nil, fmt.Errorf("history: backing up database: %w", err)
	}

	dsn := "file:" + filepath.ToSlash(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: opening %s: %w", path, err)
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Debug(log.CatHistory, "History database opened", "path", path)
	return &Store{db: db, now: time.Now}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("history: loading migrations: %w", err)
	}
	drv, err := newMigrateDriver(db)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", drv)
	if err != nil {
		return fmt.Errorf("history: preparing migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("history: applying migrations: %w", err)
	}
	return nil
}

func backup(path string) error {
	src, err := os.Open(path) //nolint:gosec // G304: configured history path
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(path+".bak", os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600) //nolint:gosec // G304: sibling of the history path
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordLaunch inserts a run for a successfully spawned worker.
func (s *Store) RecordLaunch(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("history: run id is required")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, executable, fingerprint, pid, started_at, trace_id) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Executable, nullString(run.Fingerprint), run.PID, run.StartedAt.UnixMilli(), nullString(run.TraceID),
	)
	if err != nil {
		return fmt.Errorf("history: recording launch: %w", err)
	}
	return nil
}

// RecordSpawnFailure inserts an already finished run for a worker that
// could not be started.
func (s *Store) RecordSpawnFailure(ctx context.Context, id, executable string, cause error) error {
	now := s.now().UnixMilli()
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, executable, started_at, ended_at, reason, error) VALUES (?, ?, ?, ?, ?, ?)`,
		id, executable, now, now, string(sidecar.ReasonSpawnFailed), msg,
	)
	if err != nil {
		return fmt.Errorf("history: recording spawn failure: %w", err)
	}
	return nil
}

// RecordExit stores why and how a run ended. Only the first exit recorded
// for a run is kept; later calls for the same run are no-ops.
func (s *Store) RecordExit(ctx context.Context, id string, reason sidecar.ExitReason, status sidecar.ExitStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET ended_at = ?, reason = ?, exit_code = ?, signal = ? WHERE id = ? AND reason IS NULL`,
		s.now().UnixMilli(), string(reason), status.Code, nullString(status.Signal), id,
	)
	if err != nil {
		return fmt.Errorf("history: recording exit: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	log.Debug(log.CatHistory, "exit already recorded", "run", id, "reason", reason)
	return nil
}

const runColumns = `id, executable, fingerprint, pid, started_at, ended_at, reason, exit_code, signal, error, trace_id`

// Get returns a single run.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("history: reading run: %w", err)
	}
	return run, nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("history: reading run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(scanner interface{ Scan(...any) error }) (Run, error) {
	var (
		run                                       Run
		fingerprint, reason, signal, msg, traceID sql.NullString
		pid, endedAt, exitCode                    sql.NullInt64
		startedAt                                 int64
	)
	err := scanner.Scan(&run.ID, &run.Executable, &fingerprint, &pid, &startedAt,
		&endedAt, &reason, &exitCode, &signal, &msg, &traceID)
	if err != nil {
		return Run{}, err
	}
	run.Fingerprint = fingerprint.String
	run.PID = int(pid.Int64)
	run.StartedAt = time.UnixMilli(startedAt)
	if endedAt.Valid {
		t := time.UnixMilli(endedAt.Int64)
		run.EndedAt = &t
	}
	run.Reason = reason.String
	if exitCode.Valid {
		code := int(exitCode.Int64)
		run.ExitCode = &code
	}
	run.Signal = signal.String
	run.Error = msg.String
	run.TraceID = traceID.String
	return run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
