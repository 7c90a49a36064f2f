package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/golang-migrate/migrate/v4/database"
)

const migrationsTable = "schema_migrations"

// migrateDriver is a golang-migrate database.Driver over an already open
// ncruces/go-sqlite3 connection. Close leaves the connection open; the
// Store owns it.
type migrateDriver struct {
	db     *sql.DB
	locked atomic.Bool
}

var _ database.Driver = (*migrateDriver)(nil)

func newMigrateDriver(db *sql.DB) (*migrateDriver, error) {
	d := &migrateDriver{db: db}
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS ` + migrationsTable + ` (version INTEGER NOT NULL, dirty INTEGER NOT NULL)`)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", migrationsTable, err)
	}
	return d, nil
}

func (d *migrateDriver) Open(string) (database.Driver, error) {
	return nil, fmt.Errorf("history: migrate driver only supports an existing connection")
}

func (d *migrateDriver) Close() error { return nil }

func (d *migrateDriver) Lock() error {
	if !d.locked.CompareAndSwap(false, true) {
		return database.ErrLocked
	}
	return nil
}

func (d *migrateDriver) Unlock() error {
	if !d.locked.CompareAndSwap(true, false) {
		return database.ErrNotLocked
	}
	return nil
}

func (d *migrateDriver) Run(migration io.Reader) error {
	script, err := io.ReadAll(migration)
	if err != nil {
		return err
	}
	if _, err := d.db.Exec(string(script)); err != nil {
		return database.Error{OrigErr: err, Err: "migration failed", Query: script}
	}
	return nil
}

func (d *migrateDriver) SetVersion(version int, dirty bool) error {
	tx, err := d.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM ` + migrationsTable); err != nil {
		return err
	}
	// NilVersion with a clean state leaves the table empty.
	if version >= 0 || dirty {
		if _, err := tx.Exec(`INSERT INTO `+migrationsTable+` (version, dirty) VALUES (?, ?)`, version, dirty); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (d *migrateDriver) Version() (int, bool, error) {
	var version int
	var dirty bool
	err := d.db.QueryRow(`SELECT version, dirty FROM ` + migrationsTable + ` LIMIT 1`).Scan(&version, &dirty)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return database.NilVersion, false, nil
	case err != nil:
		return 0, false, err
	}
	return version, dirty, nil
}

func (d *migrateDriver) Drop() error {
	rows, err := d.db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return err
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return err
		}
		tables = append(tables, name)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, name := range tables {
		if _, err := d.db.Exec(`DROP TABLE IF EXISTS "` + name + `"`); err != nil {
			return err
		}
	}
	return nil
}
