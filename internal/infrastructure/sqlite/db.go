// Package sqlite provides the durable storage layer for switchyard using
// raw database/sql over a SQLite file. Repositories hydrate and persist the
// domain entities; schema lifecycle is managed by embedded migrations.
package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/fiberline/switchyard/internal/log"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// DB wraps the SQLite connection and provides repository accessors.
type DB struct {
	conn *sql.DB
}

// NewDB opens (creating if needed) the database at path, applies pragmas,
// backs up an existing file to path+".bak", and runs pending migrations.
// Parent directories are created with 0700 permissions.
func NewDB(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	// Back up the existing file before migrations touch it. A failed
	// migration leaves the .bak as the recovery point.
	if _, err := os.Stat(path); err == nil {
		if err := copyFile(path, path+".bak"); err != nil {
			return nil, fmt.Errorf("backing up database: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(wal)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if err := runMigrations(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	log.Debug(log.CatDB, "database opened", "path", path)
	return &DB{conn: conn}, nil
}

// runMigrations applies pending embedded migrations against the connection.
func runMigrations(conn *sql.DB) error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(conn, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // G304: src is the operator-configured db path
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600) //nolint:gosec // G304: derived from db path
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	_, err = io.Copy(out, in)
	return err
}

// Connection returns the underlying *sql.DB.
func (d *DB) Connection() *sql.DB {
	return d.conn
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// WorkflowRepository returns the workflow repository bound to the connection.
func (d *DB) WorkflowRepository() *WorkflowRepository {
	return NewWorkflowRepository(d.conn)
}

// StepRepository returns the step repository bound to the connection.
func (d *DB) StepRepository() *StepRepository {
	return NewStepRepository(d.conn)
}

// ServiceRepository returns the service repository bound to the connection.
func (d *DB) ServiceRepository() *ServiceRepository {
	return NewServiceRepository(d.conn)
}

// ProfileRepository returns the profile repository bound to the connection.
func (d *DB) ProfileRepository() *ProfileRepository {
	return NewProfileRepository(d.conn)
}

// EventRepository returns the event repository bound to the connection.
func (d *DB) EventRepository() *EventRepository {
	return NewEventRepository(d.conn)
}

// Begin starts a transaction whose repository accessors stage writes on the
// transaction. The service orchestrator uses this to batch a termination
// with its embedded IPv6 revoke into a single atomic unit.
func (d *DB) Begin() (*Tx, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Tx is an open transaction exposing the same repositories bound to it.
type Tx struct {
	tx *sql.Tx
}

// Commit commits the transaction.
func (t *Tx) Commit() error { return t.tx.Commit() }

// Rollback aborts the transaction. Safe to defer after Commit.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// WorkflowRepository returns the workflow repository bound to this transaction.
func (t *Tx) WorkflowRepository() *WorkflowRepository {
	return NewWorkflowRepository(t.tx)
}

// StepRepository returns the step repository bound to this transaction.
func (t *Tx) StepRepository() *StepRepository {
	return NewStepRepository(t.tx)
}

// ServiceRepository returns the service repository bound to this transaction.
func (t *Tx) ServiceRepository() *ServiceRepository {
	return NewServiceRepository(t.tx)
}

// ProfileRepository returns the profile repository bound to this transaction.
func (t *Tx) ProfileRepository() *ProfileRepository {
	return NewProfileRepository(t.tx)
}

// EventRepository returns the event repository bound to this transaction.
func (t *Tx) EventRepository() *EventRepository {
	return NewEventRepository(t.tx)
}

// executor is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Repositories are bound to one so the same code serves both autocommit and
// caller-owned transactions.
type executor interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}
