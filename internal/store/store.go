package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// Sentinel errors for store operations.
var (
	ErrNotFound = errors.New("not found")
)

// Store is the module's local state, kept in a SQLite file next to the
// configuration (the -b/--bconfig path).
type Store struct {
	db *sql.DB
}

// New opens a SQLite database at the given path and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single connection keeps PRAGMAs and :memory: databases consistent.
	db.SetMaxOpenConns(1)

	if err := configurePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// InTx executes fn within a database transaction. If fn returns an error,
// the transaction is rolled back; otherwise it is committed.
func (s *Store) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}
	return tx.Commit()
}

func configurePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("exec %q: %w", p, err)
		}
	}
	return nil
}

// migrate runs all pending database migrations in order.
func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version    INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	err = s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for i, m := range migrations {
		version := i + 1
		if version <= currentVersion {
			continue
		}

		err := s.InTx(context.Background(), func(tx *sql.Tx) error {
			if err := m(tx); err != nil {
				return fmt.Errorf("migration %d: %w", version, err)
			}
			if _, err := tx.Exec("INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
				version, time.Now().Unix()); err != nil {
				return fmt.Errorf("record migration %d: %w", version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// migrations is an ordered list of migration functions.
var migrations = []func(*sql.Tx) error{
	migrateV1,
	migrateV2,
}

// migrateV1 creates the key/value table that replaces the module's local
// config file.
func migrateV1(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE TABLE local_field (
		name       TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`)
	return err
}

// migrateV2 adds the last announced party identity and the status history.
func migrateV2(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE party_identity (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			party_id   TEXT NOT NULL,
			group_id   TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,

		`CREATE TABLE status_history (
			id         TEXT PRIMARY KEY,
			previous   INTEGER NOT NULL,
			status     INTEGER NOT NULL,
			changed_at INTEGER NOT NULL
		)`,
		`CREATE INDEX idx_status_history_changed_at ON status_history (changed_at)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:min(len(stmt), 60)], err)
		}
	}
	return nil
}

// NewULID generates a new ULID. IDs from one process sort in creation order.
func NewULID() string {
	return ulid.Make().String()
}
