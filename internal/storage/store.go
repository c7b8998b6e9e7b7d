package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLStore implements KV over a SQLite or DuckDB database.
type SQLStore struct {
	db      *sql.DB
	ownsDB  bool
	dialect Dialect

	// Prepared statements
	getValue    *sql.Stmt
	upsertValue *sql.Stmt
	deleteValue *sql.Stmt
	listKeys    *sql.Stmt
}

// NewSQLStore creates a SQLStore from an already-opened and migrated database.
// The database is not closed by Close.
func NewSQLStore(db *sql.DB, dialect Dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: dialect}

	if err := s.prepareStatements(); err != nil {
		return nil, fmt.Errorf("prepare statements: %w", err)
	}

	return s, nil
}

// OpenOption customizes OpenSQLStore.
type OpenOption func(*MigrationRunner)

// WithJournalMode sets the SQLite journal mode applied when opening.
func WithJournalMode(mode string) OpenOption {
	return func(r *MigrationRunner) { r.SetJournalMode(mode) }
}

// OpenSQLStore opens the database at dsn with the given driver, runs the
// migrations and returns a store that owns the handle.
func OpenSQLStore(dialect Dialect, dsn string, opts ...OpenOption) (*SQLStore, error) {
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dialect == DialectSQLite {
		// One writer at a time; also keeps ":memory:" databases on a single connection.
		db.SetMaxOpenConns(1)
	}

	runner := NewMigrationRunner(db, dialect)
	for _, opt := range opts {
		opt(runner)
	}
	if err := runner.Run(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s, err := NewSQLStore(db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

func (s *SQLStore) prepareStatements() error {
	var err error

	s.getValue, err = s.db.Prepare(`SELECT store_value FROM kv WHERE store_key = ?`)
	if err != nil {
		return err
	}

	s.upsertValue, err = s.db.Prepare(`
		INSERT INTO kv (store_key, store_value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (store_key) DO UPDATE SET
			store_value = excluded.store_value,
			updated_at  = excluded.updated_at
	`)
	if err != nil {
		return err
	}

	s.deleteValue, err = s.db.Prepare(`DELETE FROM kv WHERE store_key = ?`)
	if err != nil {
		return err
	}

	s.listKeys, err = s.db.Prepare(`
		SELECT store_key FROM kv
		WHERE substr(store_key, 1, ?) = ?
		ORDER BY store_key
	`)
	if err != nil {
		return err
	}

	return nil
}

// DB exposes the underlying handle for size reporting.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Dialect reports the SQL engine in use.
func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

// Get returns the value stored under key, or ErrNotFound.
func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := s.getValue.QueryRowContext(ctx, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return []byte(value), nil
}

// Set stores value under key, replacing any previous value.
func (s *SQLStore) Set(ctx context.Context, key string, value []byte) error {
	ts := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.upsertValue.ExecContext(ctx, key, string(value), ts); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key returns ErrNotFound.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	res, err := s.deleteValue.ExecContext(ctx, key)
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Keys lists the keys starting with prefix in ascending order.
func (s *SQLStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.listKeys.QueryContext(ctx, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}

	return keys, rows.Err()
}

// Close releases all prepared statements, and the database when the store
// opened it.
func (s *SQLStore) Close() error {
	stmts := []*sql.Stmt{
		s.getValue, s.upsertValue, s.deleteValue, s.listKeys,
	}
	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
