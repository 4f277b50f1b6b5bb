package kv

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"

	"go.trai.ch/tally/internal/core/domain"
	"go.trai.ch/tally/internal/core/ports"
	"go.trai.ch/zerr"

	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key     TEXT PRIMARY KEY,
	value   BLOB NOT NULL,
	version INTEGER NOT NULL
)`

// SQLite is a StateStore on a SQLite database. Compare-and-swap is a
// conditional UPDATE on the version column, safe across processes.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, zerr.Wrap(domain.ErrStoreReadFailed, "sqlite path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "open sqlite db"), "path", path)
	}
	// One writer per process; other processes are serialized by SQLite's lock.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, zerr.With(zerr.Wrap(err, "ping sqlite db"), "path", path)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, zerr.With(zerr.Wrap(err, "create kv schema"), "path", path)
	}
	return &SQLite{db: db}, nil
}

// Get implements ports.StateStore.
func (s *SQLite) Get(ctx context.Context, key string) (ports.Record, bool, error) {
	var rec ports.Record
	err := s.db.QueryRowContext(ctx, `SELECT value, version FROM kv WHERE key = ?`, key).Scan(&rec.Value, &rec.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.Record{}, false, nil
	}
	if err != nil {
		return ports.Record{}, false, zerr.With(zerr.Wrap(domain.ErrStoreReadFailed, err.Error()), "key", key)
	}
	return rec, true, nil
}

// CompareAndSwap implements ports.StateStore.
func (s *SQLite) CompareAndSwap(ctx context.Context, key string, expected uint64, value []byte) (uint64, bool, error) {
	var (
		res sql.Result
		err error
	)
	if expected == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO kv (key, value, version) VALUES (?, ?, 1) ON CONFLICT(key) DO NOTHING`,
			key, value)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE kv SET value = ?, version = version + 1 WHERE key = ? AND version = ?`,
			value, key, expected)
	}
	if err != nil {
		return 0, false, zerr.With(zerr.Wrap(domain.ErrStoreWriteFailed, err.Error()), "key", key)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, zerr.With(zerr.Wrap(domain.ErrStoreWriteFailed, err.Error()), "key", key)
	}
	if n == 0 {
		return 0, false, nil
	}
	return expected + 1, true, nil
}

// Put implements ports.StateStore.
func (s *SQLite) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, version) VALUES (?, ?, 1)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, version = kv.version + 1`,
		key, value)
	if err != nil {
		return zerr.With(zerr.Wrap(domain.ErrStoreWriteFailed, err.Error()), "key", key)
	}
	return nil
}

// Delete implements ports.StateStore.
func (s *SQLite) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return zerr.Wrap(domain.ErrStoreWriteFailed, err.Error())
	}
	defer func() { _ = tx.Rollback() }()

	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, k); err != nil {
			return zerr.With(zerr.Wrap(domain.ErrStoreWriteFailed, err.Error()), "key", k)
		}
	}
	if err := tx.Commit(); err != nil {
		return zerr.Wrap(domain.ErrStoreWriteFailed, err.Error())
	}
	return nil
}

// Keys implements ports.StateStore.
func (s *SQLite) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM kv WHERE substr(key, 1, length(?1)) = ?1`, prefix)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrStoreReadFailed, err.Error()), "prefix", prefix)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, zerr.Wrap(domain.ErrStoreReadFailed, err.Error())
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, zerr.Wrap(domain.ErrStoreReadFailed, err.Error())
	}
	return keys, nil
}

// Close implements ports.StateStore.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
