package nonce

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS nonces (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0
)`

// SQLiteStore is a Store backed by a local SQLite database. Consume and Incr
// are single conditional upsert statements, so each is atomic.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("nonce: create directory: %w", err)
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("nonce: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("nonce: create schema: %w", err)
	}

	return &SQLiteStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

// expiresAt returns the stored expiry in unix nanoseconds; 0 never expires.
func (s *SQLiteStore) expiresAt(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return s.now().Add(ttl).UnixNano()
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM nonces WHERE key = ? AND (expires_at = 0 OR expires_at > ?)`,
		key, s.now().UnixNano()).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("nonce: sqlite get: %w", err)
	}
	return v, nil
}

func (s *SQLiteStore) SetTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO nonces (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, s.expiresAt(ttl))
	if err != nil {
		return fmt.Errorf("nonce: sqlite set: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Consume(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := s.now().UnixNano()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO nonces (key, value, expires_at) VALUES (?, 'consumed', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
		 WHERE nonces.expires_at != 0 AND nonces.expires_at <= ?`,
		key, s.expiresAt(ttl), now)
	if err != nil {
		return false, fmt.Errorf("nonce: sqlite consume: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("nonce: sqlite consume: %w", err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	now := s.now().UnixNano()
	var v string
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO nonces (key, value, expires_at) VALUES (?, '1', ?)
		 ON CONFLICT(key) DO UPDATE SET
		   value = CASE WHEN nonces.expires_at != 0 AND nonces.expires_at <= ?
		                THEN '1' ELSE CAST(CAST(nonces.value AS INTEGER) + 1 AS TEXT) END,
		   expires_at = CASE WHEN nonces.expires_at != 0 AND nonces.expires_at <= ?
		                THEN excluded.expires_at ELSE nonces.expires_at END
		 RETURNING value`,
		key, s.expiresAt(ttl), now, now).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("nonce: sqlite incr: %w", err)
	}
	return strconv.ParseInt(v, 10, 64)
}

// Purge deletes expired rows.
func (s *SQLiteStore) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM nonces WHERE expires_at != 0 AND expires_at <= ?`, s.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("nonce: sqlite purge: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
