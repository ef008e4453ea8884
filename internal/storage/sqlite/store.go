// Package sqlite implements the storage interfaces on a single local
// SQLite file. The store serializes its own writes; read-only consumers
// (state reconstructor, timeline endpoint) share the same handle.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// timeFormat is the stored UTC timestamp representation. Fixed-width
// fractional seconds keep string comparison equivalent to time comparison.
const timeFormat = "2006-01-02 15:04:05.000000"

// Store is the SQLite-backed event log and snapshot store.
type Store struct {
	db     *sql.DB
	dbPath string
	closed atomic.Bool
}

// Open opens (creating if necessary) the database at path and initializes
// the schema. Use ":memory:" for an in-process database in tests.
func Open(ctx context.Context, path string) (*Store, error) {
	var connStr string
	switch {
	case path == ":memory:":
		// Shared in-memory databases don't support WAL; a single pooled
		// connection keeps every statement on the same database.
		connStr = "file::memory:?mode=memory&_pragma=foreign_keys(ON)&_pragma=busy_timeout(10000)"
	case strings.HasPrefix(path, "file:"):
		connStr = path
		if !strings.Contains(path, "_pragma=foreign_keys") {
			connStr += "&_pragma=foreign_keys(ON)&_pragma=busy_timeout(10000)"
		}
	default:
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		connStr = "file:" + path + "?_pragma=foreign_keys(ON)&_pragma=busy_timeout(10000)"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	isInMemory := path == ":memory:" || strings.Contains(path, "mode=memory")
	if isInMemory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		// WAL supports one writer plus concurrent readers.
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(0)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &Store{db: db, dbPath: path}, nil
}

// Close checkpoints the WAL and closes the database.
func (s *Store) Close() error {
	s.closed.Store(true)
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// Path returns the database path the store was opened with.
func (s *Store) Path() string {
	return s.dbPath
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	// created_at written by SQLite itself has second precision.
	for _, layout := range []string{timeFormat, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse stored timestamp %q", s)
}
