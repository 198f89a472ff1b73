// Package store is the Store component: an embedded SQLite database holding
// the four rating tables, opened and migrated the way the teacher's
// internal/database package opens its own embedded database.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // pure-Go driver, used for the primary connection
)

// defaultBusyTimeoutMS is the historical-write-path busy timeout (spec.md
// §4.4: 30s). Accuracy writes borrow a shorter timeout to limit hold time;
// see AccuracyRepository.
const defaultBusyTimeoutMS = 30000

// cachePagesKB is a 64MB page cache expressed as SQLite's negative-KB pragma
// form (spec.md §4.4).
const cachePagesKB = -65536

// Store wraps the database connection shared by every repository.
type Store struct {
	conn *sql.DB
	path string
	log  zerolog.Logger
}

// Open creates (or reuses) the SQLite file at dbPath, enables WAL journaling,
// the 30s busy timeout and the 64MB page cache, then runs schema migration.
func Open(dbPath string, log zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf(
		"%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=cache_size(%d)&_pragma=foreign_keys(1)",
		dbPath, defaultBusyTimeoutMS, cachePagesKB,
	)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// A single physical WAL file is the whole point; writers serialize on
	// SQLite's own lock rather than the connection pool, but modernc's
	// driver is happier with a bounded idle pool under concurrent use.
	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(4)

	st := &Store{conn: conn, path: dbPath, log: log.With().Str("component", "store").Logger()}
	if err := ensureSchema(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return st, nil
}

// Conn exposes the underlying *sql.DB for repositories and ad-hoc queries.
func (s *Store) Conn() *sql.DB { return s.conn }

// Close closes the underlying connection.
func (s *Store) Close() error { return s.conn.Close() }
