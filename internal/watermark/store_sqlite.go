// Package watermark — SQLite-backed durable Store.
//
// # WAL mode
//
// The database is opened with PRAGMA journal_mode = WAL so that a concurrent
// reader (an operator inspecting the watermark with a separate sqlite3
// client while the daemon runs) does not block the daemon's own writes.
//
// # Atomic replace
//
// The table holds exactly one logical row (id = 1). Save runs inside a single
// transaction that upserts that row, giving the same all-or-nothing
// visibility as the write-temp-then-rename contract in spec.md §6 without
// needing a second file on disk.
package watermark

import (
	"database/sql"
	"fmt"

	"github.com/zenjabba/cephgeorep/internal/rctime"
	_ "modernc.org/sqlite" // registers the "sqlite" driver with database/sql
)

// SQLiteStore is a WAL-mode SQLite-backed [Store] holding a single watermark
// row. It is safe for concurrent use.
type SQLiteStore struct {
	db *sql.DB
}

// ddl is the schema for the single-row watermark table.
const ddl = `
CREATE TABLE IF NOT EXISTS last_rctime (
    id   INTEGER PRIMARY KEY CHECK (id = 1),
    sec  INTEGER NOT NULL,
    nsec INTEGER NOT NULL
);
`

// OpenSQLiteStore opens (or creates) the SQLite database at path and applies
// the schema. If path is ":memory:", an in-memory database is used — useful
// for tests, but the watermark is lost when the store is closed.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("watermark: sqlite open %q: %w", path, err)
	}

	// SQLite allows only one writer at a time; a single pooled connection
	// avoids "database is locked" errors and matches this store's one-row,
	// low-frequency write pattern (at most once per hour in steady state).
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("watermark: sqlite set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA synchronous = NORMAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("watermark: sqlite set synchronous=NORMAL: %w", err)
	}
	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("watermark: sqlite apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Load implements Store. If no row has ever been saved, it returns
// rctime.Zero and a nil error.
func (s *SQLiteStore) Load() (rctime.Time, error) {
	var sec, nsec int64
	err := s.db.QueryRow(`SELECT sec, nsec FROM last_rctime WHERE id = 1`).Scan(&sec, &nsec)
	switch {
	case err == sql.ErrNoRows:
		return rctime.Zero, nil
	case err != nil:
		return rctime.Time{}, fmt.Errorf("watermark: sqlite load: %w", err)
	default:
		return rctime.Time{Sec: sec, Nsec: nsec}, nil
	}
}

// Save implements Store via an atomic upsert of the single watermark row.
func (s *SQLiteStore) Save(t rctime.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO last_rctime (id, sec, nsec) VALUES (1, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET sec = excluded.sec, nsec = excluded.nsec`,
		t.Sec, t.Nsec,
	)
	if err != nil {
		return fmt.Errorf("watermark: sqlite save: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
