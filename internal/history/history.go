// Package history is a supplemental session-history accelerator: a small
// SQLite-backed log of prior opens, keyed by info-hash, so a warm-start
// open (spec.md §8 scenario 2) can short-circuit straight to "this magnet
// was seen before" without touching the Cache Store's file probing.
// Purely diagnostic — TorrentAccess never requires it to be present.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a session-history accelerator backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at dsn. Use ":memory:" for
// an in-memory store, typically in tests.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS sessions (
  info_hash TEXT PRIMARY KEY,
  display_name TEXT,
  location TEXT,
  last_opened_at DATETIME,
  last_closed_at DATETIME,
  open_count INTEGER NOT NULL DEFAULT 0,
  last_offset INTEGER NOT NULL DEFAULT 0
);
`
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("history: init schema: %w", err)
	}
	return nil
}

// RecordOpen upserts a session row, incrementing open_count and bumping
// last_opened_at.
func (s *Store) RecordOpen(infoHash, displayName, location string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
INSERT INTO sessions(info_hash, display_name, location, last_opened_at, open_count)
VALUES(?, ?, ?, ?, 1)
ON CONFLICT(info_hash) DO UPDATE SET
  display_name=excluded.display_name,
  location=excluded.location,
  last_opened_at=excluded.last_opened_at,
  open_count=sessions.open_count + 1`,
		infoHash, displayName, location, now)
	if err != nil {
		return fmt.Errorf("history: record open: %w", err)
	}
	return nil
}

// RecordClose stamps last_closed_at for a previously-opened session.
func (s *Store) RecordClose(infoHash string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`UPDATE sessions SET last_closed_at = ? WHERE info_hash = ?`, now, infoHash)
	if err != nil {
		return fmt.Errorf("history: record close: %w", err)
	}
	return nil
}

// RecordOffset stamps the last playback offset reached for infoHash, used
// as a resume-seek hint on a future warm-start open. It is a hint only:
// the authoritative resume state is the bencoded resume blob in the Cache
// Store, not this row.
func (s *Store) RecordOffset(infoHash string, offset int64) error {
	_, err := s.db.Exec(`UPDATE sessions SET last_offset = ? WHERE info_hash = ?`, offset, infoHash)
	if err != nil {
		return fmt.Errorf("history: record offset: %w", err)
	}
	return nil
}

// Entry is one row of session history.
type Entry struct {
	InfoHash     string
	DisplayName  string
	Location     string
	OpenCount    int
	LastOpenedAt time.Time
	LastOffset   int64
}

// SeenBefore reports whether infoHash has a recorded prior open, which
// TorrentAccess.Open uses as a hint that a warm-start is likely.
func (s *Store) SeenBefore(infoHash string) (bool, error) {
	row := s.db.QueryRow(`SELECT 1 FROM sessions WHERE info_hash = ?`, infoHash)
	var dummy int
	if err := row.Scan(&dummy); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("history: seen before: %w", err)
	}
	return true, nil
}

// Lookup fetches the recorded row for infoHash, including the last-offset
// resume-seek hint. ok is false if infoHash has never been opened.
func (s *Store) Lookup(infoHash string) (Entry, bool, error) {
	row := s.db.QueryRow(`
SELECT info_hash, display_name, location, open_count, last_opened_at, last_offset
FROM sessions WHERE info_hash = ?`, infoHash)
	var e Entry
	if err := row.Scan(&e.InfoHash, &e.DisplayName, &e.Location, &e.OpenCount, &e.LastOpenedAt, &e.LastOffset); err != nil {
		if err == sql.ErrNoRows {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("history: lookup: %w", err)
	}
	return e, true, nil
}

// Recent returns the most recently opened sessions, most recent first.
func (s *Store) Recent(limit int) ([]Entry, error) {
	rows, err := s.db.Query(`
SELECT info_hash, display_name, location, open_count, last_opened_at, last_offset
FROM sessions ORDER BY last_opened_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.InfoHash, &e.DisplayName, &e.Location, &e.OpenCount, &e.LastOpenedAt, &e.LastOffset); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
