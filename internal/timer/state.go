// Package timer persists the elapsed-time display's state so it
// survives reloads. The stored values are advisory only and never
// contribute to a completion record.
package timer

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// State is one session's elapsed-time display state.
type State struct {
	SessionID   string        `json:"session_id"`
	IsRunning   bool          `json:"is_running"`
	StartedAt   time.Time     `json:"started_at"`
	Accumulated time.Duration `json:"accumulated"`
}

// Elapsed returns the total displayed time as of now.
func (s State) Elapsed(now time.Time) time.Duration {
	if s.IsRunning && !s.StartedAt.IsZero() {
		return s.Accumulated + now.Sub(s.StartedAt)
	}
	return s.Accumulated
}

// Store keeps timer state in a local SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the timer database at dir/timers.db.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating timer state dir %s: %w", dir, err)
	}

	dbPath := filepath.Join(dir, "timers.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening timer db: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS session_timers (
		session_id     TEXT PRIMARY KEY,
		is_running     INTEGER NOT NULL,
		started_at     INTEGER NOT NULL,
		accumulated_ms INTEGER NOT NULL,
		updated_at     TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating timer table: %w", err)
	}

	return &Store{db: db}, nil
}

// Get returns the saved state for a session, or (nil, nil) if none.
func (s *Store) Get(sessionID string) (*State, error) {
	var st State
	var running int
	var startedUnix, accumulatedMs int64
	err := s.db.QueryRow(
		`SELECT is_running, started_at, accumulated_ms FROM session_timers WHERE session_id = ?`,
		sessionID,
	).Scan(&running, &startedUnix, &accumulatedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying timer state: %w", err)
	}

	st.SessionID = sessionID
	st.IsRunning = running != 0
	if startedUnix > 0 {
		st.StartedAt = time.UnixMilli(startedUnix)
	}
	st.Accumulated = time.Duration(accumulatedMs) * time.Millisecond
	return &st, nil
}

// Put creates or overwrites a session's timer state.
func (s *Store) Put(st State) error {
	running := 0
	if st.IsRunning {
		running = 1
	}
	var startedUnix int64
	if !st.StartedAt.IsZero() {
		startedUnix = st.StartedAt.UnixMilli()
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO session_timers (session_id, is_running, started_at, accumulated_ms)
		 VALUES (?, ?, ?, ?)`,
		st.SessionID, running, startedUnix, st.Accumulated.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("saving timer state: %w", err)
	}
	return nil
}

// Delete removes a session's timer state.
func (s *Store) Delete(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM session_timers WHERE session_id = ?`, sessionID)
	return err
}

// Close closes the timer database.
func (s *Store) Close() error {
	return s.db.Close()
}
