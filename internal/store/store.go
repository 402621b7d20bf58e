// Package store implements the durable MessageStore: a
// SQLite-backed FIFO mention queue keyed on (id, agent), plus per-agent
// pause/resume state.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// StoredMessage is a row in the durable store.
type StoredMessage struct {
	ID                     string
	Agent                  string
	Sender                 string
	Content                string
	EnqueuedAt             float64
	ProcessingStartedAt    *float64
	ProcessingCompletedAt  *float64
	Processed              bool
	// RetryCount and DeadLettered exist for a future retry/DLQ policy;
	// this implementation never sets them,
	// reproducing the original no-retry behavior exactly.
	RetryCount   int
	DeadLettered bool
}

// AgentStatus is the per-agent lifecycle row.
type AgentStatus struct {
	Status        string // "active" | "paused"
	PausedAt      *float64
	PausedReason  string
	ResumeAt      *float64
}

// PutResult reports the outcome of Put.
type PutResult int

const (
	PutAccepted PutResult = iota
	PutIgnored
	PutRejected
)

// Store is the durable MessageStore contract.
type Store interface {
	Put(id, agent, sender, content string) (PutResult, error)
	PeekPending(agent string, limit int) ([]StoredMessage, error)
	MarkProcessing(id, agent string) error
	MarkProcessed(id, agent string) error
	CountPending(agent string) (int, error)
	ClearAgent(agent string) (int, error)
	ClearPending(agent string) (int, error)
	Cleanup(olderThan time.Time) (int, error)
	Pause(agent, reason string, resumeAt *time.Time) error
	Resume(agent string) error
	GetStatus(agent string) (AgentStatus, error)
	CheckAutoResume(agent string) (bool, error)
	Close() error
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS messages (
	id TEXT NOT NULL,
	agent TEXT NOT NULL,
	sender TEXT NOT NULL,
	content TEXT NOT NULL,
	enqueued_at REAL NOT NULL,
	processing_started_at REAL,
	processing_completed_at REAL,
	processed INTEGER NOT NULL DEFAULT 0,
	retry_count INTEGER NOT NULL DEFAULT 0,
	dead_lettered INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (id, agent)
);

CREATE INDEX IF NOT EXISTS idx_messages_agent_pending
	ON messages(agent, processed, enqueued_at);

CREATE TABLE IF NOT EXISTS agent_status (
	agent TEXT PRIMARY KEY,
	status TEXT NOT NULL DEFAULT 'active',
	paused_at REAL,
	paused_reason TEXT,
	resume_at REAL
);
`

// SQLiteStore is the production Store implementation.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if necessary) the embedded store at path,
// following the default location convention. path may be ":memory:" for tests.
func Open(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// Composite-key writes are per-agent disjoint; a single
	// connection keeps modernc's sqlite (no true concurrent
	// writers) from serializing through SQLITE_BUSY retries, and
	// keeps every caller on the same ":memory:" database, since each
	// new connection to ":memory:" would open its own empty one.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nowUnix() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// Put inserts a new mention. Duplicate (id, agent) pairs are
// ignored, never an error.
func (s *SQLiteStore) Put(id, agent, sender, content string) (PutResult, error) {
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO messages (id, agent, sender, content, enqueued_at) VALUES (?, ?, ?, ?, ?)`,
		id, agent, sender, content, nowUnix(),
	)
	if err != nil {
		return PutRejected, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return PutRejected, err
	}
	if n == 0 {
		return PutIgnored, nil
	}
	return PutAccepted, nil
}

// PeekPending returns the oldest unprocessed rows for agent, FIFO.
func (s *SQLiteStore) PeekPending(agent string, limit int) ([]StoredMessage, error) {
	rows, err := s.db.Query(
		`SELECT id, agent, sender, content, enqueued_at, processing_started_at,
			processing_completed_at, processed, retry_count, dead_lettered
		 FROM messages
		 WHERE agent = ? AND processed = 0
		 ORDER BY enqueued_at ASC
		 LIMIT ?`,
		agent, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredMessage
	for rows.Next() {
		var m StoredMessage
		var processedInt, deadInt int
		if err := rows.Scan(&m.ID, &m.Agent, &m.Sender, &m.Content, &m.EnqueuedAt,
			&m.ProcessingStartedAt, &m.ProcessingCompletedAt, &processedInt,
			&m.RetryCount, &deadInt); err != nil {
			return nil, err
		}
		m.Processed = processedInt != 0
		m.DeadLettered = deadInt != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkProcessing records that a row's handler invocation has started.
func (s *SQLiteStore) MarkProcessing(id, agent string) error {
	_, err := s.db.Exec(
		`UPDATE messages SET processing_started_at = ? WHERE id = ? AND agent = ?`,
		nowUnix(), id, agent,
	)
	return err
}

// MarkProcessed records that a row's reply attempt has completed,
// successfully or not. A row is never replayed once processed.
func (s *SQLiteStore) MarkProcessed(id, agent string) error {
	_, err := s.db.Exec(
		`UPDATE messages SET processed = 1, processing_completed_at = ? WHERE id = ? AND agent = ?`,
		nowUnix(), id, agent,
	)
	return err
}

// CountPending returns the number of unprocessed rows for agent.
func (s *SQLiteStore) CountPending(agent string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE agent = ? AND processed = 0`, agent).Scan(&n)
	return n, err
}

// ClearAgent deletes every row for agent (used by Supervisor.start).
func (s *SQLiteStore) ClearAgent(agent string) (int, error) {
	res, err := s.db.Exec(`DELETE FROM messages WHERE agent = ?`, agent)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ClearPending deletes only unprocessed rows for agent. CheckAutoResume
// does its own #done backlog delete inside its transaction and does not
// call this.
func (s *SQLiteStore) ClearPending(agent string) (int, error) {
	res, err := s.db.Exec(`DELETE FROM messages WHERE agent = ? AND processed = 0`, agent)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Cleanup deletes processed rows completed before olderThan.
func (s *SQLiteStore) Cleanup(olderThan time.Time) (int, error) {
	cutoff := float64(olderThan.UnixNano()) / 1e9
	res, err := s.db.Exec(
		`DELETE FROM messages WHERE processed = 1 AND processing_completed_at < ?`,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Pause sets an agent's status to paused with an optional auto-resume
// timestamp.
func (s *SQLiteStore) Pause(agent, reason string, resumeAt *time.Time) error {
	var resumeAtUnix any
	if resumeAt != nil {
		resumeAtUnix = float64(resumeAt.UnixNano()) / 1e9
	}
	_, err := s.db.Exec(`
		INSERT INTO agent_status (agent, status, paused_at, paused_reason, resume_at)
		VALUES (?, 'paused', ?, ?, ?)
		ON CONFLICT(agent) DO UPDATE SET
			status = 'paused', paused_at = excluded.paused_at,
			paused_reason = excluded.paused_reason, resume_at = excluded.resume_at
	`, agent, nowUnix(), reason, resumeAtUnix)
	return err
}

// Resume clears an agent's paused state.
func (s *SQLiteStore) Resume(agent string) error {
	_, err := s.db.Exec(`
		INSERT INTO agent_status (agent, status, paused_at, paused_reason, resume_at)
		VALUES (?, 'active', NULL, NULL, NULL)
		ON CONFLICT(agent) DO UPDATE SET
			status = 'active', paused_at = NULL, paused_reason = NULL, resume_at = NULL
	`, agent)
	return err
}

// GetStatus returns an agent's current lifecycle row. Agents never
// explicitly paused default to active; AgentStatus is created lazily.
func (s *SQLiteStore) GetStatus(agent string) (AgentStatus, error) {
	row := s.db.QueryRow(
		`SELECT status, paused_at, paused_reason, resume_at FROM agent_status WHERE agent = ?`,
		agent,
	)
	var st AgentStatus
	var reason sql.NullString
	err := row.Scan(&st.Status, &st.PausedAt, &reason, &st.ResumeAt)
	if err == sql.ErrNoRows {
		return AgentStatus{Status: "active"}, nil
	}
	if err != nil {
		return AgentStatus{}, err
	}
	st.PausedReason = reason.String
	return st, nil
}

const doneReasonPrefix = "Done:"

// CheckAutoResume checks whether resume_at has elapsed: if so, the
// agent transitions to active, and if paused_reason began with "Done:",
// all unprocessed rows are deleted atomically with the transition.
func (s *SQLiteStore) CheckAutoResume(agent string) (bool, error) {
	status, err := s.GetStatus(agent)
	if err != nil {
		return false, err
	}
	if status.Status != "paused" || status.ResumeAt == nil {
		return false, nil
	}
	if nowUnix() < *status.ResumeAt {
		return false, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO agent_status (agent, status, paused_at, paused_reason, resume_at)
		VALUES (?, 'active', NULL, NULL, NULL)
		ON CONFLICT(agent) DO UPDATE SET
			status = 'active', paused_at = NULL, paused_reason = NULL, resume_at = NULL
	`, agent); err != nil {
		return false, err
	}

	if len(status.PausedReason) >= len(doneReasonPrefix) && status.PausedReason[:len(doneReasonPrefix)] == doneReasonPrefix {
		if _, err := tx.Exec(`DELETE FROM messages WHERE agent = ? AND processed = 0`, agent); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}
