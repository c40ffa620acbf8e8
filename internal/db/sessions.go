package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session id has no row.
var ErrSessionNotFound = errors.New("session not found")

// Session is one processing run over a detection stream.
type Session struct {
	SessionID  string          `json:"session_id"`
	Source     string          `json:"source"`
	ConfigJSON json.RawMessage `json:"config_json,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	EndedAt    *time.Time      `json:"ended_at,omitempty"`
	Frames     int64           `json:"frames"`
}

// CreateSession inserts a new session. If SessionID is empty, a UUID is
// generated.
func (db *DB) CreateSession(s *Session) error {
	if s.SessionID == "" {
		s.SessionID = uuid.New().String()
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now()
	}

	var cfg interface{}
	if len(s.ConfigJSON) > 0 {
		cfg = string(s.ConfigJSON)
	}

	_, err := db.Exec(`
		INSERT INTO sessions (session_id, source, config_json, started_at, frames)
		VALUES (?, ?, ?, ?, 0)`,
		s.SessionID, s.Source, cfg, s.StartedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// FinishSession records the end time and frame count of a session.
func (db *DB) FinishSession(sessionID string, frames int64, endedAt time.Time) error {
	res, err := db.Exec(`UPDATE sessions SET ended_at = ?, frames = ? WHERE session_id = ?`,
		endedAt.UnixNano(), frames, sessionID)
	if err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// GetSession loads a session by id.
func (db *DB) GetSession(sessionID string) (*Session, error) {
	row := db.QueryRow(`
		SELECT session_id, source, config_json, started_at, ended_at, frames
		FROM sessions WHERE session_id = ?`, sessionID)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return s, err
}

// ListSessions returns sessions, most recent first.
func (db *DB) ListSessions(limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT session_id, source, config_json, started_at, ended_at, frames
		FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		s       Session
		cfg     sql.NullString
		started int64
		ended   sql.NullInt64
	)
	if err := row.Scan(&s.SessionID, &s.Source, &cfg, &started, &ended, &s.Frames); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	if cfg.Valid {
		s.ConfigJSON = json.RawMessage(cfg.String)
	}
	s.StartedAt = time.Unix(0, started)
	if ended.Valid {
		t := time.Unix(0, ended.Int64)
		s.EndedAt = &t
	}
	return &s, nil
}
