package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/trajectory.report/internal/tracking"
)

// FrameRecord is everything persisted for one processed frame.
type FrameRecord struct {
	SessionID string
	Frame     int64
	At        time.Time
	Tracks    []tracking.TrackSnapshot
	Evicted   []int64
	Counts    map[string]int
}

// TrackRecord is the stored summary row of a track.
type TrackRecord struct {
	SessionID      string           `json:"session_id"`
	TrackID        int64            `json:"track_id"`
	ClassID        int              `json:"class_id"`
	State          string           `json:"state"`
	FirstFrame     int64            `json:"first_frame"`
	LastFrame      int64            `json:"last_frame"`
	Points         int              `json:"points"`
	Direction      *tracking.Vector `json:"direction,omitempty"`
	OrientationDeg *float64         `json:"orientation_deg,omitempty"`
	EvictedFrame   *int64           `json:"evicted_frame,omitempty"`
}

// SaveFrame upserts every live track, appends the centroid of each track
// matched or created this frame, marks evicted tracks, and stores class
// counts. It runs in one transaction.
func (db *DB) SaveFrame(rec FrameRecord) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin frame transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	upsert, err := tx.Prepare(`
		INSERT INTO tracks (
			session_id, track_id, class_id, state, first_frame, last_frame, points,
			direction_dx, direction_dy, orientation_deg
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, track_id) DO UPDATE SET
			class_id = excluded.class_id,
			state = excluded.state,
			last_frame = excluded.last_frame,
			points = excluded.points,
			direction_dx = excluded.direction_dx,
			direction_dy = excluded.direction_dy,
			orientation_deg = excluded.orientation_deg`)
	if err != nil {
		return fmt.Errorf("failed to prepare track upsert: %w", err)
	}
	defer upsert.Close()

	point, err := tx.Prepare(`
		INSERT OR IGNORE INTO track_points (session_id, track_id, seq, frame, x, y, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare point insert: %w", err)
	}
	defer point.Close()

	at := rec.At.UnixNano()
	for _, t := range rec.Tracks {
		var dx, dy sql.NullInt64
		if t.Direction != nil {
			dx = sql.NullInt64{Int64: int64(t.Direction.DX), Valid: true}
			dy = sql.NullInt64{Int64: int64(t.Direction.DY), Valid: true}
		}
		var orient sql.NullFloat64
		if t.Orientation != nil {
			orient = sql.NullFloat64{Float64: *t.Orientation, Valid: true}
		}
		if _, err = upsert.Exec(rec.SessionID, t.ID, t.ClassID, string(t.State), t.FirstFrame, t.LastFrame,
			len(t.History), dx, dy, orient); err != nil {
			return fmt.Errorf("failed to upsert track %d: %w", t.ID, err)
		}

		if t.LastFrame != rec.Frame {
			continue
		}
		cur := t.Current()
		if _, err = point.Exec(rec.SessionID, t.ID, len(t.History)-1, rec.Frame, cur.X, cur.Y, at); err != nil {
			return fmt.Errorf("failed to insert point for track %d: %w", t.ID, err)
		}
	}

	for _, id := range rec.Evicted {
		if _, err = tx.Exec(`UPDATE tracks SET evicted_frame = ? WHERE session_id = ? AND track_id = ?`,
			rec.Frame, rec.SessionID, id); err != nil {
			return fmt.Errorf("failed to mark track %d evicted: %w", id, err)
		}
	}

	for name, n := range rec.Counts {
		if _, err = tx.Exec(`INSERT OR REPLACE INTO class_counts (session_id, frame, class_name, count) VALUES (?, ?, ?, ?)`,
			rec.SessionID, rec.Frame, name, n); err != nil {
			return fmt.Errorf("failed to insert class count: %w", err)
		}
	}

	if _, err = tx.Exec(`UPDATE sessions SET frames = ? WHERE session_id = ?`, rec.Frame, rec.SessionID); err != nil {
		return fmt.Errorf("failed to update session frames: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit frame %d: %w", rec.Frame, err)
	}
	return nil
}

// ListTracks returns a session's tracks in id order.
func (db *DB) ListTracks(sessionID string) ([]*TrackRecord, error) {
	rows, err := db.Query(`
		SELECT session_id, track_id, class_id, state, first_frame, last_frame, points,
			direction_dx, direction_dy, orientation_deg, evicted_frame
		FROM tracks WHERE session_id = ? ORDER BY track_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var out []*TrackRecord
	for rows.Next() {
		var (
			r       TrackRecord
			dx, dy  sql.NullInt64
			orient  sql.NullFloat64
			evicted sql.NullInt64
		)
		if err := rows.Scan(&r.SessionID, &r.TrackID, &r.ClassID, &r.State, &r.FirstFrame, &r.LastFrame,
			&r.Points, &dx, &dy, &orient, &evicted); err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		if dx.Valid && dy.Valid {
			r.Direction = &tracking.Vector{DX: int(dx.Int64), DY: int(dy.Int64)}
		}
		if orient.Valid {
			o := orient.Float64
			r.OrientationDeg = &o
		}
		if evicted.Valid {
			e := evicted.Int64
			r.EvictedFrame = &e
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// TrackHistory returns the stored centroids of one track in order.
func (db *DB) TrackHistory(sessionID string, trackID int64) ([]tracking.Point, error) {
	rows, err := db.Query(`
		SELECT x, y FROM track_points
		WHERE session_id = ? AND track_id = ? ORDER BY seq`, sessionID, trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to query track points: %w", err)
	}
	defer rows.Close()

	var out []tracking.Point
	for rows.Next() {
		var p tracking.Point
		if err := rows.Scan(&p.X, &p.Y); err != nil {
			return nil, fmt.Errorf("failed to scan track point: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ClassCounts returns the stored per-class counts of one frame.
func (db *DB) ClassCounts(sessionID string, frame int64) (map[string]int, error) {
	rows, err := db.Query(`SELECT class_name, count FROM class_counts WHERE session_id = ? AND frame = ?`,
		sessionID, frame)
	if err != nil {
		return nil, fmt.Errorf("failed to query class counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("failed to scan class count: %w", err)
		}
		out[name] = n
	}
	return out, rows.Err()
}
