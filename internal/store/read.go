package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/plcsim/internal/engine"
	"github.com/roach88/plcsim/internal/iotable"
)

// StatusRecord is a journaled status transition.
type StatusRecord struct {
	Seq      int64
	At       time.Time
	Status   engine.Status
	Previous engine.Status
	Points   []PointState
}

// ReadSessions returns every session, most recent first.
// UUIDv7 session IDs sort by creation time, so id breaks ties.
func (s *Store) ReadSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, program, started_at, scan_time_us
		FROM sessions
		ORDER BY started_at DESC, id COLLATE BINARY DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var (
			sess    Session
			started string
			scanUS  int64
		)
		if err := rows.Scan(&sess.ID, &sess.Program, &started, &scanUS); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if sess.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		sess.ScanTime = time.Duration(scanUS) * time.Microsecond
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadSession returns one session. Returns sql.ErrNoRows (wrapped) if it
// does not exist.
func (s *Store) ReadSession(ctx context.Context, id string) (Session, error) {
	var (
		sess    Session
		started string
		scanUS  int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, program, started_at, scan_time_us
		FROM sessions WHERE id = ?
	`, id).Scan(&sess.ID, &sess.Program, &started, &scanUS)
	if err != nil {
		return Session{}, fmt.Errorf("read session %s: %w", id, err)
	}
	if sess.StartedAt, err = parseTime(started); err != nil {
		return Session{}, err
	}
	sess.ScanTime = time.Duration(scanUS) * time.Microsecond
	return sess, nil
}

// ReadFaultEvents returns the fault history of a session, oldest first.
// If tag is non-empty only that point's events are returned.
func (s *Store) ReadFaultEvents(ctx context.Context, sessionID, tag string) ([]engine.FaultEvent, error) {
	query := `
		SELECT seq, at, tag, kind, origin, fault
		FROM fault_events
		WHERE session_id = ?`
	args := []any{sessionID}
	if tag != "" {
		query += ` AND tag = ?`
		args = append(args, tag)
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query fault events: %w", err)
	}
	defer rows.Close()

	events := []engine.FaultEvent{}
	for rows.Next() {
		ev, err := scanFaultEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fault events: %w", err)
	}
	return events, nil
}

func scanFaultEvent(rows *sql.Rows) (engine.FaultEvent, error) {
	var (
		ev     engine.FaultEvent
		at     string
		kind   string
		origin string
	)
	if err := rows.Scan(&ev.Seq, &at, &ev.Tag, &kind, &origin, &ev.Fault); err != nil {
		return engine.FaultEvent{}, fmt.Errorf("scan fault event: %w", err)
	}
	var err error
	if ev.Timestamp, err = parseTime(at); err != nil {
		return engine.FaultEvent{}, err
	}
	if ev.Kind, err = iotable.ParseKind(kind); err != nil {
		return engine.FaultEvent{}, fmt.Errorf("scan fault event %d: %w", ev.Seq, err)
	}
	ev.Origin = engine.FaultOrigin(origin)
	return ev, nil
}

// ReadStatusEvents returns the status transitions of a session, oldest
// first, with their decoded snapshots.
func (s *Store) ReadStatusEvents(ctx context.Context, sessionID string) ([]StatusRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, at, status, previous, snapshot
		FROM status_events
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query status events: %w", err)
	}
	defer rows.Close()

	records := []StatusRecord{}
	for rows.Next() {
		var (
			rec            StatusRecord
			at             string
			status, before string
			blob           []byte
		)
		if err := rows.Scan(&rec.Seq, &at, &status, &before, &blob); err != nil {
			return nil, fmt.Errorf("scan status event: %w", err)
		}
		if rec.At, err = parseTime(at); err != nil {
			return nil, err
		}
		rec.Status = engine.Status(status)
		rec.Previous = engine.Status(before)
		if rec.Points, err = decodeSnapshot(blob); err != nil {
			return nil, fmt.Errorf("status event %d: %w", rec.Seq, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status events: %w", err)
	}
	return records, nil
}

// LastSeq returns the highest seq journaled for a session, or 0.
// engine.NewClockAt(LastSeq) resumes numbering without collisions.
func (s *Store) LastSeq(ctx context.Context, sessionID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM (
			SELECT seq FROM status_events WHERE session_id = ?
			UNION ALL
			SELECT seq FROM fault_events WHERE session_id = ?
		)
	`, sessionID, sessionID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq %s: %w", sessionID, err)
	}
	return seq, nil
}
