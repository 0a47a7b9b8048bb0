package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/plcsim/internal/engine"
)

// Session describes one simulation run.
type Session struct {
	ID        string
	Program   string
	StartedAt time.Time
	ScanTime  time.Duration
}

// WriteSession inserts a session row.
// Uses ON CONFLICT(id) DO NOTHING so a resumed session can re-register.
func (s *Store) WriteSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, program, started_at, scan_time_us)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		sess.ID,
		sess.Program,
		formatTime(sess.StartedAt),
		sess.ScanTime.Microseconds(),
	)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// WriteStatusEvent appends a status transition together with the I/O
// snapshot it carries. Duplicate (session, seq) pairs are ignored.
func (s *Store) WriteStatusEvent(ctx context.Context, sessionID string, ev engine.StatusEvent) error {
	blob, err := encodeSnapshot(ev.Snapshot)
	if err != nil {
		return fmt.Errorf("write status event: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO status_events (session_id, seq, at, status, previous, snapshot)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		sessionID,
		ev.Seq,
		formatTime(ev.At),
		string(ev.Status),
		string(ev.Previous),
		blob,
	)
	if err != nil {
		return fmt.Errorf("write status event: %w", err)
	}
	return nil
}

// WriteFaultEvent appends one fault-history entry.
// Duplicate (session, seq) pairs are ignored.
func (s *Store) WriteFaultEvent(ctx context.Context, sessionID string, ev engine.FaultEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fault_events (session_id, seq, at, tag, kind, origin, fault)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		sessionID,
		ev.Seq,
		formatTime(ev.Timestamp),
		ev.Tag,
		ev.Kind.String(),
		string(ev.Origin),
		ev.Fault,
	)
	if err != nil {
		return fmt.Errorf("write fault event: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
