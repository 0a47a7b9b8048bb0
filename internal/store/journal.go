package store

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/plcsim/internal/engine"
)

// Journal is an engine.Observer that appends status and fault events to a
// Store. Write failures are logged and counted; they never reach the
// engine, whose scan loop must not depend on the disk.
type Journal struct {
	store     *Store
	sessionID string
	logger    *slog.Logger
	timeout   time.Duration
	failures  atomic.Int64
}

// NewJournal creates a journal for one session. The session row must
// already exist (see WriteSession).
func NewJournal(s *Store, sessionID string, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{
		store:     s,
		sessionID: sessionID,
		logger:    logger,
		timeout:   5 * time.Second,
	}
}

// StatusChanged implements engine.Observer.
func (j *Journal) StatusChanged(ev engine.StatusEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if err := j.store.WriteStatusEvent(ctx, j.sessionID, ev); err != nil {
		j.fail("status", ev.Seq, err)
	}
}

// FaultRecorded implements engine.Observer.
func (j *Journal) FaultRecorded(ev engine.FaultEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if err := j.store.WriteFaultEvent(ctx, j.sessionID, ev); err != nil {
		j.fail("fault", ev.Seq, err)
	}
}

// ScanCompleted implements engine.Observer. Scans are not journaled.
func (j *Journal) ScanCompleted(engine.ScanResult) {}

// Failures returns how many writes failed.
func (j *Journal) Failures() int64 {
	return j.failures.Load()
}

func (j *Journal) fail(kind string, seq int64, err error) {
	j.failures.Add(1)
	j.logger.Error("journal write failed", "event", kind, "seq", seq, "error", err)
}
