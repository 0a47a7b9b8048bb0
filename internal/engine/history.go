package engine

import (
	"time"

	"github.com/roach88/plcsim/internal/iotable"
)

// DefaultHistoryLimit is the default number of fault events retained.
const DefaultHistoryLimit = 100

// FaultOrigin records who changed a fault flag.
type FaultOrigin string

const (
	// OriginManual marks a toggle or set issued through the command surface.
	OriginManual FaultOrigin = "manual"
	// OriginAuto marks a toggle made by automatic fault injection.
	OriginAuto FaultOrigin = "auto-injected"
)

// FaultEvent is one fault-history entry. Entries are never mutated after
// they are recorded.
type FaultEvent struct {
	Seq       int64
	Timestamp time.Time
	Tag       string
	Kind      iotable.Kind
	Origin    FaultOrigin
	Fault     bool // flag state after the change
}

// faultHistory is a bounded append-only log. When full, the oldest entry
// is dropped.
type faultHistory struct {
	limit   int
	entries []FaultEvent
	start   int // index of the oldest entry once the buffer is full
	total   int // events ever recorded
}

func newFaultHistory(limit int) *faultHistory {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &faultHistory{limit: limit, entries: make([]FaultEvent, 0, min(limit, 64))}
}

func (h *faultHistory) append(ev FaultEvent) {
	h.total++
	if len(h.entries) < h.limit {
		h.entries = append(h.entries, ev)
		return
	}
	h.entries[h.start] = ev
	h.start = (h.start + 1) % h.limit
}

// list returns the retained entries, oldest first.
func (h *faultHistory) list() []FaultEvent {
	out := make([]FaultEvent, 0, len(h.entries))
	out = append(out, h.entries[h.start:]...)
	return append(out, h.entries[:h.start]...)
}
