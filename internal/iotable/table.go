// Package iotable holds the PLC I/O table: the single source of truth for
// every point value and fault flag in a simulation session.
//
// The set of points is fixed when the table is built. Values change only
// through SetValue, fault flags only through SetFault/ToggleFault, and both
// setters enforce the point kind. Readers that need a consistent view across
// many points (a scan, a UI refresh) take a Snapshot.
//
// Thread-safety: Table is safe for concurrent use. Scan and fault-injection
// timers fire on their own goroutines, so every access is guarded by an
// RWMutex. Snapshot is immutable and needs no locking.
package iotable

import (
	"fmt"
	"math"
	"sync"
)

// View is the read-only lookup used by rung evaluation.
// Implemented by *Table and Snapshot.
type View interface {
	Lookup(tag string) (Point, bool)
}

// Table is the live I/O table.
type Table struct {
	mu     sync.RWMutex
	order  []string // declaration order, never changes after New
	points map[string]*point
}

// New builds a table from point declarations.
//
// Tags must be non-empty and unique, kinds must be valid, and analog
// initial values must be finite. The declaration order is preserved for
// Tags, Snapshot.Points and random fault selection.
func New(defs []Def) (*Table, error) {
	t := &Table{
		order:  make([]string, 0, len(defs)),
		points: make(map[string]*point, len(defs)),
	}
	for i, d := range defs {
		if d.Tag == "" {
			return nil, fmt.Errorf("point %d: empty tag", i)
		}
		if !d.Kind.Valid() {
			return nil, fmt.Errorf("point %s: invalid kind %d", d.Tag, int(d.Kind))
		}
		if _, dup := t.points[d.Tag]; dup {
			return nil, fmt.Errorf("duplicate tag %q", d.Tag)
		}
		if d.Kind.IsAnalog() && (math.IsNaN(d.Analog) || math.IsInf(d.Analog, 0)) {
			return nil, fmt.Errorf("point %s: initial value must be finite", d.Tag)
		}
		p := &point{def: d}
		if d.Kind.IsDigital() {
			p.digital = d.Digital
		} else {
			p.analog = d.Analog
		}
		t.order = append(t.order, d.Tag)
		t.points[d.Tag] = p
	}
	return t, nil
}

// Get returns a copy of the point for tag.
func (t *Table) Get(tag string) (Point, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.points[tag]
	if !ok {
		return Point{}, &UnknownTagError{Tag: tag}
	}
	return p.view(), nil
}

// Lookup implements View.
func (t *Table) Lookup(tag string) (Point, bool) {
	p, err := t.Get(tag)
	return p, err == nil
}

// SetValue writes a point value.
//
// Digital points accept only bool. Analog points accept any Go integer or
// float type (stored as float64); NaN and infinities are rejected. The
// fault flag is left untouched.
func (t *Table) SetValue(tag string, value any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.points[tag]
	if !ok {
		return &UnknownTagError{Tag: tag}
	}

	kind := p.def.Kind
	if kind.IsDigital() {
		b, ok := value.(bool)
		if !ok {
			return &TypeMismatchError{Tag: tag, Kind: kind, Got: fmt.Sprintf("%T", value)}
		}
		p.digital = b
		return nil
	}

	f, ok := toFloat(value)
	if !ok {
		return &TypeMismatchError{Tag: tag, Kind: kind, Got: fmt.Sprintf("%T", value)}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return &TypeMismatchError{Tag: tag, Kind: kind, Got: "non-finite " + fmt.Sprintf("%T", value)}
	}
	p.analog = f
	return nil
}

// SetFault sets the fault flag for tag. The value is left untouched.
func (t *Table) SetFault(tag string, fault bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.points[tag]
	if !ok {
		return &UnknownTagError{Tag: tag}
	}
	p.fault = fault
	return nil
}

// ToggleFault flips the fault flag for tag and returns the new state.
func (t *Table) ToggleFault(tag string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.points[tag]
	if !ok {
		return false, &UnknownTagError{Tag: tag}
	}
	p.fault = !p.fault
	return p.fault, nil
}

// Tags returns all tags in declaration order.
func (t *Table) Tags() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Len returns the number of points.
func (t *Table) Len() int {
	return len(t.order)
}

// FaultCount returns the number of points whose fault flag is set.
func (t *Table) FaultCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, p := range t.points {
		if p.fault {
			n++
		}
	}
	return n
}

// Snapshot returns an immutable copy of every point.
// The copy is taken under a single read lock, so it never mixes values
// from before and after a concurrent write.
func (t *Table) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Snapshot{
		points: make([]Point, len(t.order)),
		index:  make(map[string]int, len(t.order)),
	}
	for i, tag := range t.order {
		s.points[i] = t.points[tag].view()
		s.index[tag] = i
	}
	return s
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
