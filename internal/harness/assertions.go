package harness

import (
	"context"
	"fmt"

	"github.com/roach88/plcsim/internal/iotable"
)

// AssertionError describes one failed assertion.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s: expected %s, actual %s", e.Type, e.Expected, e.Actual)
}

// evaluateAssertions checks all assertions and returns error messages.
func (h *Harness) evaluateAssertions(ctx context.Context, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := h.evaluateAssertion(ctx, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func (h *Harness) evaluateAssertion(ctx context.Context, a Assertion) error {
	switch a.Type {
	case AssertPoint:
		return h.assertPoint(a)
	case AssertRung:
		return h.assertRung(a)
	case AssertFaultCount:
		return assertCount(a.Type, *a.Count, h.engine.FaultCount())
	case AssertHistoryCount:
		n := 0
		for _, ev := range h.engine.FaultHistory() {
			if a.Origin == "" || string(ev.Origin) == a.Origin {
				n++
			}
		}
		return assertCount(a.Type, *a.Count, n)
	case AssertForcedCount:
		return assertCount(a.Type, *a.Count, h.panel.ForcedCount())
	case AssertJournalFaults:
		events, err := h.store.ReadFaultEvents(ctx, h.session, a.Tag)
		if err != nil {
			return err
		}
		return assertCount(a.Type, *a.Count, len(events))
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func (h *Harness) assertPoint(a Assertion) error {
	p, err := h.engine.Get(a.Tag)
	if err != nil {
		return err
	}
	if a.Fault != nil && p.Fault != *a.Fault {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s fault=%t", a.Tag, *a.Fault),
			Actual:   fmt.Sprintf("fault=%t", p.Fault),
		}
	}
	if a.Value == nil {
		return nil
	}
	if !valueMatches(p, a.Value) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s=%v", a.Tag, a.Value),
			Actual:   fmt.Sprintf("%v", p.Value()),
		}
	}
	return nil
}

func (h *Harness) assertRung(a Assertion) error {
	for _, rs := range h.engine.Rungs() {
		if rs.Rung.Name != a.Rung {
			continue
		}
		if rs.Active != *a.Active {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%q active=%t", a.Rung, *a.Active),
				Actual:   fmt.Sprintf("active=%t", rs.Active),
			}
		}
		return nil
	}
	return fmt.Errorf("no rung named %q", a.Rung)
}

func assertCount(typ string, want, got int) error {
	if want != got {
		return &AssertionError{Type: typ, Expected: fmt.Sprint(want), Actual: fmt.Sprint(got)}
	}
	return nil
}

// valueMatches compares a YAML-decoded value with a point value. YAML
// numbers decode as int or float64.
func valueMatches(p iotable.Point, want any) bool {
	if p.Kind.IsDigital() {
		b, ok := want.(bool)
		return ok && b == p.Digital
	}
	switch v := want.(type) {
	case int:
		return float64(v) == p.Analog
	case float64:
		return v == p.Analog
	}
	return false
}

