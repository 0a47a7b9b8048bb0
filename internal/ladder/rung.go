// Package ladder models ladder-logic rungs and evaluates them against an
// I/O table view.
//
// A rung is a pure AND of conditions driving one digital output:
//
//	System Start:  DI_3  !DI_0  DI_2  ──( DO_0 )
//
// Each condition references one tag and may be negated. Digital tags use
// their value; analog tags are true at or above AnalogThreshold. There is no
// OR, branching, timer or counter instruction.
package ladder

import (
	"fmt"
	"strings"
)

// AnalogThreshold is the fixed switching point for analog conditions.
// Existing fault scenarios depend on this exact value.
const AnalogThreshold = 50.0

// Condition is one contact in a rung.
type Condition struct {
	Tag     string
	Negated bool
}

// String renders the condition in "!TAG" notation.
func (c Condition) String() string {
	if c.Negated {
		return "!" + c.Tag
	}
	return c.Tag
}

// ParseCondition parses "TAG" or "!TAG".
func ParseCondition(s string) (Condition, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "!")
	tag := strings.TrimSpace(strings.TrimPrefix(s, "!"))
	if tag == "" {
		return Condition{}, fmt.Errorf("empty condition %q", s)
	}
	if strings.ContainsAny(tag, "! \t") {
		return Condition{}, fmt.Errorf("malformed condition %q", s)
	}
	return Condition{Tag: tag, Negated: neg}, nil
}

// Rung is one ladder line.
type Rung struct {
	Name       string
	Conditions []Condition
	Output     string
}

// NewRung builds a rung from textual conditions.
func NewRung(name, output string, conditions ...string) (Rung, error) {
	r := Rung{Name: name, Output: output, Conditions: make([]Condition, 0, len(conditions))}
	for _, s := range conditions {
		c, err := ParseCondition(s)
		if err != nil {
			return Rung{}, fmt.Errorf("rung %q: %w", name, err)
		}
		r.Conditions = append(r.Conditions, c)
	}
	return r, nil
}

// MustRung is NewRung that panics on malformed conditions.
// Intended for built-in programs declared in Go source.
func MustRung(name, output string, conditions ...string) Rung {
	r, err := NewRung(name, output, conditions...)
	if err != nil {
		panic(err)
	}
	return r
}

// Tags returns every tag the rung references, conditions first, output last.
func (r Rung) Tags() []string {
	tags := make([]string, 0, len(r.Conditions)+1)
	for _, c := range r.Conditions {
		tags = append(tags, c.Tag)
	}
	return append(tags, r.Output)
}

// String renders the rung as "name: A !B C -> OUT".
func (r Rung) String() string {
	parts := make([]string, len(r.Conditions))
	for i, c := range r.Conditions {
		parts[i] = c.String()
	}
	return fmt.Sprintf("%s: %s -> %s", r.Name, strings.Join(parts, " "), r.Output)
}

// Clone returns a deep copy.
func (r Rung) Clone() Rung {
	c := r
	c.Conditions = append([]Condition(nil), r.Conditions...)
	return c
}
