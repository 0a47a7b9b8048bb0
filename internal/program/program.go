// Package program defines ladder programs: the fixed I/O point set and rung
// list an engine is built from.
//
// Programs come from two places: Default, the built-in classroom training
// rig, and CUE files compiled with Load or CompileString.
package program

import (
	"fmt"

	"github.com/roach88/plcsim/internal/iotable"
	"github.com/roach88/plcsim/internal/ladder"
)

// Program is a complete ladder program.
type Program struct {
	Name        string
	Description string
	Points      []iotable.Def
	Rungs       []ladder.Rung
}

// NewTable builds a fresh I/O table holding the program's points at their
// initial values.
func (p *Program) NewTable() (*iotable.Table, error) {
	t, err := iotable.New(p.Points)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", p.Name, err)
	}
	return t, nil
}

// CopyRungs returns a deep copy of the rung list.
func (p *Program) CopyRungs() []ladder.Rung {
	out := make([]ladder.Rung, len(p.Rungs))
	for i, r := range p.Rungs {
		out[i] = r.Clone()
	}
	return out
}

// Check builds the table and validates every rung against it.
// The returned problems are not fatal: an engine built from the program
// disables the affected rungs. A non-nil error means the points themselves
// are invalid.
func (p *Program) Check() (problems []error, err error) {
	t, err := p.NewTable()
	if err != nil {
		return nil, err
	}
	for _, r := range p.Rungs {
		problems = append(problems, ladder.Validate(t, r)...)
	}
	return problems, nil
}

// Stats summarises a program for CLI output.
type Stats struct {
	Name           string `json:"name"`
	DigitalInputs  int    `json:"digital_inputs"`
	DigitalOutputs int    `json:"digital_outputs"`
	AnalogInputs   int    `json:"analog_inputs"`
	AnalogOutputs  int    `json:"analog_outputs"`
	Critical       int    `json:"critical"`
	Rungs          int    `json:"rungs"`
}

// Stats counts points by kind.
func (p *Program) Stats() Stats {
	s := Stats{Name: p.Name, Rungs: len(p.Rungs)}
	for _, d := range p.Points {
		switch d.Kind {
		case iotable.DigitalInput:
			s.DigitalInputs++
		case iotable.DigitalOutput:
			s.DigitalOutputs++
		case iotable.AnalogInput:
			s.AnalogInputs++
		case iotable.AnalogOutput:
			s.AnalogOutputs++
		}
		if d.Critical {
			s.Critical++
		}
	}
	return s
}
