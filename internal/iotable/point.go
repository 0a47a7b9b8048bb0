package iotable

import "fmt"

// Kind classifies an I/O point. It is fixed when the point is declared and
// never inferred from the tag name.
type Kind int

const (
	// DigitalInput is a boolean field input (switch, button, feedback contact).
	DigitalInput Kind = iota + 1
	// DigitalOutput is a boolean output driven by rungs or manual override.
	DigitalOutput
	// AnalogInput is a numeric field input (temperature, flow, level).
	AnalogInput
	// AnalogOutput is a numeric output (speed reference, valve position).
	AnalogOutput
)

// String returns the short form used in logs and program files.
func (k Kind) String() string {
	switch k {
	case DigitalInput:
		return "digital-input"
	case DigitalOutput:
		return "digital-output"
	case AnalogInput:
		return "analog-input"
	case AnalogOutput:
		return "analog-output"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "digital-input":
		return DigitalInput, nil
	case "digital-output":
		return DigitalOutput, nil
	case "analog-input":
		return AnalogInput, nil
	case "analog-output":
		return AnalogOutput, nil
	}
	return 0, fmt.Errorf("unknown point kind %q", s)
}

// IsDigital reports whether values of this kind are booleans.
func (k Kind) IsDigital() bool { return k == DigitalInput || k == DigitalOutput }

// IsAnalog reports whether values of this kind are numeric.
func (k Kind) IsAnalog() bool { return k == AnalogInput || k == AnalogOutput }

// IsOutput reports whether the point is an output.
func (k Kind) IsOutput() bool { return k == DigitalOutput || k == AnalogOutput }

// Valid reports whether k is one of the four declared kinds.
func (k Kind) Valid() bool { return k >= DigitalInput && k <= AnalogOutput }

// Def declares a point at table construction time.
type Def struct {
	Tag         string
	Kind        Kind
	Name        string
	Description string
	Unit        string  // analog only
	Critical    bool    // severity class used by fault filters
	Digital     bool    // initial value for digital kinds
	Analog      float64 // initial value for analog kinds
}

// Point is a read-only copy of one I/O point.
//
// Digital points carry their value in Digital; analog points in Analog.
// Fault is a diagnostic flag only: it never replaces the value.
type Point struct {
	Tag         string
	Kind        Kind
	Name        string
	Description string
	Unit        string
	Critical    bool
	Digital     bool
	Analog      float64
	Fault       bool
}

// Value returns the point's value as bool or float64 depending on kind.
func (p Point) Value() any {
	if p.Kind.IsDigital() {
		return p.Digital
	}
	return p.Analog
}

// point is the mutable in-table representation.
type point struct {
	def     Def
	digital bool
	analog  float64
	fault   bool
}

func (p *point) view() Point {
	return Point{
		Tag:         p.def.Tag,
		Kind:        p.def.Kind,
		Name:        p.def.Name,
		Description: p.def.Description,
		Unit:        p.def.Unit,
		Critical:    p.def.Critical,
		Digital:     p.digital,
		Analog:      p.analog,
		Fault:       p.fault,
	}
}
