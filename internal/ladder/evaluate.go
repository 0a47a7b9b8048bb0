package ladder

import (
	"errors"
	"fmt"
	"math"

	"github.com/roach88/plcsim/internal/iotable"
)

// EvaluationError reports an internal fault while evaluating one rung.
// It never describes an unknown tag: missing references simply make the
// rung inactive.
type EvaluationError struct {
	Rung    string
	Tag     string
	Message string
}

func (e *EvaluationError) Error() string {
	if e.Tag != "" {
		return fmt.Sprintf("evaluate rung %q: %s: %s", e.Rung, e.Tag, e.Message)
	}
	return fmt.Sprintf("evaluate rung %q: %s", e.Rung, e.Message)
}

// IsEvaluationError returns true if err is or wraps an EvaluationError.
func IsEvaluationError(err error) bool {
	var ee *EvaluationError
	return errors.As(err, &ee)
}

// Evaluate computes whether all conditions of r hold against view.
//
// Conditions are checked in order and evaluation stops at the first false
// one. A condition naming a tag that the view does not contain is false.
// A rung with no conditions is active.
//
// Evaluate has no side effects; driving the output is the scheduler's job.
func Evaluate(view iotable.View, r Rung) (bool, error) {
	for _, c := range r.Conditions {
		ok, err := conditionTruth(view, r.Name, c)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Truth returns the boolean truth of a single condition.
func Truth(view iotable.View, c Condition) (bool, error) {
	return conditionTruth(view, "", c)
}

func conditionTruth(view iotable.View, rung string, c Condition) (bool, error) {
	p, ok := view.Lookup(c.Tag)
	if !ok {
		return false, nil
	}

	switch {
	case p.Kind.IsDigital():
		return p.Digital != c.Negated, nil
	case p.Kind.IsAnalog():
		if math.IsNaN(p.Analog) {
			return false, &EvaluationError{Rung: rung, Tag: c.Tag, Message: "analog value is NaN"}
		}
		if c.Negated {
			return p.Analog < AnalogThreshold, nil
		}
		return p.Analog >= AnalogThreshold, nil
	default:
		return false, &EvaluationError{Rung: rung, Tag: c.Tag, Message: fmt.Sprintf("unsupported point kind %s", p.Kind)}
	}
}

// Validate checks a rung against a view and returns one error per problem:
// dangling condition references, a missing output, or an output that is
// not a digital output. A rung with problems still evaluates (fail-soft);
// Validate exists so they can be reported when a program is loaded.
func Validate(view iotable.View, r Rung) []error {
	var errs []error
	for _, c := range r.Conditions {
		if _, ok := view.Lookup(c.Tag); !ok {
			errs = append(errs, fmt.Errorf("rung %q: condition references unknown tag %q", r.Name, c.Tag))
		}
	}
	out, ok := view.Lookup(r.Output)
	switch {
	case r.Output == "":
		errs = append(errs, fmt.Errorf("rung %q: no output tag", r.Name))
	case !ok:
		errs = append(errs, fmt.Errorf("rung %q: output references unknown tag %q", r.Name, r.Output))
	case out.Kind != iotable.DigitalOutput:
		errs = append(errs, fmt.Errorf("rung %q: output %s is %s, want %s", r.Name, r.Output, out.Kind, iotable.DigitalOutput))
	}
	return errs
}
