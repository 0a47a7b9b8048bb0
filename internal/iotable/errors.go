package iotable

import (
	"errors"
	"fmt"
)

// UnknownTagError is returned by any lookup or write that names a tag the
// table was not built with.
type UnknownTagError struct {
	Tag string
}

func (e *UnknownTagError) Error() string {
	return fmt.Sprintf("unknown tag %q", e.Tag)
}

// TypeMismatchError is returned when a write does not fit the point kind:
// a non-boolean into a digital point, or a non-numeric into an analog one.
type TypeMismatchError struct {
	Tag  string
	Kind Kind
	Got  string // Go type of the rejected value, "non-finite float64" for NaN and ±Inf
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch for %s (%s): cannot write %s", e.Tag, e.Kind, e.Got)
}

// IsUnknownTag returns true if err is or wraps an UnknownTagError.
func IsUnknownTag(err error) bool {
	var ue *UnknownTagError
	return errors.As(err, &ue)
}

// IsTypeMismatch returns true if err is or wraps a TypeMismatchError.
func IsTypeMismatch(err error) bool {
	var te *TypeMismatchError
	return errors.As(err, &te)
}
