package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPeriod is returned when a scan or injection period is not positive.
	ErrInvalidPeriod = errors.New("period must be positive")

	// ErrNoCandidates is returned when a fault filter matches no I/O point.
	ErrNoCandidates = errors.New("no I/O points match the fault filter")
)

// RungError records a contained failure of one rung during a scan.
type RungError struct {
	Rung  string
	Index int
	Err   error
}

func (e *RungError) Error() string {
	return fmt.Sprintf("rung %d (%s): %v", e.Index, e.Rung, e.Err)
}

func (e *RungError) Unwrap() error {
	return e.Err
}
