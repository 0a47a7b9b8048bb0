// Package testutil provides deterministic time sources for engine tests.
package testutil

import (
	"sync"
	"time"
)

// Epoch is the fixed start time used by StepClock.
var Epoch = time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)

// StepClock is a wall clock that advances by a fixed step on every Now.
//
// It replaces time.Now in engines under test so fault-history timestamps
// and journal rows are reproducible.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StepClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	calls int64
}

// NewStepClock creates a clock starting at Epoch that advances by step.
// The first call to Now returns Epoch.
func NewStepClock(step time.Duration) *StepClock {
	return &StepClock{start: Epoch, step: step}
}

// Now returns the next timestamp.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.start.Add(time.Duration(c.calls) * c.step)
	c.calls++
	return t
}

// Calls returns how many times Now was called.
func (c *StepClock) Calls() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Reset rewinds the clock to Epoch.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = 0
}
