// Package clock provides an injectable time source so SLA and scheduler
// logic is deterministic in tests.
package clock

import "time"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// System is a Clock backed by the wall clock.
type System struct{}

// Now returns the current wall-clock time.
func (System) Now() time.Time { return time.Now() }

// Fixed is a Clock frozen at a settable instant, for tests.
type Fixed struct {
	Time time.Time
}

// NewFixed creates a Fixed clock at t.
func NewFixed(t time.Time) *Fixed { return &Fixed{Time: t} }

// Now returns the frozen instant.
func (f *Fixed) Now() time.Time { return f.Time }

// Advance moves the frozen instant forward by d.
func (f *Fixed) Advance(d time.Duration) { f.Time = f.Time.Add(d) }
