// Package clock abstracts wall-clock time so state transitions can be
// stamped deterministically in tests.
package clock

import "time"

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// System is the real wall clock. Times are returned in UTC truncated to
// microseconds so they survive a round trip through the store unchanged.
type System struct{}

// Now returns the current UTC time.
func (System) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Func adapts an ordinary function to the Clock interface.
type Func func() time.Time

// Now calls f.
func (f Func) Now() time.Time {
	return f()
}
