// Package system adapts the wall clock to the pipeline.Clock interface.
package system

import "time"

// Clock reads the system wall clock. Timestamps are normalized to UTC
// so cache writes, checkpoints, and readout names agree across hosts.
type Clock struct{}

// New returns a wall Clock. The zero value is also usable.
func New() Clock {
	return Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
