// Package system provides the wall clock and randomness used outside tests.
package system

import (
	"math/rand/v2"
	"time"
)

// Clock implements medicine.Clock using time.Now and supplies the uniform
// draws behind politeness delays.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Float64 returns a pseudo-random number in [0, 1).
func (Clock) Float64() float64 {
	return rand.Float64() //nolint:gosec // jitter, not security sensitive
}
