package hlc

import (
	"time"

	"go.uber.org/atomic"
)

// WallClock reads the current physical time in milliseconds since the Unix
// epoch. Readings may stall or move backwards; the logical counter absorbs
// both.
type WallClock interface {
	Now() uint64
}

// SystemClock reads the local machine's wall clock.
type SystemClock struct{}

// Now implements WallClock.
func (SystemClock) Now() uint64 {
	return uint64(time.Now().UnixMilli())
}

// ManualClock is a WallClock whose time is set explicitly. It is safe for
// concurrent use.
type ManualClock struct {
	ms atomic.Uint64
}

// NewManualClock returns a ManualClock initialized to ms.
func NewManualClock(ms uint64) *ManualClock {
	m := &ManualClock{}
	m.ms.Store(ms)
	return m
}

// Now implements WallClock.
func (m *ManualClock) Now() uint64 {
	return m.ms.Load()
}

// Set sets the clock to ms. Moving backwards is allowed.
func (m *ManualClock) Set(ms uint64) {
	m.ms.Store(ms)
}

// Add moves the clock forward by d, truncated to milliseconds.
func (m *ManualClock) Add(d time.Duration) {
	m.ms.Add(uint64(d.Milliseconds()))
}
