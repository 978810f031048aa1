package testutil

import "sync"

// DefaultEpoch is the first timestamp a DeterministicClock hands out:
// 2023-11-14T22:13:20Z in Unix milliseconds.
const DefaultEpoch int64 = 1700000000000

// DeterministicClock provides reproducible delivery timestamps for tests
// and scenario runs.
//
// Every call to Now advances the clock by a fixed step, so the n-th message
// of a run always carries the same timestamp.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	start int64
	step  int64
	ticks int64
}

// NewDeterministicClock creates a clock starting at DefaultEpoch with a
// one-second step.
func NewDeterministicClock() *DeterministicClock {
	return NewDeterministicClockAt(DefaultEpoch, 1000)
}

// NewDeterministicClockAt creates a clock starting at start (Unix ms) and
// advancing by step ms per call.
func NewDeterministicClockAt(start, step int64) *DeterministicClock {
	return &DeterministicClock{start: start, step: step}
}

// Now returns the next timestamp. The first call returns start.
func (c *DeterministicClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.start + c.ticks*c.step
	c.ticks++
	return ts
}

// Ticks returns how many timestamps have been handed out.
func (c *DeterministicClock) Ticks() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

// Reset rewinds the clock so the next call to Now returns start again.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = 0
}
