package engine

import "sync/atomic"

// Clock is the engine's logical clock.
//
// Every processed message is stamped with a strictly increasing seq, which
// orders the message log. When the transport delivers a message without an
// ordering reference, the seq doubles as that reference, so State-Notices
// from the same entity are admitted in delivery order.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations), but
// only the Run loop advances it.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming after start.
// Used on startup with the store's last seq.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
