package engine

import "sync/atomic"

// Clock stamps outgoing messages with strictly increasing sequence
// numbers, so a persisted message log replays in signing order.
//
// Safe for concurrent use, although only the evaluation goroutine
// appends to the log.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock that resumes after start, used when a session
// appends to an existing persisted log.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
