package testutil

import (
	"encoding/binary"
	"sync"
	"time"
)

// Epoch is the wall-clock time a DeterministicClock starts at.
var Epoch = time.Unix(1_700_000_000, 0).UTC()

// DeterministicClock is a thread-safe wall clock for signers in tests.
// Every call to Now advances it by Step, so two requests signed in the same
// test never share an ingress expiry unless Step is zero.
type DeterministicClock struct {
	mu    sync.Mutex
	now   time.Time
	Step  time.Duration
	ticks int64
}

// NewDeterministicClock creates a clock at Epoch that does not advance.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{now: Epoch}
}

// Now returns the current time and then advances the clock.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.Step)
	c.ticks++
	return t
}

// Ticks returns how many times Now has been called.
func (c *DeterministicClock) Ticks() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

// Reset moves the clock back to Epoch.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = Epoch
	c.ticks = 0
}

// CounterNonce returns a nonce source yielding 8-byte big-endian counters
// 1, 2, 3, ... so that signed envelopes are reproducible.
//
// Thread-safe: the counter is guarded by a mutex.
func CounterNonce() func() ([]byte, error) {
	var mu sync.Mutex
	var n uint64
	return func() ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return binary.BigEndian.AppendUint64(nil, n), nil
	}
}
