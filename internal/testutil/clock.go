package testutil

import (
	"sync"
	"time"
)

// Clock provides a thread-safe deterministic wall clock for tests.
//
// Each call to Now advances the clock by a fixed step, so successive store
// writes get distinct, ordered timestamps without touching the real clock.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type Clock struct {
	mu   sync.Mutex
	base time.Time
	step time.Duration
	cur  time.Time
}

// NewClock creates a clock anchored at a fixed instant with a one-second
// step. The first call to Now returns the anchor itself.
func NewClock() *Clock {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return &Clock{base: base, step: time.Second, cur: base}
}

// Now returns the current instant and advances the clock by one step.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.cur
	c.cur = c.cur.Add(c.step)
	return t
}

// Current returns the instant the next Now call will return, without
// advancing.
func (c *Clock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

// Advance moves the clock forward by d without consuming a step.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(d)
}

// Reset rewinds the clock to its anchor. Used for test reuse.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.base
}
