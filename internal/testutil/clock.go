package testutil

import "sync"

// ManualClock is a commit clock for tests that only moves when told to.
//
// The same scenario with the same ManualClock assigns identical commit
// times on every run.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualClock struct {
	mu    sync.Mutex
	start int64
	now   int64
}

// NewManualClock creates a clock reading start epoch milliseconds.
func NewManualClock(start int64) *ManualClock {
	return &ManualClock{start: start, now: start}
}

// NowMillis returns the current time without advancing.
func (c *ManualClock) NowMillis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by ms and returns the new time.
func (c *ManualClock) Advance(ms int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += ms
	return c.now
}

// Set moves the clock to t.
func (c *ManualClock) Set(t int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Reset returns the clock to its start time.
func (c *ManualClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
