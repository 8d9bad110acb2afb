package txn

import "time"

// Clock supplies commit times in epoch milliseconds.
//
// Commit reads the clock once per call so every stamp finalized together
// carries the same time.
type Clock interface {
	NowMillis() int64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// NowMillis implements Clock.
func (SystemClock) NowMillis() int64 {
	return time.Now().UnixMilli()
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() int64

// NowMillis implements Clock.
func (f ClockFunc) NowMillis() int64 { return f() }
