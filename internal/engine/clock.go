package engine

import "sync/atomic"

// Clock counts recorded episodes. Current is the id of the last episode
// recorded (0 before the first), so the episode being written is
// Current()+1 until Next commits it.
//
// Thread-safety: Clock is safe for concurrent use, so Stats may read it from
// another goroutine while a tick runs.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock with no recorded episodes.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose last recorded episode is last.
// Used when reopening a store.
func NewClockAt(last int64) *Clock {
	c := &Clock{}
	c.seq.Store(last)
	return c
}

// Next commits the pending episode and returns its id.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last recorded episode.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// Pending returns the id the next recorded episode will get.
func (c *Clock) Pending() int64 {
	return c.seq.Load() + 1
}
