package coordinator

import "sync/atomic"

// Clock is the local author's logical clock. Every event the device authors
// is stamped with Next, and Observe folds in timestamps seen on accepted
// events so the clock stays monotonic across restarts.
//
// The channel orders events by sequence number; the clock is informational.
// Clock is safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at a specific value.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next timestamp and advances the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current timestamp without advancing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// Observe advances the clock to at least t.
func (c *Clock) Observe(t int64) {
	for {
		cur := c.seq.Load()
		if t <= cur || c.seq.CompareAndSwap(cur, t) {
			return
		}
	}
}
