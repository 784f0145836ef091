// Package store holds the MessageStore backends for the persisted history log.
package store

import (
	"sync"
	"time"
)

// Clock hands out strictly increasing UTC timestamps. Two appends landing in
// the same nanosecond, or a wall clock stepping backwards, still produce
// distinct ordered timestamps.
type Clock struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewClock creates a Clock backed by the wall clock.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Next returns the next timestamp.
func (c *Clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := c.now().UTC().UnixNano()
	if ts <= c.last {
		ts = c.last + 1
	}
	c.last = ts
	return time.Unix(0, ts).UTC()
}

// Observe moves the clock past a timestamp already present in the log, so
// a restarted process never stamps a message older than stored history.
func (c *Clock) Observe(ts time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := ts.UnixNano(); n > c.last {
		c.last = n
	}
}
