package opmon

import "sync/atomic"

// Counter tracks a cumulative amount plus the amount accumulated since the
// last snapshot. Safe for many concurrent writers with one periodic reader.
type Counter struct {
	total  atomic.Int64
	window atomic.Int64
}

// NewCounter allocates a zeroed counter pair.
func NewCounter() *Counter {
	return &Counter{}
}

// Inc adds one to both the cumulative and the window counter.
func (c *Counter) Inc() {
	c.Add(1)
}

// Add adds n to both counters. Non-positive n is ignored.
func (c *Counter) Add(n int64) {
	if n <= 0 {
		return
	}
	c.total.Add(n)
	c.window.Add(n)
}

// Total returns the cumulative amount without mutating it.
func (c *Counter) Total() int64 {
	return c.total.Load()
}

// Window returns the since-last-snapshot amount without resetting it.
func (c *Counter) Window() int64 {
	return c.window.Load()
}

// SnapshotWindow atomically returns the since-last-snapshot amount and
// resets it to zero. The cumulative counter is left untouched.
func (c *Counter) SnapshotWindow() int64 {
	return c.window.Swap(0)
}

// Restore adds n back to the window counter only, preserving the snapshot
// for the next collection after a failed publish.
func (c *Counter) Restore(n int64) {
	if n <= 0 {
		return
	}
	c.window.Add(n)
}
