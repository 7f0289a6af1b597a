package concurrent

import "sync/atomic"

// Counter is an atomic monotonic tally. The query façade keeps one per
// server to answer /stats without taking a lock on every request.
type Counter struct {
	value uint64
}

// NewCounter returns a counter starting at zero.
func NewCounter() *Counter {
	return &Counter{}
}

// Inc increments the counter by 1 and returns the new value. Called once
// per HTTP request that reaches the counting middleware.
func (c *Counter) Inc() uint64 {
	return atomic.AddUint64(&c.value, 1)
}

// Load returns the current value for reporting.
func (c *Counter) Load() uint64 {
	return atomic.LoadUint64(&c.value)
}
