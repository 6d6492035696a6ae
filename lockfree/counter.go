package lockfree

import "sync/atomic"

// Counter is a lock-free fetch-add/fetch-sub counter, used for the queue's
// size hint and anywhere else the core needs a shared count without a lock
// (e.g. a per-CPU ready-queue length sample taken by the load balancer
// without acquiring that CPU's runqueue lock).
type Counter struct {
	v atomic.Int64
}

// Add adds delta and returns the new value.
func (c *Counter) Add(delta int64) int64 { return c.v.Add(delta) }

// Load returns the current value.
func (c *Counter) Load() int64 { return c.v.Load() }

// Store sets the value directly.
func (c *Counter) Store(v int64) { c.v.Store(v) }

// CompareAndSwap atomically replaces old with new, reporting success.
func (c *Counter) CompareAndSwap(old, new int64) bool {
	return c.v.CompareAndSwap(old, new)
}
