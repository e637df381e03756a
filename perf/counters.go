// Package perf implements the dense, enum-indexed atomic counter blocks
// used throughout the store: one array of atomics per table and one per
// service, updated with relaxed atomics except for the Min/Max helpers,
// which need a CAS retry loop to stay monotonic under concurrent writers.
package perf

import "sync/atomic"

// Counters is a fixed-size, name-indexed block of atomic counters.
type Counters struct {
	values []atomic.Int64
	names  []string
}

// New allocates a Counters block with one atomic cell per name.
func New(names []string) *Counters {
	return &Counters{
		values: make([]atomic.Int64, len(names)),
		names:  names,
	}
}

// Len returns the number of counters in the block.
func (c *Counters) Len() int { return len(c.values) }

// Name returns the name of the i-th counter.
func (c *Counters) Name(i int) string { return c.names[i] }

func (c *Counters) Get(i int) int64 { return c.values[i].Load() }

func (c *Counters) Set(i int, v int64) { c.values[i].Store(v) }

func (c *Counters) Increment(i int) { c.values[i].Add(1) }

func (c *Counters) Decrement(i int) { c.values[i].Add(-1) }

func (c *Counters) Add(i int, delta int64) {
	if delta != 0 {
		c.values[i].Add(delta)
	}
}

func (c *Counters) Subtract(i int, delta int64) {
	if delta != 0 {
		c.values[i].Add(-delta)
	}
}

// Max raises the counter to v if v is larger than the current value.
// Min/Max counters are intentionally monotonic: removing a record never
// restores a previous minimum or maximum.
func (c *Counters) Max(i int, v int64) {
	cell := &c.values[i]
	for {
		cur := cell.Load()
		if cur >= v {
			return
		}
		if cell.CompareAndSwap(cur, v) {
			return
		}
	}
}

// Min lowers the counter to v if v is smaller than the current value.
func (c *Counters) Min(i int, v int64) {
	cell := &c.values[i]
	for {
		cur := cell.Load()
		if cur <= v {
			return
		}
		if cell.CompareAndSwap(cur, v) {
			return
		}
	}
}

// Snapshot copies every counter into a name-keyed map, for reporting
// sinks external to the store (out of scope for this module; see
// spec.md §1).
func (c *Counters) Snapshot() map[string]int64 {
	out := make(map[string]int64, len(c.values))
	for i, name := range c.names {
		out[name] = c.values[i].Load()
	}
	return out
}
