package engine

import "sync/atomic"

// Clock numbers history events. Each commit, undo and redo the engine
// notifies observers about carries the next value, and the store journals
// entries under that number, so a journal read by seq is the graph's change
// order. Wall time never enters it.
//
// The engine advances its clock from a single writer; the atomic counter
// only matters when observers read Current concurrently.
type Clock struct {
	seq atomic.Int64
}

// NewClock returns a clock whose first event is seq 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt returns a clock whose first event is start+1. A restored
// session starts at its last journaled seq so new entries follow it.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new seq.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current is the seq of the latest event, 0 before any.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
