package testutil

import (
	"sync"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
)

// DeterministicUIDs hands out instance ids with a fixed prefix and a counter.
//
// Unlike ir.SequentialUIDs, DeterministicUIDs can be reset for test reuse.
// This lets the same scenario run several times and produce identical graphs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicUIDs struct {
	mu     sync.Mutex
	prefix uint64
	n      uint64
}

// NewDeterministicUIDs creates a generator. The first call to Next returns
// UIDFromUint64(prefix, 1).
func NewDeterministicUIDs(prefix uint64) *DeterministicUIDs {
	return &DeterministicUIDs{prefix: prefix}
}

// Next returns the next id.
//
// Implements ir.UIDGenerator.
func (g *DeterministicUIDs) Next() ir.UID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return ir.UIDFromUint64(g.prefix, g.n)
}

// Count returns how many ids were handed out since the last reset.
func (g *DeterministicUIDs) Count() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}

// Reset restarts the counter. After Reset, Next returns UIDFromUint64(prefix, 1).
func (g *DeterministicUIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
