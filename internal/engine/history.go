package engine

import "github.com/reedwoodruff/molecule-schema-sub000/internal/ir"

// DefaultMaxHistory is the default undo depth. Zero means unlimited.
const DefaultMaxHistory = 0

// history holds the undo and redo stacks.
//
// The undo stack is bounded by limit: pushing past it drops the oldest
// entry. Dropped entries can no longer be undone, but the graph state is
// unaffected. The redo stack is never trimmed; it only grows through undo
// and is cleared by every commit.
type history struct {
	undo    []*ir.Blueprint
	redo    []*ir.Blueprint
	limit   int // Maximum undo depth, 0 = unlimited
	dropped int // Entries dropped from the bottom of the undo stack
}

func newHistory(limit int) *history {
	return &history{limit: limit}
}

// commit records a freshly committed blueprint and clears redo.
// Returns true if the oldest undo entry was dropped to stay within limit.
func (h *history) commit(bp *ir.Blueprint) bool {
	h.redo = nil
	return h.pushUndo(bp)
}

func (h *history) pushUndo(bp *ir.Blueprint) bool {
	h.undo = append(h.undo, bp)
	if h.limit > 0 && len(h.undo) > h.limit {
		h.undo[0] = nil
		h.undo = h.undo[1:]
		h.dropped++
		return true
	}
	return false
}

func (h *history) popUndo() (*ir.Blueprint, bool) {
	return pop(&h.undo)
}

func (h *history) pushRedo(bp *ir.Blueprint) {
	h.redo = append(h.redo, bp)
}

func (h *history) popRedo() (*ir.Blueprint, bool) {
	return pop(&h.redo)
}

func pop(stack *[]*ir.Blueprint) (*ir.Blueprint, bool) {
	s := *stack
	if len(s) == 0 {
		return nil, false
	}
	bp := s[len(s)-1]
	s[len(s)-1] = nil
	*stack = s[:len(s)-1]
	return bp, true
}

// depth returns the undo and redo stack sizes.
func (h *history) depth() (undo, redo int) {
	return len(h.undo), len(h.redo)
}
