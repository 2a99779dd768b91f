package engine

import (
	"fmt"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
)

// Replay rebuilds a graph from a journal of applied blueprints.
//
// Each entry is applied exactly as it was when first observed (undo
// entries are already reversed), so replaying a journal of commits, undos
// and redos reaches the same final state the recording engine had. The
// replayed engine has empty history; pass WithClock(NewClockAt(lastSeq)) to
// continue the journal's numbering.
//
// Schema changes are checked against the replayed schema, so a journal
// recorded over a different starting schema fails with a StaleSchemaError
// rather than diverging silently.
func Replay(schema *ir.Schema, entries []*ir.Blueprint, opts ...Option) (*Engine, error) {
	e := New(schema, opts...)
	for i, bp := range entries {
		if err := e.checkSchema(bp); err != nil {
			return nil, fmt.Errorf("replay entry %d: %w", i+1, err)
		}
		e.apply(bp)
	}
	if err := e.Verify(); err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	e.logger.Info("journal replayed", "entries", len(entries), "instances", e.Len())
	return e, nil
}
