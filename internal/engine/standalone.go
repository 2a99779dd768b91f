package engine

import (
	"fmt"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
)

// Standalone exports every live instance in id order.
func (e *Engine) Standalone() []ir.StandaloneInstance {
	out := make([]ir.StandaloneInstance, 0, len(e.instances))
	for _, id := range e.IDs() {
		out = append(out, e.instances[id].Standalone())
	}
	return out
}

// LoadBlueprint turns a standalone set into a blueprint that recreates it
// on an empty graph: records in Added, every edge in the edge sets.
// Duplicate ids are rejected.
func LoadBlueprint(instances []ir.StandaloneInstance) (*ir.Blueprint, error) {
	bp := &ir.Blueprint{}
	seen := make(map[ir.UID]bool, len(instances))
	for _, si := range instances {
		if seen[si.ID] {
			return nil, fmt.Errorf("load: duplicate instance %s", si.ID)
		}
		seen[si.ID] = true
		rec := si.Record()
		bp.Added = append(bp.Added, rec.WithoutEdges())
		bp.AddOutgoing = append(bp.AddOutgoing, rec.OutgoingEdges()...)
		bp.AddIncoming = append(bp.AddIncoming, rec.Incoming...)
	}
	bp.AddOutgoing = ir.SortEdges(bp.AddOutgoing)
	bp.AddIncoming = ir.SortEdges(bp.AddIncoming)
	return bp, nil
}

// Load builds a graph from standalone instances and verifies it.
// The returned engine has empty history.
func Load(schema *ir.Schema, instances []ir.StandaloneInstance, opts ...Option) (*Engine, error) {
	bp, err := LoadBlueprint(instances)
	if err != nil {
		return nil, err
	}
	e := New(schema, opts...)
	if err := e.Apply(bp); err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	if err := e.Verify(); err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	e.logger.Info("graph loaded", "instances", e.Len())
	return e, nil
}
