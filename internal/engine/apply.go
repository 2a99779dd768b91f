package engine

import (
	"slices"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
)

// apply writes a blueprint into the graph in the fixed order documented on
// the package. It never fails: the builder validated the blueprint, and
// edge entries whose endpoint is gone (removals touching a record deleted
// in the same blueprint) are skipped.
func (e *Engine) apply(bp *ir.Blueprint) {
	if bp.Schema != nil && bp.Schema.After != nil {
		e.schema = bp.Schema.After
	}
	for _, rec := range bp.Added {
		e.instances[rec.ID] = rec.WithoutEdges()
	}
	for _, rec := range bp.Deleted {
		delete(e.instances, rec.ID)
	}
	for _, edge := range bp.AddOutgoing {
		host, ok := e.instances[edge.Host]
		if !ok {
			e.logger.Warn("outgoing edge on missing host skipped", "host", edge.Host, "slot", edge.Slot)
			continue
		}
		host.Outgoing[edge.Slot] = insertUID(host.Outgoing[edge.Slot], edge.Target)
	}
	for _, edge := range bp.AddIncoming {
		target, ok := e.instances[edge.Target]
		if !ok {
			e.logger.Warn("incoming edge on missing target skipped", "target", edge.Target, "slot", edge.Slot)
			continue
		}
		target.Incoming = insertEdge(target.Incoming, edge)
	}
	for _, edge := range bp.RemoveOutgoing {
		host, ok := e.instances[edge.Host]
		if !ok {
			continue
		}
		targets := removeUID(host.Outgoing[edge.Slot], edge.Target)
		if len(targets) == 0 {
			delete(host.Outgoing, edge.Slot)
		} else {
			host.Outgoing[edge.Slot] = targets
		}
	}
	for _, edge := range bp.RemoveIncoming {
		target, ok := e.instances[edge.Target]
		if !ok {
			continue
		}
		target.Incoming = removeEdge(target.Incoming, edge)
	}
	for _, fe := range bp.FieldUpdates {
		rec, ok := e.instances[fe.InstanceID]
		if !ok {
			continue
		}
		if fe.New == nil {
			delete(rec.Fields, fe.FieldID)
		} else {
			rec.Fields[fe.FieldID] = fe.New
		}
	}
}

func insertUID(list []ir.UID, id ir.UID) []ir.UID {
	i, found := slices.BinarySearchFunc(list, id, ir.UID.Compare)
	if found {
		return list
	}
	return slices.Insert(list, i, id)
}

func removeUID(list []ir.UID, id ir.UID) []ir.UID {
	i, found := slices.BinarySearchFunc(list, id, ir.UID.Compare)
	if !found {
		return list
	}
	return slices.Delete(list, i, i+1)
}

func insertEdge(list []ir.EdgeRef, e ir.EdgeRef) []ir.EdgeRef {
	i, found := slices.BinarySearchFunc(list, e, ir.EdgeRef.Compare)
	if found {
		return list
	}
	return slices.Insert(list, i, e)
}

func removeEdge(list []ir.EdgeRef, e ir.EdgeRef) []ir.EdgeRef {
	i, found := slices.BinarySearchFunc(list, e, ir.EdgeRef.Compare)
	if !found {
		return list
	}
	return slices.Delete(list, i, i+1)
}
