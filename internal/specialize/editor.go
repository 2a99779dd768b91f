package specialize

import (
	"slices"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/digest"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
)

// Graph is the read view the editor needs of a live graph.
type Graph interface {
	Schema() *ir.Schema
	Get(id ir.UID) (*ir.InstanceRecord, bool)
	IDs() []ir.UID
}

// Editor stages schema edits (field locks and slot specializations) against
// a live graph. Each edit returns a blueprint carrying the schema change and
// the field edits that keep live instances compliant; nothing is applied
// until the caller commits it.
type Editor struct {
	graph Graph
	ids   ir.UIDGenerator
}

// NewEditor creates an editor. ids allocates specialization ids; nil means random.
func NewEditor(g Graph, ids ir.UIDGenerator) *Editor {
	if ids == nil {
		ids = ir.RandomUIDs{}
	}
	return &Editor{graph: g, ids: ids}
}

func operativeNotFound(id ir.UID) *ir.Error {
	e := ir.Errorf(ir.CodeOperativeNotFound, "operative %s not found", id)
	e.OperativeID = id
	return e
}

// scope is an operative plus all its descendants.
func scope(s *ir.Schema, opID ir.UID) []ir.UID {
	return append([]ir.UID{opID}, digest.Descendants(s, opID)...)
}

// liveIn lists live instances whose operative is in ops, in id order.
func (e *Editor) liveIn(ops []ir.UID) []*ir.InstanceRecord {
	var out []*ir.InstanceRecord
	for _, id := range e.graph.IDs() {
		rec, ok := e.graph.Get(id)
		if ok && slices.Contains(ops, rec.OperativeID) {
			out = append(out, rec)
		}
	}
	return out
}

func schemaChange(before, after *ir.Schema) *ir.Blueprint {
	return &ir.Blueprint{Schema: &ir.SchemaChange{Before: before, After: after}}
}

// LockField locks a field of an operative at a value. Live instances of the
// operative and its descendants are brought to the locked value through
// field edits in the returned blueprint.
func (e *Editor) LockField(opID, fieldID ir.UID, v ir.Value) (*ir.Blueprint, error) {
	s := e.graph.Schema()
	op, ok := s.Operatives[opID]
	if !ok {
		return nil, operativeNotFound(opID)
	}
	tmpl, ok := s.Template(op.TemplateID)
	if !ok {
		return nil, operativeNotFound(opID)
	}
	fc, ok := tmpl.FieldConstraints[fieldID]
	if !ok {
		err := ir.Errorf(ir.CodeFieldNotFound, "template %q has no field %s", tmpl.Tag.Name, fieldID)
		err.OperativeID, err.FieldID = opID, fieldID
		return nil, err
	}
	if v == nil || !v.Type().Equal(fc.ValueType) {
		err := ir.Errorf(ir.CodeFieldTypeMismatch, "field %q is %s, got %s", fc.Tag.Name, fc.ValueType, ir.TypeOf(v))
		err.OperativeID, err.FieldID = opID, fieldID
		return nil, err
	}

	locked, err := digest.LockedFields(s, opID)
	if err != nil {
		return nil, err
	}
	if lf, ok := locked[fieldID]; ok {
		if ir.Equal(lf.Value, v) {
			return &ir.Blueprint{}, nil
		}
		err := ir.Errorf(ir.CodeLockedFieldViolation, "field %q is already locked at %s by %s",
			fc.Tag.Name, ir.FormatValue(lf.Value), lf.FulfilledBy)
		err.OperativeID, err.FieldID = opID, fieldID
		return nil, err
	}
	var errs []*ir.Error
	for _, d := range digest.Descendants(s, opID) {
		if dv, ok := s.Operatives[d].LockedValue(fieldID); ok && !ir.Equal(dv, v) {
			err := ir.Errorf(ir.CodeLockedFieldViolation, "descendant %q locks field %q at %s",
				s.Operatives[d].Tag.Name, fc.Tag.Name, ir.FormatValue(dv))
			err.OperativeID, err.FieldID = d, fieldID
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, ir.Aggregate(errs)
	}

	next := s.Clone()
	nop := next.Operatives[opID]
	nop.LockedFields = append(nop.LockedFields, ir.FieldValue{FieldID: fieldID, Value: v})

	bp := schemaChange(s, next)
	for _, rec := range e.liveIn(scope(s, opID)) {
		if prev := rec.Fields[fieldID]; !ir.Equal(prev, v) {
			bp.FieldUpdates = append(bp.FieldUpdates, ir.FieldEdit{
				InstanceID: rec.ID,
				FieldID:    fieldID,
				New:        v,
				Prev:       prev,
			})
		}
	}
	return bp, nil
}

// UnlockField removes an operative's own lock on a field. Live values are
// kept; they simply become editable.
func (e *Editor) UnlockField(opID, fieldID ir.UID) (*ir.Blueprint, error) {
	s := e.graph.Schema()
	op, ok := s.Operatives[opID]
	if !ok {
		return nil, operativeNotFound(opID)
	}
	if _, ok := op.LockedValue(fieldID); !ok {
		err := ir.Errorf(ir.CodeFieldNotFound, "operative %q does not lock field %s", op.Tag.Name, fieldID)
		err.OperativeID, err.FieldID = opID, fieldID
		return nil, err
	}
	next := s.Clone()
	nop := next.Operatives[opID]
	nop.LockedFields = slices.DeleteFunc(nop.LockedFields, func(fv ir.FieldValue) bool {
		return fv.FieldID == fieldID
	})
	return schemaChange(s, next), nil
}

// NarrowSlot specializes the cardinality of a slot on an operative. The new
// bound must narrow what the operative inherits, must still be narrowed by
// every descendant's own bound, and must admit the current contents of every
// live instance of the operative and its descendants.
func (e *Editor) NarrowSlot(opID, slotID ir.UID, bound ir.SlotBound) (*ir.Blueprint, error) {
	return e.edit(opID, slotID, func(_ *ir.Schema, spec *ir.SlotSpecialization) {
		b := bound
		spec.Bound = &b
	})
}

// NarrowSlotType specializes which operatives a slot admits on an operative.
// Existing targets held by live instances in scope must still be admitted.
func (e *Editor) NarrowSlotType(opID, slotID ir.UID, t ir.TypeSpecialization) (*ir.Blueprint, error) {
	return e.edit(opID, slotID, func(_ *ir.Schema, spec *ir.SlotSpecialization) {
		tt := ir.TypeSpecialization{
			Kind:         t.Kind,
			OperativeIDs: ir.SortUIDs(append([]ir.UID(nil), t.OperativeIDs...)),
			TraitIDs:     ir.SortUIDs(append([]ir.UID(nil), t.TraitIDs...)),
		}
		spec.Type = &tt
	})
}

// BindLibraryInstances binds library instances to a slot through the
// operative's specialization.
func (e *Editor) BindLibraryInstances(opID, slotID ir.UID, instances ...ir.UID) (*ir.Blueprint, error) {
	return e.edit(opID, slotID, func(_ *ir.Schema, spec *ir.SlotSpecialization) {
		spec.SlottedInstances = ir.SortUIDs(append([]ir.UID(nil), instances...))
	})
}

// TransferOwnership gives an operative its own copy of the specialization it
// inherits for a slot, leaving the ancestor's intact for siblings.
func (e *Editor) TransferOwnership(opID, slotID ir.UID) (*ir.Blueprint, error) {
	s := e.graph.Schema()
	op, ok := s.Operatives[opID]
	if !ok {
		return nil, operativeNotFound(opID)
	}
	if _, ok := op.Specialization(slotID); ok {
		return nil, invalid(opID, slotID, "operative %q already owns its specialization of slot %s", op.Tag.Name, slotID)
	}
	if nearestAncestorSpec(s, op, slotID).IsZero() {
		return nil, invalid(opID, slotID, "no ancestor of %q specializes slot %s", op.Tag.Name, slotID)
	}
	return e.edit(opID, slotID, func(*ir.Schema, *ir.SlotSpecialization) {})
}

// ClearSpecialization removes an operative's own specialization of a slot.
// Descendants that refined it are relinked to its upstream.
func (e *Editor) ClearSpecialization(opID, slotID ir.UID) (*ir.Blueprint, error) {
	s := e.graph.Schema()
	op, ok := s.Operatives[opID]
	if !ok {
		return nil, operativeNotFound(opID)
	}
	spec, ok := op.Specialization(slotID)
	if !ok {
		return nil, invalid(opID, slotID, "operative %q does not specialize slot %s", op.Tag.Name, slotID)
	}
	removed, upstream := spec.Tag.ID, spec.Upstream

	next := s.Clone()
	nop := next.Operatives[opID]
	nop.SlotSpecializations = slices.DeleteFunc(nop.SlotSpecializations, func(sp ir.SlotSpecialization) bool {
		return sp.SlotID == slotID
	})
	relink(next, digest.Descendants(next, opID), slotID, removed, upstream)
	if err := e.verify(next, scope(next, opID)); err != nil {
		return nil, err
	}
	return schemaChange(s, next), nil
}

// edit clones the schema, makes sure opID owns a specialization of slotID,
// applies mutate to it, and verifies the result against the schema and the
// live graph.
func (e *Editor) edit(opID, slotID ir.UID, mutate func(*ir.Schema, *ir.SlotSpecialization)) (*ir.Blueprint, error) {
	s := e.graph.Schema()
	op, ok := s.Operatives[opID]
	if !ok {
		return nil, operativeNotFound(opID)
	}
	if _, err := Upstream(s, opID, slotID); err != nil {
		return nil, err
	}
	next := s.Clone()
	spec := e.own(next, next.Operatives[opID], slotID)
	mutate(next, spec)
	if err := e.verify(next, scope(next, op.Tag.ID)); err != nil {
		return nil, err
	}
	return schemaChange(s, next), nil
}

// own returns op's specialization of a slot, creating it if needed. When an
// ancestor already specializes the slot, the new specialization is a clone
// of the ancestor's (type, bound and slotted instances) with a fresh id, and
// descendants that pointed at the ancestor's are rewired to the clone.
func (e *Editor) own(s *ir.Schema, op *ir.LibraryOperative, slotID ir.UID) *ir.SlotSpecialization {
	if spec, ok := op.Specialization(slotID); ok {
		return spec
	}
	name := op.Tag.Name
	if tmpl, ok := s.Template(op.TemplateID); ok {
		name += "." + tmpl.OperativeSlots[slotID].Tag.Name
	}
	ancID := nearestAncestorSpec(s, op, slotID)
	local := ir.SlotSpecialization{SlotID: slotID}
	if !ancID.IsZero() {
		if anc := findSpec(s, ancID); anc != nil {
			local = anc.Clone()
		}
		local.Upstream = ancID
	}
	local.Tag = ir.Tag{Name: name, ID: e.ids.Next()}
	op.SlotSpecializations = append(op.SlotSpecializations, local)
	relink(s, digest.Descendants(s, op.Tag.ID), slotID, ancID, local.Tag.ID)
	return &op.SlotSpecializations[len(op.SlotSpecializations)-1]
}

func findSpec(s *ir.Schema, specID ir.UID) *ir.SlotSpecialization {
	for _, op := range s.Operatives {
		for i := range op.SlotSpecializations {
			if op.SlotSpecializations[i].Tag.ID == specID {
				return &op.SlotSpecializations[i]
			}
		}
	}
	return nil
}

// relink points specializations of slotID among ops whose upstream is from at to.
func relink(s *ir.Schema, ops []ir.UID, slotID, from, to ir.UID) {
	for _, id := range ops {
		op := s.Operatives[id]
		for i := range op.SlotSpecializations {
			sp := &op.SlotSpecializations[i]
			if sp.SlotID == slotID && sp.Upstream == from {
				sp.Upstream = to
			}
		}
	}
}

// verify checks the edited schema for the operatives in scope and every live
// instance of them: slot counts against effective bounds, targets against
// effective descriptors.
func (e *Editor) verify(next *ir.Schema, ops []ir.UID) error {
	var errs []*ir.Error
	for _, id := range ops {
		errs = append(errs, CheckOperative(next, nil, id)...)
	}
	for _, rec := range e.liveIn(ops) {
		constraints, err := Slots(next, rec.OperativeID)
		if err != nil {
			return err
		}
		for _, slotID := range ir.SortedKeys(constraints) {
			c := constraints[slotID]
			targets := rec.Outgoing[slotID]
			if !c.Bound.Allows(len(targets)) {
				errs = append(errs, ir.CardinalityOutOfRange(rec.ID, slotID, c.Slot.Tag.Name, len(targets), c.Bound))
			}
			for _, t := range targets {
				trec, ok := e.graph.Get(t)
				if !ok {
					continue
				}
				if ok, err := c.Admits(next, nil, trec.OperativeID); err != nil || !ok {
					errs = append(errs, ir.OutgoingElementWrongType(rec.ID, slotID, t, trec.OperativeID, c.Describe()))
				}
			}
		}
	}
	return ir.Aggregate(errs)
}
