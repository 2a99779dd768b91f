package engine

import (
	"slices"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/specialize"
)

// Verify checks the graph invariants over every live instance and returns
// all violations as an *ir.AggregateError, or nil:
//
//   - edge duality: each outgoing edge has a matching incoming entry and
//     each incoming entry a matching outgoing edge (EDGE_DUALITY)
//   - every edge endpoint is live (OUTGOING_ELEMENT_DOES_NOT_EXIST)
//   - slot counts satisfy the effective bound (CARDINALITY_OUT_OF_RANGE)
//   - slot targets satisfy the effective descriptor (OUTGOING_ELEMENT_WRONG_TYPE)
//   - fields match the template exactly and are well typed
//   - locked fields hold their locked value (LOCKED_FIELD_VIOLATION)
func (e *Engine) Verify() error {
	var errs []*ir.Error
	for _, id := range e.IDs() {
		errs = append(errs, e.verifyInstance(e.instances[id])...)
	}
	return ir.Aggregate(errs)
}

func (e *Engine) verifyInstance(rec *ir.InstanceRecord) []*ir.Error {
	var errs []*ir.Error
	s := e.schema

	for _, edge := range rec.OutgoingEdges() {
		target, ok := e.instances[edge.Target]
		if !ok {
			err := ir.OutgoingElementDoesNotExist(edge.Target)
			err.InstanceID, err.SlotID = rec.ID, edge.Slot
			errs = append(errs, err)
			continue
		}
		if _, found := slices.BinarySearchFunc(target.Incoming, edge, ir.EdgeRef.Compare); !found {
			errs = append(errs, duality(edge, "outgoing edge has no incoming entry on target"))
		}
	}
	for _, edge := range rec.Incoming {
		host, ok := e.instances[edge.Host]
		if !ok {
			err := ir.OutgoingElementDoesNotExist(edge.Host)
			err.InstanceID, err.SlotID = rec.ID, edge.Slot
			errs = append(errs, err)
			continue
		}
		if edge.Target != rec.ID || !slices.Contains(host.Outgoing[edge.Slot], rec.ID) {
			errs = append(errs, duality(edge, "incoming entry has no outgoing edge on host"))
		}
	}

	op, ok := s.Operative(rec.OperativeID)
	if !ok {
		err := ir.Errorf(ir.CodeOperativeNotFound, "instance %s conforms to unknown operative %s", rec.ID, rec.OperativeID)
		err.InstanceID, err.OperativeID = rec.ID, rec.OperativeID
		return append(errs, err)
	}
	tmpl, ok := s.Template(op.TemplateID)
	if !ok || tmpl.Tag.ID != rec.TemplateID {
		err := ir.Errorf(ir.CodeOperativeNotFound, "instance %s template %s does not match operative %q", rec.ID, rec.TemplateID, op.Tag.Name)
		err.InstanceID, err.OperativeID = rec.ID, rec.OperativeID
		return append(errs, err)
	}

	constraints, err := specialize.Slots(s, rec.OperativeID)
	if err != nil {
		return append(errs, graphErrors(rec.ID, err)...)
	}
	for _, slotID := range ir.SortedKeys(rec.Outgoing) {
		if _, ok := constraints[slotID]; !ok && len(rec.Outgoing[slotID]) > 0 {
			err := ir.Errorf(ir.CodeSlotNotFound, "template %q has no slot %s", tmpl.Tag.Name, slotID)
			err.InstanceID, err.SlotID = rec.ID, slotID
			errs = append(errs, err)
		}
	}
	for _, slotID := range ir.SortedKeys(constraints) {
		c := constraints[slotID]
		targets := rec.Outgoing[slotID]
		if !c.Bound.Allows(len(targets)) {
			errs = append(errs, ir.CardinalityOutOfRange(rec.ID, slotID, c.Slot.Tag.Name, len(targets), c.Bound))
		}
		for _, t := range targets {
			target, ok := e.instances[t]
			if !ok {
				continue
			}
			if admitted, err := c.Admits(s, e.resolver, target.OperativeID); err != nil || !admitted {
				errs = append(errs, ir.OutgoingElementWrongType(rec.ID, slotID, t, target.OperativeID, c.Describe()))
			}
		}
	}

	for _, fieldID := range ir.SortedKeys(tmpl.FieldConstraints) {
		fc := tmpl.FieldConstraints[fieldID]
		v, ok := rec.Fields[fieldID]
		if !ok {
			errs = append(errs, ir.RequiredFieldEmpty(rec.ID, fieldID, fc.Tag.Name))
			continue
		}
		if !v.Type().Equal(fc.ValueType) {
			err := ir.Errorf(ir.CodeFieldTypeMismatch, "field %q is %s, holds %s", fc.Tag.Name, fc.ValueType, v.Type())
			err.InstanceID, err.FieldID = rec.ID, fieldID
			errs = append(errs, err)
		}
	}
	for _, fieldID := range ir.SortedKeys(rec.Fields) {
		if _, ok := tmpl.FieldConstraints[fieldID]; !ok {
			err := ir.Errorf(ir.CodeFieldNotFound, "template %q has no field %s", tmpl.Tag.Name, fieldID)
			err.InstanceID, err.FieldID = rec.ID, fieldID
			errs = append(errs, err)
		}
	}

	locked, err := e.resolver.LockedFields(s, rec.OperativeID)
	if err != nil {
		return append(errs, graphErrors(rec.ID, err)...)
	}
	for _, fieldID := range ir.SortedKeys(locked) {
		lf := locked[fieldID]
		if v, ok := rec.Fields[fieldID]; ok && !ir.Equal(v, lf.Value) {
			err := ir.Errorf(ir.CodeLockedFieldViolation, "field %s holds %s, locked at %s by %s",
				fieldID, ir.FormatValue(v), ir.FormatValue(lf.Value), lf.FulfilledBy)
			err.InstanceID, err.FieldID = rec.ID, fieldID
			errs = append(errs, err)
		}
	}
	return errs
}

func duality(edge ir.EdgeRef, msg string) *ir.Error {
	err := ir.Errorf(ir.CodeEdgeDuality, "%s", msg)
	err.InstanceID = edge.Host
	err.SlotID = edge.Slot
	err.TargetID = edge.Target
	return err
}

// graphErrors keeps resolver failures that are not graph errors (parent
// cycles) visible in the aggregate.
func graphErrors(id ir.UID, err error) []*ir.Error {
	if errs := ir.AsErrors(err); len(errs) > 0 {
		return errs
	}
	ge := ir.Errorf(ir.CodeOperativeNotFound, "instance %s: %v", id, err)
	ge.InstanceID = id
	return []*ir.Error{ge}
}
