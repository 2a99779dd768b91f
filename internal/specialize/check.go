package specialize

import (
	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
)

func invalid(op, slot ir.UID, format string, args ...any) *ir.Error {
	e := ir.Errorf(ir.CodeSpecializationInvalid, format, args...)
	e.OperativeID = op
	e.SlotID = slot
	return e
}

// nearestAncestorSpec returns the id of the closest ancestor specialization
// of a slot, or NilUID.
func nearestAncestorSpec(s *ir.Schema, op *ir.LibraryOperative, slotID ir.UID) ir.UID {
	seen := map[ir.UID]bool{op.Tag.ID: true}
	for cur := op.ParentID; !cur.IsZero() && !seen[cur]; {
		seen[cur] = true
		parent, ok := s.Operatives[cur]
		if !ok {
			return ir.NilUID
		}
		if spec, ok := parent.Specialization(slotID); ok {
			return spec.Tag.ID
		}
		cur = parent.ParentID
	}
	return ir.NilUID
}

// CheckOperative verifies every specialization an operative publishes:
// the slot exists, the upstream pointer names the nearest ancestor
// specialization, and bound and type refinements narrow what is inherited.
func CheckOperative(s *ir.Schema, r Operatives, opID ir.UID) []*ir.Error {
	op, ok := s.Operatives[opID]
	if !ok {
		e := ir.Errorf(ir.CodeOperativeNotFound, "operative %s not found", opID)
		e.OperativeID = opID
		return []*ir.Error{e}
	}
	tmpl, ok := s.Template(op.TemplateID)
	if !ok {
		return nil
	}
	var errs []*ir.Error
	seen := make(map[ir.UID]bool)
	for _, spec := range op.SlotSpecializations {
		slot, ok := tmpl.OperativeSlots[spec.SlotID]
		if !ok {
			errs = append(errs, slotNotFound(opID, spec.SlotID))
			continue
		}
		if seen[spec.SlotID] {
			errs = append(errs, invalid(opID, spec.SlotID, "operative %q specializes slot %q twice", op.Tag.Name, slot.Tag.Name))
			continue
		}
		seen[spec.SlotID] = true

		if want := nearestAncestorSpec(s, op, spec.SlotID); spec.Upstream != want {
			errs = append(errs, invalid(opID, spec.SlotID,
				"specialization %q of slot %q points upstream at %s, nearest ancestor specialization is %s",
				spec.Tag.Name, slot.Tag.Name, spec.Upstream, want))
		}

		up, err := Upstream(s, opID, spec.SlotID)
		if err != nil {
			errs = append(errs, invalid(opID, spec.SlotID, "slot %q: %v", slot.Tag.Name, err))
			continue
		}
		if spec.Bound != nil && !Narrows(up.Bound, *spec.Bound) {
			errs = append(errs, invalid(opID, spec.SlotID,
				"slot %q: %s does not narrow inherited bound %s", slot.Tag.Name, spec.Bound, up.Bound))
		}
		if spec.Type != nil {
			errs = append(errs, checkType(s, r, opID, slot, up, *spec.Type)...)
		}
		if len(spec.SlottedInstances) > 0 {
			eff, err := Effective(s, opID, spec.SlotID)
			if err != nil {
				continue
			}
			for _, instID := range spec.SlottedInstances {
				inst, ok := s.LibraryInstance(instID)
				if !ok {
					errs = append(errs, invalid(opID, spec.SlotID, "slot %q binds unknown library instance %s", slot.Tag.Name, instID))
					continue
				}
				if ok, err := eff.Admits(s, r, inst.OperativeID); err != nil || !ok {
					errs = append(errs, invalid(opID, spec.SlotID,
						"slot %q binds library instance %q whose operative does not satisfy %s", slot.Tag.Name, inst.Tag.Name, eff.Describe()))
				}
			}
		}
	}
	return errs
}

func checkType(s *ir.Schema, r Operatives, opID ir.UID, slot ir.OperativeSlot, up Constraint, t ir.TypeSpecialization) []*ir.Error {
	var errs []*ir.Error
	switch t.Kind {
	case ir.TypeSingle, ir.TypeMulti:
		if t.Kind == ir.TypeSingle && len(t.OperativeIDs) != 1 {
			errs = append(errs, invalid(opID, slot.Tag.ID, "slot %q: Single type specialization names %d operatives", slot.Tag.Name, len(t.OperativeIDs)))
		}
		if len(t.OperativeIDs) == 0 {
			errs = append(errs, invalid(opID, slot.Tag.ID, "slot %q: type specialization names no operatives", slot.Tag.Name))
		}
		for _, id := range t.OperativeIDs {
			if _, ok := s.Operatives[id]; !ok {
				errs = append(errs, invalid(opID, slot.Tag.ID, "slot %q: unknown operative %s", slot.Tag.Name, id))
				continue
			}
			if ok, err := up.Admits(s, r, id); err != nil || !ok {
				errs = append(errs, invalid(opID, slot.Tag.ID, "slot %q: operative %s does not satisfy inherited %s", slot.Tag.Name, id, up.Describe()))
			}
		}
	case ir.TypeTraitObject:
		if len(t.TraitIDs) == 0 {
			errs = append(errs, invalid(opID, slot.Tag.ID, "slot %q: trait specialization names no traits", slot.Tag.Name))
		}
		for _, id := range t.TraitIDs {
			if _, ok := s.Traits[id]; !ok {
				errs = append(errs, invalid(opID, slot.Tag.ID, "slot %q: unknown trait %s", slot.Tag.Name, id))
			}
		}
	default:
		errs = append(errs, invalid(opID, slot.Tag.ID, "slot %q: unknown type specialization kind %d", slot.Tag.Name, t.Kind))
	}
	return errs
}

// Check verifies every operative's specializations.
func Check(s *ir.Schema, r Operatives) []*ir.Error {
	var errs []*ir.Error
	for _, id := range ir.SortedKeys(s.Operatives) {
		errs = append(errs, CheckOperative(s, r, id)...)
	}
	return errs
}
