package specialize

import (
	"fmt"
	"strings"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/digest"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
)

// Constraint is the effective constraint on one slot of one operative.
//
// Bound comes from the childest cardinality specialization in scope (or the
// template slot). Types holds every type specialization in scope, nearest
// first; a target must satisfy the template descriptor and all of them.
type Constraint struct {
	SlotID     ir.UID
	Slot       ir.OperativeSlot
	Bound      ir.SlotBound
	BoundOwner ir.UID
	Types      []ir.TypeSpecialization
	Spec       *ir.SlotSpecialization
	SpecOwner  ir.UID
}

// Owned reports whether op itself carries the childest specialization.
func (c Constraint) Owned(op ir.UID) bool {
	return c.Spec != nil && c.SpecOwner == op
}

// Describe renders the descriptor and type narrowings for error messages.
func (c Constraint) Describe() string {
	parts := []string{c.Slot.Descriptor.String()}
	for _, t := range c.Types {
		parts = append(parts, describeType(t))
	}
	return strings.Join(parts, " & ")
}

func describeType(t ir.TypeSpecialization) string {
	ids := t.OperativeIDs
	if t.Kind == ir.TypeTraitObject {
		ids = t.TraitIDs
	}
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = id.String()
	}
	return t.Kind.String() + "(" + strings.Join(names, ",") + ")"
}

// Operatives resolves operative digests; *digest.Resolver implements it.
type Operatives interface {
	Operative(s *ir.Schema, id ir.UID) (*digest.OperativeDigest, error)
}

type uncached struct{}

func (uncached) Operative(s *ir.Schema, id ir.UID) (*digest.OperativeDigest, error) {
	return digest.Operative(s, id)
}

// Admits reports whether an operative may fill the slot.
// A nil resolver computes digests without caching.
func (c Constraint) Admits(s *ir.Schema, r Operatives, operativeID ir.UID) (bool, error) {
	if r == nil {
		r = uncached{}
	}
	d, err := r.Operative(s, operativeID)
	if err != nil {
		return false, err
	}
	switch c.Slot.Descriptor.Kind {
	case ir.DescriptorLibraryOperative:
		if !d.DescendsFrom(c.Slot.Descriptor.OperativeID) {
			return false, nil
		}
	case ir.DescriptorTraitOperative:
		if !d.Implements(c.Slot.Descriptor.TraitIDs...) {
			return false, nil
		}
	default:
		return false, fmt.Errorf("slot %s: unknown descriptor kind %d", c.SlotID, c.Slot.Descriptor.Kind)
	}
	for _, t := range c.Types {
		if !admitsType(d, t) {
			return false, nil
		}
	}
	return true, nil
}

func admitsType(d *digest.OperativeDigest, t ir.TypeSpecialization) bool {
	switch t.Kind {
	case ir.TypeSingle, ir.TypeMulti:
		for _, id := range t.OperativeIDs {
			if d.DescendsFrom(id) {
				return true
			}
		}
		return false
	case ir.TypeTraitObject:
		return d.Implements(t.TraitIDs...)
	default:
		return false
	}
}

func slotNotFound(op, slot ir.UID) *ir.Error {
	e := ir.Errorf(ir.CodeSlotNotFound, "operative %s has no slot %s", op, slot)
	e.OperativeID = op
	e.SlotID = slot
	return e
}

// Effective resolves the constraint an operative places on a slot by walking
// its ancestry from the operative toward the template.
func Effective(s *ir.Schema, operativeID, slotID ir.UID) (Constraint, error) {
	chain, err := digest.Ancestry(s, operativeID)
	if err != nil {
		return Constraint{}, err
	}
	return effective(s, chain, s.Operatives[operativeID].TemplateID, slotID)
}

// Upstream resolves the constraint an operative inherits for a slot, ignoring
// its own specialization: the parent's effective constraint, or the template
// slot for root operatives.
func Upstream(s *ir.Schema, operativeID, slotID ir.UID) (Constraint, error) {
	chain, err := digest.Ancestry(s, operativeID)
	if err != nil {
		return Constraint{}, err
	}
	return effective(s, chain[1:], s.Operatives[operativeID].TemplateID, slotID)
}

func effective(s *ir.Schema, chain []ir.UID, templateID, slotID ir.UID) (Constraint, error) {
	tmpl, ok := s.Template(templateID)
	if !ok {
		return Constraint{}, fmt.Errorf("template %s not found", templateID)
	}
	slot, ok := tmpl.OperativeSlots[slotID]
	if !ok {
		var op ir.UID
		if len(chain) > 0 {
			op = chain[0]
		}
		return Constraint{}, slotNotFound(op, slotID)
	}
	c := Constraint{SlotID: slotID, Slot: slot, Bound: slot.Bounds}
	boundSet := false
	for _, opID := range chain {
		spec, ok := s.Operatives[opID].Specialization(slotID)
		if !ok {
			continue
		}
		if c.Spec == nil {
			c.Spec = spec
			c.SpecOwner = opID
		}
		if spec.Bound != nil && !boundSet {
			c.Bound = *spec.Bound
			c.BoundOwner = opID
			boundSet = true
		}
		if spec.Type != nil {
			c.Types = append(c.Types, *spec.Type)
		}
	}
	return c, nil
}

// Slots resolves every slot constraint of an operative, keyed by slot id.
func Slots(s *ir.Schema, operativeID ir.UID) (map[ir.UID]Constraint, error) {
	tmpl, ok := s.TemplateOf(operativeID)
	if !ok {
		e := ir.Errorf(ir.CodeOperativeNotFound, "operative %s not found", operativeID)
		e.OperativeID = operativeID
		return nil, e
	}
	chain, err := digest.Ancestry(s, operativeID)
	if err != nil {
		return nil, err
	}
	out := make(map[ir.UID]Constraint, len(tmpl.OperativeSlots))
	for slotID := range tmpl.OperativeSlots {
		c, err := effective(s, chain, tmpl.Tag.ID, slotID)
		if err != nil {
			return nil, err
		}
		out[slotID] = c
	}
	return out, nil
}
