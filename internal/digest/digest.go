package digest

import (
	"fmt"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
)

// LockedField is a field value fixed by an operative or one of its ancestors.
// FulfilledBy is the rootmost operative that locks the field.
type LockedField struct {
	FieldID     ir.UID
	Value       ir.Value
	FulfilledBy ir.UID
}

// SlotDigest is one slot an operative exposes.
// RelatedInstances are library instances bound to the slot by the childest
// specialization in scope that binds any.
type SlotDigest struct {
	Slot             ir.OperativeSlot
	RelatedInstances []ir.UID
}

// OperativeDigest is the flattened view of an operative over its ancestry
// and template.
type OperativeDigest struct {
	OperativeID  ir.UID
	TemplateID   ir.UID
	Ancestry     []ir.UID
	Slots        map[ir.UID]SlotDigest
	LockedFields map[ir.UID]LockedField
	TraitImpls   ir.TraitImpls
}

// Implements reports whether the operative implements every trait.
func (d *OperativeDigest) Implements(traits ...ir.UID) bool {
	for _, t := range traits {
		if _, ok := d.TraitImpls[t]; !ok {
			return false
		}
	}
	return true
}

// Traits lists implemented trait ids in order.
func (d *OperativeDigest) Traits() []ir.UID {
	return ir.SortedKeys(d.TraitImpls)
}

// DescendsFrom reports whether ancestor is the operative itself or one of its parents.
func (d *OperativeDigest) DescendsFrom(ancestor ir.UID) bool {
	for _, id := range d.Ancestry {
		if id == ancestor {
			return true
		}
	}
	return false
}

func operativeNotFound(id ir.UID) *ir.Error {
	e := ir.Errorf(ir.CodeOperativeNotFound, "operative %s not found", id)
	e.OperativeID = id
	return e
}

// Ancestry returns id followed by its parents, nearest first.
func Ancestry(s *ir.Schema, id ir.UID) ([]ir.UID, error) {
	var chain []ir.UID
	seen := make(map[ir.UID]bool)
	for cur := id; !cur.IsZero(); {
		if seen[cur] {
			return nil, fmt.Errorf("ancestry of %s: parent cycle at %s", id, cur)
		}
		seen[cur] = true
		op, ok := s.Operative(cur)
		if !ok {
			return nil, operativeNotFound(cur)
		}
		chain = append(chain, cur)
		cur = op.ParentID
	}
	return chain, nil
}

// Descendants lists operatives whose ancestry includes id, excluding id itself.
func Descendants(s *ir.Schema, id ir.UID) []ir.UID {
	var out []ir.UID
	for _, opID := range ir.SortedKeys(s.Operatives) {
		if opID == id {
			continue
		}
		chain, err := Ancestry(s, opID)
		if err != nil {
			continue
		}
		for _, anc := range chain[1:] {
			if anc == id {
				out = append(out, opID)
				break
			}
		}
	}
	return out
}

// LockedFields computes the locked field closure of an operative.
// A field locked by an ancestor keeps the ancestor's value and attribution.
func LockedFields(s *ir.Schema, id ir.UID) (map[ir.UID]LockedField, error) {
	chain, err := Ancestry(s, id)
	if err != nil {
		return nil, err
	}
	out := make(map[ir.UID]LockedField)
	for i := len(chain) - 1; i >= 0; i-- {
		op := s.Operatives[chain[i]]
		for _, lf := range op.LockedFields {
			if _, ok := out[lf.FieldID]; ok {
				continue
			}
			out[lf.FieldID] = LockedField{FieldID: lf.FieldID, Value: lf.Value, FulfilledBy: op.Tag.ID}
		}
	}
	return out, nil
}

func mergeImpls(dst, src ir.TraitImpls) {
	for trait, methods := range src {
		m, ok := dst[trait]
		if !ok {
			m = make(map[ir.UID]ir.ImplPath, len(methods))
			dst[trait] = m
		}
		for method, path := range methods {
			m[method] = path
		}
	}
}

// TraitImpls computes the trait implementations visible on an operative:
// the union of its own, its ancestors' and its template's, nearest first.
func TraitImpls(s *ir.Schema, id ir.UID) (ir.TraitImpls, error) {
	chain, err := Ancestry(s, id)
	if err != nil {
		return nil, err
	}
	out := make(ir.TraitImpls)
	if tmpl, ok := s.TemplateOf(id); ok {
		mergeImpls(out, tmpl.TraitImpls)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		mergeImpls(out, s.Operatives[chain[i]].TraitImpls)
	}
	return out, nil
}

// TraitImplsOf resolves the trait digest of any schema item: a template, an
// operative or a library instance.
func TraitImplsOf(s *ir.Schema, itemID ir.UID) (ir.TraitImpls, error) {
	if tmpl, ok := s.Template(itemID); ok {
		out := make(ir.TraitImpls)
		mergeImpls(out, tmpl.TraitImpls)
		return out, nil
	}
	if inst, ok := s.LibraryInstance(itemID); ok {
		return TraitImpls(s, inst.OperativeID)
	}
	return TraitImpls(s, itemID)
}

// Operative computes the full digest of an operative.
func Operative(s *ir.Schema, id ir.UID) (*OperativeDigest, error) {
	chain, err := Ancestry(s, id)
	if err != nil {
		return nil, err
	}
	op := s.Operatives[id]
	tmpl, ok := s.Template(op.TemplateID)
	if !ok {
		return nil, fmt.Errorf("operative %s: template %s not found", id, op.TemplateID)
	}
	locked, err := LockedFields(s, id)
	if err != nil {
		return nil, err
	}
	impls, err := TraitImpls(s, id)
	if err != nil {
		return nil, err
	}
	d := &OperativeDigest{
		OperativeID:  id,
		TemplateID:   tmpl.Tag.ID,
		Ancestry:     chain,
		Slots:        make(map[ir.UID]SlotDigest, len(tmpl.OperativeSlots)),
		LockedFields: locked,
		TraitImpls:   impls,
	}
	for slotID, slot := range tmpl.OperativeSlots {
		sd := SlotDigest{Slot: slot}
		for _, anc := range chain {
			if spec, ok := s.Operatives[anc].Specialization(slotID); ok && len(spec.SlottedInstances) > 0 {
				sd.RelatedInstances = append([]ir.UID(nil), spec.SlottedInstances...)
				break
			}
		}
		d.Slots[slotID] = sd
	}
	return d, nil
}

// Satisfies reports whether an operative satisfies a slot descriptor: it
// descends from the named operative, or implements every listed trait.
func Satisfies(s *ir.Schema, operativeID ir.UID, desc ir.OperativeDescriptor) (bool, error) {
	switch desc.Kind {
	case ir.DescriptorLibraryOperative:
		chain, err := Ancestry(s, operativeID)
		if err != nil {
			return false, err
		}
		for _, id := range chain {
			if id == desc.OperativeID {
				return true, nil
			}
		}
		return false, nil
	case ir.DescriptorTraitOperative:
		impls, err := TraitImpls(s, operativeID)
		if err != nil {
			return false, err
		}
		for _, t := range desc.TraitIDs {
			if _, ok := impls[t]; !ok {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, fmt.Errorf("unknown descriptor kind %d", desc.Kind)
	}
}

// LibraryInstanceFields returns the complete field map of a library instance:
// its fulfilled fields over its operative's locked fields.
func LibraryInstanceFields(s *ir.Schema, id ir.UID) (map[ir.UID]ir.Value, error) {
	inst, ok := s.LibraryInstance(id)
	if !ok {
		return nil, fmt.Errorf("library instance %s not found", id)
	}
	locked, err := LockedFields(s, inst.OperativeID)
	if err != nil {
		return nil, err
	}
	out := make(map[ir.UID]ir.Value, len(locked)+len(inst.FulfilledFields))
	for fid, lf := range locked {
		out[fid] = lf.Value
	}
	for _, fv := range inst.FulfilledFields {
		out[fv.FieldID] = fv.Value
	}
	return out, nil
}
