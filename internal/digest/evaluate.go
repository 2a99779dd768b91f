package digest

import (
	"fmt"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
)

// maxEvalDepth bounds nested trait evaluation through constituents.
const maxEvalDepth = 64

// Reader gives read access to live instances.
type Reader interface {
	Get(id ir.UID) (*ir.InstanceRecord, bool)
}

// cursor is the item an ImplPath step is evaluated against: either a live
// instance or a library instance reached through a specialization.
type cursor struct {
	live        *ir.InstanceRecord
	library     ir.UID
	operativeID ir.UID
}

func (c cursor) String() string {
	if c.live != nil {
		return "instance " + c.live.ID.String()
	}
	return "library instance " + c.library.String()
}

// Evaluate computes a trait method's value on a live instance by walking the
// ImplPath its operative provides.
func Evaluate(r Reader, s *ir.Schema, instanceID, traitID, methodID ir.UID) (ir.Value, error) {
	rec, ok := r.Get(instanceID)
	if !ok {
		return nil, ir.OutgoingElementDoesNotExist(instanceID)
	}
	return evaluate(r, s, cursor{live: rec, operativeID: rec.OperativeID}, traitID, methodID, 0)
}

// EvaluateLibrary computes a trait method's value on a library instance.
func EvaluateLibrary(r Reader, s *ir.Schema, libraryID, traitID, methodID ir.UID) (ir.Value, error) {
	inst, ok := s.LibraryInstance(libraryID)
	if !ok {
		return nil, fmt.Errorf("library instance %s not found", libraryID)
	}
	return evaluate(r, s, cursor{library: libraryID, operativeID: inst.OperativeID}, traitID, methodID, 0)
}

func evaluate(r Reader, s *ir.Schema, cur cursor, traitID, methodID ir.UID, depth int) (ir.Value, error) {
	if depth > maxEvalDepth {
		return nil, fmt.Errorf("evaluate: trait evaluation deeper than %d steps", maxEvalDepth)
	}
	trait, ok := s.Trait(traitID)
	if !ok {
		return nil, fmt.Errorf("evaluate: trait %s not found", traitID)
	}
	method, ok := trait.Method(methodID)
	if !ok {
		return nil, fmt.Errorf("evaluate: trait %q has no method %s", trait.Tag.Name, methodID)
	}
	impls, err := TraitImpls(s, cur.operativeID)
	if err != nil {
		return nil, err
	}
	path, ok := impls[traitID][methodID]
	if !ok {
		return nil, fmt.Errorf("evaluate: %s does not implement %s.%s", cur, trait.Tag.Name, method.Tag.Name)
	}
	if len(path) == 0 {
		return nil, fmt.Errorf("evaluate: empty impl path for %s.%s", trait.Tag.Name, method.Tag.Name)
	}

	var result ir.Value
	for i, step := range path {
		last := i == len(path)-1
		switch step.Kind {
		case ir.StepField:
			if !last {
				return nil, fmt.Errorf("evaluate: field step must end the path")
			}
			result, err = fieldOf(s, cur, step.ID)
		case ir.StepLibraryOperativeConstituent:
			cur, err = liveConstituent(r, cur, step.ID)
		case ir.StepInstanceConstituent:
			cur, err = libraryConstituent(s, cur, step.ID)
		case ir.StepTraitOperativeConstituent:
			if !last {
				return nil, fmt.Errorf("evaluate: trait constituent step must end the path")
			}
			var next cursor
			if cur.live != nil {
				next, err = liveConstituent(r, cur, step.ID)
			} else {
				next, err = libraryConstituent(s, cur, step.ID)
			}
			if err == nil {
				result, err = evaluate(r, s, next, step.TraitID, step.MethodID, depth+1)
			}
		default:
			err = fmt.Errorf("evaluate: unknown step kind %d", step.Kind)
		}
		if err != nil {
			return nil, err
		}
	}
	if result == nil {
		return nil, fmt.Errorf("evaluate: path for %s.%s does not end in a value", trait.Tag.Name, method.Tag.Name)
	}
	if !result.Type().Equal(method.ReturnType) {
		return nil, fmt.Errorf("evaluate: %s.%s returned %s, want %s", trait.Tag.Name, method.Tag.Name, result.Type(), method.ReturnType)
	}
	return result, nil
}

func fieldOf(s *ir.Schema, cur cursor, fieldID ir.UID) (ir.Value, error) {
	if cur.live != nil {
		v, ok := cur.live.Fields[fieldID]
		if !ok {
			return nil, fmt.Errorf("evaluate: %s has no field %s", cur, fieldID)
		}
		return v, nil
	}
	fields, err := LibraryInstanceFields(s, cur.library)
	if err != nil {
		return nil, err
	}
	v, ok := fields[fieldID]
	if !ok {
		return nil, fmt.Errorf("evaluate: %s has no field %s", cur, fieldID)
	}
	return v, nil
}

func liveConstituent(r Reader, cur cursor, slotID ir.UID) (cursor, error) {
	if cur.live == nil {
		return cursor{}, fmt.Errorf("evaluate: %s has no live slot %s", cur, slotID)
	}
	targets := cur.live.Outgoing[slotID]
	if len(targets) != 1 {
		return cursor{}, fmt.Errorf("evaluate: slot %s of %s holds %d elements, want 1", slotID, cur, len(targets))
	}
	rec, ok := r.Get(targets[0])
	if !ok {
		return cursor{}, ir.OutgoingElementDoesNotExist(targets[0])
	}
	return cursor{live: rec, operativeID: rec.OperativeID}, nil
}

func libraryConstituent(s *ir.Schema, cur cursor, slotID ir.UID) (cursor, error) {
	d, err := Operative(s, cur.operativeID)
	if err != nil {
		return cursor{}, err
	}
	related := d.Slots[slotID].RelatedInstances
	if len(related) != 1 {
		return cursor{}, fmt.Errorf("evaluate: slot %s of %s binds %d library instances, want 1", slotID, cur, len(related))
	}
	inst, ok := s.LibraryInstance(related[0])
	if !ok {
		return cursor{}, fmt.Errorf("evaluate: library instance %s not found", related[0])
	}
	return cursor{library: inst.Tag.ID, operativeID: inst.OperativeID}, nil
}
