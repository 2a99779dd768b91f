package builder

import (
	"github.com/reedwoodruff/molecule-schema-sub000/internal/engine"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
)

// tempEdge is an edge with at least one endpoint named by temporary id.
type tempEdge struct {
	host   BlueprintID
	target BlueprintID
	slot   ir.UID
}

// Builder stages a composite edit against an engine.
//
// A builder either creates one new instance (New) or edits a live one
// (Edit). Nested builders passed to AddOutgoing, AddIncoming or Incorporate
// are merged when the blueprint compiles, so their changes commit together
// with the parent's or not at all.
//
// Staging never touches the engine. Problems found while staging (an
// unknown field, a value of the wrong type, a locked field) are held until
// Compile and reported with everything else; setting a field again with a
// valid value clears its staged error.
type Builder struct {
	eng     *engine.Engine
	subject ir.UID
	wip     *ir.InstanceRecord // nil for edit builders
	tempID  string

	errs      []*ir.Error
	fieldErrs map[ir.UID]*ir.Error
	edits     map[ir.UID]ir.Value

	adds        []ir.EdgeRef
	removes     []ir.EdgeRef
	tempEdges   []tempEdge
	deletes     []ir.UID
	rootDeletes []ir.UID

	children []*Builder
}

func newBuilder(eng *engine.Engine, subject ir.UID) *Builder {
	return &Builder{
		eng:       eng,
		subject:   subject,
		fieldErrs: make(map[ir.UID]*ir.Error),
		edits:     make(map[ir.UID]ir.Value),
	}
}

// New starts building a new instance of an operative. The instance's UID is
// allocated immediately from the engine's generator.
func New(eng *engine.Engine, operativeID ir.UID) *Builder {
	b := newBuilder(eng, eng.NewUID())
	tmpl, ok := eng.Schema().TemplateOf(operativeID)
	if !ok {
		err := ir.Errorf(ir.CodeOperativeNotFound, "operative %s not found", operativeID)
		err.InstanceID, err.OperativeID = b.subject, operativeID
		b.errs = append(b.errs, err)
		b.wip = ir.NewInstanceRecord(b.subject, operativeID, ir.UID{})
		return b
	}
	b.wip = ir.NewInstanceRecord(b.subject, operativeID, tmpl.Tag.ID)
	return b
}

// Edit starts an edit of a live instance.
func Edit(eng *engine.Engine, id ir.UID) *Builder {
	b := newBuilder(eng, id)
	if !eng.Contains(id) {
		b.errs = append(b.errs, ir.OutgoingElementDoesNotExist(id))
	}
	return b
}

// ID returns the UID of the instance being built or edited.
func (b *Builder) ID() ir.UID {
	return b.subject
}

// Ref returns an Existing reference to the builder's subject.
func (b *Builder) Ref() BlueprintID {
	return Existing(b.subject)
}

// IsNew reports whether the builder creates an instance.
func (b *Builder) IsNew() bool {
	return b.wip != nil
}

// TempID returns the temporary id set with SetTempID.
func (b *Builder) TempID() string {
	return b.tempID
}

// operative returns the subject's operative, or false if it is unknown.
func (b *Builder) operative() (ir.UID, bool) {
	if b.wip != nil {
		return b.wip.OperativeID, true
	}
	rec, ok := b.eng.Get(b.subject)
	if !ok {
		return ir.UID{}, false
	}
	return rec.OperativeID, true
}

// SetField sets a field on the subject. For a new instance the value is
// written straight into the instance; for an edit it is staged as a field
// update.
func (b *Builder) SetField(fieldID ir.UID, v ir.Value) *Builder {
	if err := b.checkField(fieldID, v); err != nil {
		b.fieldErrs[fieldID] = err
		return b
	}
	delete(b.fieldErrs, fieldID)
	if b.wip != nil {
		b.wip.Fields[fieldID] = v
	} else {
		b.edits[fieldID] = v
	}
	return b
}

// SetFieldByName sets a field by its name on the subject's template.
func (b *Builder) SetFieldByName(name string, v ir.Value) *Builder {
	opID, ok := b.operative()
	if !ok {
		return b
	}
	tmpl, ok := b.eng.Schema().TemplateOf(opID)
	if !ok {
		return b
	}
	fc, ok := tmpl.FieldByName(name)
	if !ok {
		err := ir.Errorf(ir.CodeFieldNotFound, "template %q has no field %q", tmpl.Tag.Name, name)
		err.InstanceID = b.subject
		b.errs = append(b.errs, err)
		return b
	}
	return b.SetField(fc.Tag.ID, v)
}

func (b *Builder) checkField(fieldID ir.UID, v ir.Value) *ir.Error {
	opID, ok := b.operative()
	if !ok {
		return nil // reported by Edit or New
	}
	s := b.eng.Schema()
	tmpl, ok := s.TemplateOf(opID)
	if !ok {
		return nil
	}
	fc, ok := tmpl.FieldConstraints[fieldID]
	if !ok {
		err := ir.Errorf(ir.CodeFieldNotFound, "template %q has no field %s", tmpl.Tag.Name, fieldID)
		err.InstanceID, err.FieldID = b.subject, fieldID
		return err
	}
	if v == nil || !ir.TypeOf(v).Equal(fc.ValueType) {
		err := ir.Errorf(ir.CodeFieldTypeMismatch, "field %q is %s, got %s", fc.Tag.Name, fc.ValueType, ir.TypeOf(v))
		err.InstanceID, err.FieldID = b.subject, fieldID
		return err
	}
	locked, err := b.eng.Resolver().LockedFields(s, opID)
	if err != nil {
		e := ir.Errorf(ir.CodeOperativeNotFound, "operative %s: %v", opID, err)
		e.InstanceID, e.OperativeID = b.subject, opID
		return e
	}
	if lf, ok := locked[fieldID]; ok && !ir.Equal(lf.Value, v) {
		e := ir.Errorf(ir.CodeLockedFieldViolation, "field %q is locked at %s by %s",
			fc.Tag.Name, ir.FormatValue(lf.Value), lf.FulfilledBy)
		e.InstanceID, e.FieldID, e.OperativeID = b.subject, fieldID, lf.FulfilledBy
		return e
	}
	return nil
}

// SetTempID names the subject so other builders in the same tree can refer
// to it with Temporary before it has been committed.
func (b *Builder) SetTempID(tempID string) *Builder {
	b.tempID = tempID
	return b
}

// AddOutgoing stages an edge from the subject's slot to target. Nested
// builders are incorporated.
func (b *Builder) AddOutgoing(slotID ir.UID, target BlueprintID, nested ...*Builder) *Builder {
	if target.IsTemporary() {
		b.tempEdges = append(b.tempEdges, tempEdge{host: b.Ref(), target: target, slot: slotID})
	} else {
		b.adds = append(b.adds, ir.EdgeRef{Host: b.subject, Target: target.UID(), Slot: slotID})
	}
	return b.Incorporate(nested...)
}

// AddIncoming stages an edge from host's slot to the subject. Nested
// builders are incorporated.
func (b *Builder) AddIncoming(host BlueprintID, slotID ir.UID, nested ...*Builder) *Builder {
	if host.IsTemporary() {
		b.tempEdges = append(b.tempEdges, tempEdge{host: host, target: b.Ref(), slot: slotID})
	} else {
		b.adds = append(b.adds, ir.EdgeRef{Host: host.UID(), Target: b.subject, Slot: slotID})
	}
	return b.Incorporate(nested...)
}

// AddNew builds a new instance of operativeID with fn and adds it to the
// subject's slot.
func (b *Builder) AddNew(slotID, operativeID ir.UID, fn func(*Builder)) *Builder {
	child := New(b.eng, operativeID)
	if fn != nil {
		fn(child)
	}
	return b.AddOutgoing(slotID, child.Ref(), child)
}

// AddExisting adds a live instance to the subject's slot.
func (b *Builder) AddExisting(slotID, target ir.UID) *Builder {
	return b.AddOutgoing(slotID, Existing(target))
}

// AddExistingOrTemp adds a live instance, or a new one named by temporary
// id, to the subject's slot.
func (b *Builder) AddExistingOrTemp(slotID ir.UID, target BlueprintID) *Builder {
	return b.AddOutgoing(slotID, target)
}

// RemoveOutgoing stages removal of an edge. The incoming half is removed
// with it.
func (b *Builder) RemoveOutgoing(edge ir.EdgeRef) *Builder {
	b.removes = append(b.removes, edge)
	return b
}

// RemoveFrom removes target from the subject's slot.
func (b *Builder) RemoveFrom(slotID, target ir.UID) *Builder {
	return b.RemoveOutgoing(ir.EdgeRef{Host: b.subject, Target: target, Slot: slotID})
}

// Delete stages deletion of the subject along with every edge touching it.
func (b *Builder) Delete() *Builder {
	return b.DeleteInstance(b.subject)
}

// DeleteInstance stages deletion of a live instance along with every edge
// touching it.
func (b *Builder) DeleteInstance(id ir.UID) *Builder {
	b.deletes = append(b.deletes, id)
	return b
}

// DeleteRecursive stages deletion of the subject and of every instance
// reachable through outgoing slots that would be left with no incoming
// edges. Reachability is decided at compile time, after the rest of the
// tree's edge changes are known.
func (b *Builder) DeleteRecursive() *Builder {
	return b.DeleteRecursiveInstance(b.subject)
}

// DeleteRecursiveInstance is DeleteRecursive for any live instance.
func (b *Builder) DeleteRecursiveInstance(id ir.UID) *Builder {
	b.rootDeletes = append(b.rootDeletes, id)
	return b
}

// Incorporate merges other builders' pending changes into this one. The
// merge happens at compile time, so later changes to the incorporated
// builders are included.
func (b *Builder) Incorporate(others ...*Builder) *Builder {
	for _, o := range others {
		if o != nil && o != b {
			b.children = append(b.children, o)
		}
	}
	return b
}
