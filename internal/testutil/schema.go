package testutil

import (
	"fmt"
	"maps"
	"slices"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
)

// Namespace seeds every fixture id, so the same names always map to the
// same UIDs across tests.
var Namespace = ir.MustParseUID("6f1c4f8e-2d3b-4c5a-9e7f-0a1b2c3d4e5f")

// SchemaBuilder assembles schemas for tests by name. Ids are derived from
// names, so references may be written before their targets are declared.
type SchemaBuilder struct {
	s             *ir.Schema
	tpl           map[ir.UID]string
	pendingFields []pendingFields
}

// NewSchema starts an empty fixture schema.
func NewSchema() *SchemaBuilder {
	return &SchemaBuilder{s: ir.NewSchema(), tpl: make(map[ir.UID]string)}
}

// TemplateID returns the id of a named template.
func TemplateID(name string) ir.UID { return ir.NameUID(Namespace, "template/"+name) }

// OperativeID returns the id of a named operative.
func OperativeID(name string) ir.UID { return ir.NameUID(Namespace, "operative/"+name) }

// LibraryInstanceID returns the id of a named library instance.
func LibraryInstanceID(name string) ir.UID { return ir.NameUID(Namespace, "instance/"+name) }

// TraitID returns the id of a named trait.
func TraitID(name string) ir.UID { return ir.NameUID(Namespace, "trait/"+name) }

// MethodID returns the id of a trait method.
func MethodID(trait, method string) ir.UID {
	return ir.NameUID(Namespace, "trait/"+trait+"/"+method)
}

// FieldID returns the id of a template field.
func FieldID(template, field string) ir.UID {
	return ir.NameUID(Namespace, "template/"+template+"/field/"+field)
}

// SlotID returns the id of a template slot.
func SlotID(template, slot string) ir.UID {
	return ir.NameUID(Namespace, "template/"+template+"/slot/"+slot)
}

// SpecID returns the id of an operative's specialization of a slot.
func SpecID(operative, slot string) ir.UID {
	return ir.NameUID(Namespace, "operative/"+operative+"/spec/"+slot)
}

// TemplateOption configures a fixture template.
type TemplateOption func(tmpl string, t *ir.Template)

// Field declares a template field.
func Field(name string, typ ir.PrimitiveType) TemplateOption {
	return func(tmpl string, t *ir.Template) {
		id := FieldID(tmpl, name)
		t.FieldConstraints[id] = ir.FieldConstraint{Tag: ir.Tag{Name: name, ID: id}, ValueType: typ}
	}
}

// Slot declares a template slot admitting a named operative and its descendants.
func Slot(name string, bound ir.SlotBound, operative string) TemplateOption {
	return func(tmpl string, t *ir.Template) {
		id := SlotID(tmpl, name)
		t.OperativeSlots[id] = ir.OperativeSlot{
			Tag:        ir.Tag{Name: name, ID: id},
			Bounds:     bound,
			Descriptor: ir.LibraryOperativeDescriptor(OperativeID(operative)),
		}
	}
}

// TraitSlot declares a template slot admitting operatives implementing every trait.
func TraitSlot(name string, bound ir.SlotBound, traits ...string) TemplateOption {
	return func(tmpl string, t *ir.Template) {
		id := SlotID(tmpl, name)
		ids := make([]ir.UID, len(traits))
		for i, tr := range traits {
			ids[i] = TraitID(tr)
		}
		t.OperativeSlots[id] = ir.OperativeSlot{
			Tag:        ir.Tag{Name: name, ID: id},
			Bounds:     bound,
			Descriptor: ir.TraitOperativeDescriptor(ids...),
		}
	}
}

// TemplateImpl adds a trait method implementation to the template.
func TemplateImpl(trait, method string, steps ...Step) TemplateOption {
	return func(tmpl string, t *ir.Template) {
		if t.TraitImpls == nil {
			t.TraitImpls = make(ir.TraitImpls)
		}
		addImpl(t.TraitImpls, tmpl, trait, method, steps)
	}
}

// Step builds one ImplPath step relative to a template.
type Step func(tmpl string) ir.PathStep

// FieldStep reads a field.
func FieldStep(field string) Step {
	return func(tmpl string) ir.PathStep {
		return ir.PathStep{Kind: ir.StepField, ID: FieldID(tmpl, field)}
	}
}

// ConstituentStep moves to the single live target of a slot. Wrap later
// steps with In to name the target's template.
func ConstituentStep(slot string) Step {
	return func(tmpl string) ir.PathStep {
		return ir.PathStep{Kind: ir.StepLibraryOperativeConstituent, ID: SlotID(tmpl, slot)}
	}
}

// InstanceStep moves to the library instance bound to a slot.
func InstanceStep(slot string) Step {
	return func(tmpl string) ir.PathStep {
		return ir.PathStep{Kind: ir.StepInstanceConstituent, ID: SlotID(tmpl, slot)}
	}
}

// TraitStep evaluates a trait method on the single target of a slot.
func TraitStep(slot, trait, method string) Step {
	return func(tmpl string) ir.PathStep {
		return ir.PathStep{
			Kind:     ir.StepTraitOperativeConstituent,
			ID:       SlotID(tmpl, slot),
			TraitID:  TraitID(trait),
			MethodID: MethodID(trait, method),
		}
	}
}

// In evaluates the wrapped step relative to another template, for paths that
// cross into a constituent.
func In(tmpl string, step Step) Step {
	return func(string) ir.PathStep { return step(tmpl) }
}

func addImpl(impls ir.TraitImpls, tmpl, trait, method string, steps []Step) {
	tid := TraitID(trait)
	if impls[tid] == nil {
		impls[tid] = make(map[ir.UID]ir.ImplPath)
	}
	path := make(ir.ImplPath, len(steps))
	for i, st := range steps {
		path[i] = st(tmpl)
	}
	impls[tid][MethodID(trait, method)] = path
}

// Template declares a template.
func (b *SchemaBuilder) Template(name string, opts ...TemplateOption) *SchemaBuilder {
	id := TemplateID(name)
	t := &ir.Template{
		Tag:              ir.Tag{Name: name, ID: id},
		FieldConstraints: make(map[ir.UID]ir.FieldConstraint),
		OperativeSlots:   make(map[ir.UID]ir.OperativeSlot),
	}
	for _, opt := range opts {
		opt(name, t)
	}
	b.s.Templates[id] = t
	b.tpl[id] = name
	return b
}

// OperativeOption configures a fixture operative. tmpl is the template name.
type OperativeOption func(tmpl string, op *ir.LibraryOperative)

// Parent derives the operative from another operative.
func Parent(name string) OperativeOption {
	return func(_ string, op *ir.LibraryOperative) { op.ParentID = OperativeID(name) }
}

// Lock locks a field at a value.
func Lock(field string, v ir.Value) OperativeOption {
	return func(tmpl string, op *ir.LibraryOperative) {
		op.LockedFields = append(op.LockedFields, ir.FieldValue{FieldID: FieldID(tmpl, field), Value: v})
	}
}

// Impl adds a trait method implementation to the operative.
func Impl(trait, method string, steps ...Step) OperativeOption {
	return func(tmpl string, op *ir.LibraryOperative) {
		if op.TraitImpls == nil {
			op.TraitImpls = make(ir.TraitImpls)
		}
		addImpl(op.TraitImpls, tmpl, trait, method, steps)
	}
}

// Narrow specializes a slot's cardinality.
func Narrow(slot string, bound ir.SlotBound) OperativeOption {
	return func(tmpl string, op *ir.LibraryOperative) {
		spec := specFor(tmpl, slot, op)
		spec.Bound = &bound
	}
}

// NarrowTo specializes a slot to a set of operatives (Single for one, Multi otherwise).
func NarrowTo(slot string, operatives ...string) OperativeOption {
	return func(tmpl string, op *ir.LibraryOperative) {
		spec := specFor(tmpl, slot, op)
		kind := ir.TypeMulti
		if len(operatives) == 1 {
			kind = ir.TypeSingle
		}
		ts := &ir.TypeSpecialization{Kind: kind}
		for _, name := range operatives {
			ts.OperativeIDs = append(ts.OperativeIDs, OperativeID(name))
		}
		spec.Type = ts
	}
}

// RequireTraits specializes a slot to additionally require traits.
func RequireTraits(slot string, traits ...string) OperativeOption {
	return func(tmpl string, op *ir.LibraryOperative) {
		spec := specFor(tmpl, slot, op)
		ts := &ir.TypeSpecialization{Kind: ir.TypeTraitObject}
		for _, name := range traits {
			ts.TraitIDs = append(ts.TraitIDs, TraitID(name))
		}
		spec.Type = ts
	}
}

// BindLibrary binds library instances to a slot through a specialization.
func BindLibrary(slot string, instances ...string) OperativeOption {
	return func(tmpl string, op *ir.LibraryOperative) {
		spec := specFor(tmpl, slot, op)
		for _, name := range instances {
			spec.SlottedInstances = append(spec.SlottedInstances, LibraryInstanceID(name))
		}
	}
}

func specFor(tmpl, slot string, op *ir.LibraryOperative) *ir.SlotSpecialization {
	slotID := SlotID(tmpl, slot)
	if spec, ok := op.Specialization(slotID); ok {
		return spec
	}
	op.SlotSpecializations = append(op.SlotSpecializations, ir.SlotSpecialization{
		Tag:    ir.Tag{Name: op.Tag.Name + "." + slot, ID: SpecID(op.Tag.Name, slot)},
		SlotID: slotID,
	})
	return &op.SlotSpecializations[len(op.SlotSpecializations)-1]
}

// Operative declares an operative of a template.
func (b *SchemaBuilder) Operative(name, template string, opts ...OperativeOption) *SchemaBuilder {
	id := OperativeID(name)
	op := &ir.LibraryOperative{
		Tag:        ir.Tag{Name: name, ID: id},
		TemplateID: TemplateID(template),
	}
	for _, opt := range opts {
		opt(template, op)
	}
	b.s.Operatives[id] = op
	return b
}

// LibraryInstance declares a library instance with fulfilled fields given as
// name/value pairs.
func (b *SchemaBuilder) LibraryInstance(name, operative string, fields map[string]ir.Value) *SchemaBuilder {
	id := LibraryInstanceID(name)
	inst := &ir.LibraryInstance{Tag: ir.Tag{Name: name, ID: id}, OperativeID: OperativeID(operative)}
	b.s.Instances[id] = inst
	b.pendingFields = append(b.pendingFields, pendingFields{inst: inst, fields: fields})
	return b
}

// Trait declares a trait with methods given as name/type pairs in order.
func (b *SchemaBuilder) Trait(name string, methods ...Method) *SchemaBuilder {
	id := TraitID(name)
	tr := &ir.Trait{Tag: ir.Tag{Name: name, ID: id}}
	for _, m := range methods {
		tr.Methods = append(tr.Methods, ir.TraitMethod{
			Tag:        ir.Tag{Name: m.Name, ID: MethodID(name, m.Name)},
			ReturnType: m.Type,
		})
	}
	b.s.Traits[id] = tr
	return b
}

// Method is a trait method signature.
type Method struct {
	Name string
	Type ir.PrimitiveType
}

type pendingFields struct {
	inst   *ir.LibraryInstance
	fields map[string]ir.Value
}

// Build resolves library instance fields and specialization upstream
// pointers, and returns the schema.
func (b *SchemaBuilder) Build() *ir.Schema {
	for _, pf := range b.pendingFields {
		tmpl, ok := b.s.TemplateOf(pf.inst.OperativeID)
		if !ok {
			panic(fmt.Sprintf("testutil: library instance %q has no template", pf.inst.Tag.Name))
		}
		name := b.tpl[tmpl.Tag.ID]
		for _, fname := range sortedNames(pf.fields) {
			pf.inst.FulfilledFields = append(pf.inst.FulfilledFields, ir.FieldValue{
				FieldID: FieldID(name, fname),
				Value:   pf.fields[fname],
			})
		}
	}
	b.pendingFields = nil
	b.s.LinkUpstreams()
	return b.s
}

func sortedNames(m map[string]ir.Value) []string {
	return slices.Sorted(maps.Keys(m))
}
