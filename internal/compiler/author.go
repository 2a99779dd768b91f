package compiler

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
)

// DefaultNamespace seeds name-derived ids when a document sets none.
var DefaultNamespace = ir.MustParseUID("8a4f2c1e-5b7d-4e3a-9c6f-1d2e3f4a5b6c")

// namePattern matches item names in authored schemas.
var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// docValidator returns the shared validator with the "name" rule registered.
func docValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("name", func(fl validator.FieldLevel) bool {
			return namePattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

// Document is the authored form of a schema. Items are addressed by name and
// their ids are derived from the names under Namespace, so the same document
// always compiles to the same UIDs.
type Document struct {
	Namespace  string                  `json:"namespace,omitempty" validate:"omitempty,uuid"`
	Traits     map[string]TraitDoc     `json:"traits,omitempty" validate:"dive,keys,name,endkeys"`
	Templates  map[string]TemplateDoc  `json:"templates,omitempty" validate:"dive,keys,name,endkeys"`
	Operatives map[string]OperativeDoc `json:"operatives,omitempty" validate:"dive,keys,name,endkeys"`
	Instances  map[string]InstanceDoc  `json:"instances,omitempty" validate:"dive,keys,name,endkeys"`
}

// TraitDoc lists method names with their return types.
type TraitDoc struct {
	Methods map[string]string `json:"methods" validate:"min=1,dive,keys,name,endkeys,required"`
}

// Impls maps trait name to method name to the path implementing it.
type Impls map[string]map[string][]StepDoc

// TemplateDoc declares fields (name to type) and slots.
type TemplateDoc struct {
	Fields map[string]string  `json:"fields,omitempty" validate:"dive,keys,name,endkeys,required"`
	Slots  map[string]SlotDoc `json:"slots,omitempty" validate:"dive,keys,name,endkeys"`
	Impls  Impls              `json:"impls,omitempty"`
}

// SlotDoc declares a slot admitting one operative (and its descendants) or
// any operative implementing every listed trait.
type SlotDoc struct {
	Bound     string   `json:"bound" validate:"required"`
	Operative string   `json:"operative,omitempty" validate:"required_without=Traits,excluded_with=Traits"`
	Traits    []string `json:"traits,omitempty" validate:"dive,name"`
}

// StepDoc is one ImplPath step; exactly one member is set.
type StepDoc struct {
	Field       string        `json:"field,omitempty"`
	Constituent string        `json:"constituent,omitempty"`
	Instance    string        `json:"instance,omitempty"`
	Trait       *TraitStepDoc `json:"trait,omitempty"`
}

// TraitStepDoc evaluates a trait method on a slot's single target.
type TraitStepDoc struct {
	Slot   string `json:"slot" validate:"required,name"`
	Trait  string `json:"trait" validate:"required,name"`
	Method string `json:"method" validate:"required,name"`
}

// OperativeDoc declares an operative.
type OperativeDoc struct {
	Template   string             `json:"template" validate:"required,name"`
	Parent     string             `json:"parent,omitempty" validate:"omitempty,name"`
	Locked     map[string]any     `json:"locked,omitempty"`
	Impls      Impls              `json:"impls,omitempty"`
	Specialize map[string]SpecDoc `json:"specialize,omitempty" validate:"dive,keys,name,endkeys"`
}

// SpecDoc narrows one slot. Operatives and Traits are mutually exclusive.
type SpecDoc struct {
	Bound      string   `json:"bound,omitempty"`
	Operatives []string `json:"operatives,omitempty" validate:"excluded_with=Traits,dive,name"`
	Traits     []string `json:"traits,omitempty" validate:"dive,name"`
	Instances  []string `json:"instances,omitempty" validate:"dive,name"`
}

// InstanceDoc declares a library instance.
type InstanceDoc struct {
	Operative string         `json:"operative" validate:"required,name"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// ids derives item ids from names.
type ids struct {
	ns ir.UID
}

func (n ids) template(name string) ir.UID  { return ir.NameUID(n.ns, "template/"+name) }
func (n ids) operative(name string) ir.UID { return ir.NameUID(n.ns, "operative/"+name) }
func (n ids) instance(name string) ir.UID  { return ir.NameUID(n.ns, "instance/"+name) }
func (n ids) trait(name string) ir.UID     { return ir.NameUID(n.ns, "trait/"+name) }
func (n ids) method(trait, method string) ir.UID {
	return ir.NameUID(n.ns, "trait/"+trait+"/"+method)
}
func (n ids) field(tmpl, field string) ir.UID {
	return ir.NameUID(n.ns, "template/"+tmpl+"/field/"+field)
}
func (n ids) slot(tmpl, slot string) ir.UID {
	return ir.NameUID(n.ns, "template/"+tmpl+"/slot/"+slot)
}
func (n ids) spec(op, slot string) ir.UID {
	return ir.NameUID(n.ns, "operative/"+op+"/spec/"+slot)
}

// checkShape runs the struct-tag rules over a document.
func checkShape(doc *Document) []ValidationError {
	err := docValidator().Struct(doc)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !asValidatorErrors(err, &fieldErrs) {
		return []ValidationError{{Field: "document", Message: err.Error(), Code: ErrShape}}
	}
	out := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   strings.TrimPrefix(fe.Namespace(), "Document."),
			Message: fmt.Sprintf("failed %q rule", fe.Tag()),
			Code:    ErrShape,
		})
	}
	return out
}

func asValidatorErrors(err error, target *validator.ValidationErrors) bool {
	return errors.As(err, target)
}

// docBuilder accumulates a schema from a document, recording every problem.
type docBuilder struct {
	doc  *Document
	ids  ids
	s    *ir.Schema
	errs []ValidationError
}

func (b *docBuilder) fail(code, field, format string, args ...any) {
	b.errs = append(b.errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Code: code})
}

// Build compiles an authored document into a schema. Every problem found is
// returned; the schema is nil unless there are none.
func Build(doc *Document) (*ir.Schema, error) {
	if errs := checkShape(doc); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	ns := DefaultNamespace
	if doc.Namespace != "" {
		ns = ir.MustParseUID(doc.Namespace)
	}
	b := &docBuilder{doc: doc, ids: ids{ns: ns}, s: ir.NewSchema()}
	b.traits()
	b.templates()
	b.operatives()
	b.instances()
	b.impls()
	if len(b.errs) > 0 {
		return nil, ValidationErrors(b.errs)
	}
	b.s.LinkUpstreams()
	return b.s, nil
}

func sortedNames[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

func (b *docBuilder) traits() {
	for _, name := range sortedNames(b.doc.Traits) {
		tr := &ir.Trait{Tag: ir.Tag{Name: name, ID: b.ids.trait(name)}}
		methods := b.doc.Traits[name].Methods
		for _, m := range sortedNames(methods) {
			typ, err := ir.ParsePrimitiveType(methods[m])
			if err != nil {
				b.fail(ErrInvalidType, "traits."+name+".methods."+m, "%v", err)
				continue
			}
			tr.Methods = append(tr.Methods, ir.TraitMethod{
				Tag:        ir.Tag{Name: m, ID: b.ids.method(name, m)},
				ReturnType: typ,
			})
		}
		b.s.Traits[tr.Tag.ID] = tr
	}
}

func (b *docBuilder) templates() {
	for _, name := range sortedNames(b.doc.Templates) {
		td := b.doc.Templates[name]
		t := &ir.Template{
			Tag:              ir.Tag{Name: name, ID: b.ids.template(name)},
			FieldConstraints: make(map[ir.UID]ir.FieldConstraint, len(td.Fields)),
			OperativeSlots:   make(map[ir.UID]ir.OperativeSlot, len(td.Slots)),
		}
		for _, f := range sortedNames(td.Fields) {
			typ, err := ir.ParsePrimitiveType(td.Fields[f])
			if err != nil {
				b.fail(ErrInvalidType, "templates."+name+".fields."+f, "%v", err)
				continue
			}
			id := b.ids.field(name, f)
			t.FieldConstraints[id] = ir.FieldConstraint{Tag: ir.Tag{Name: f, ID: id}, ValueType: typ}
		}
		for _, sn := range sortedNames(td.Slots) {
			sd := td.Slots[sn]
			path := "templates." + name + ".slots." + sn
			bound, err := ir.ParseSlotBound(sd.Bound)
			if err != nil {
				b.fail(ErrInvalidBound, path+".bound", "%v", err)
				continue
			}
			var desc ir.OperativeDescriptor
			if sd.Operative != "" {
				if _, ok := b.doc.Operatives[sd.Operative]; !ok {
					b.fail(ErrUnknownReference, path+".operative", "unknown operative %q", sd.Operative)
					continue
				}
				desc = ir.LibraryOperativeDescriptor(b.ids.operative(sd.Operative))
			} else {
				traits, ok := b.traitIDs(path+".traits", sd.Traits)
				if !ok {
					continue
				}
				desc = ir.TraitOperativeDescriptor(traits...)
			}
			id := b.ids.slot(name, sn)
			t.OperativeSlots[id] = ir.OperativeSlot{Tag: ir.Tag{Name: sn, ID: id}, Bounds: bound, Descriptor: desc}
		}
		b.s.Templates[t.Tag.ID] = t
	}
}

func (b *docBuilder) traitIDs(path string, names []string) ([]ir.UID, bool) {
	out := make([]ir.UID, 0, len(names))
	ok := true
	for _, tn := range names {
		if _, found := b.doc.Traits[tn]; !found {
			b.fail(ErrUnknownReference, path, "unknown trait %q", tn)
			ok = false
			continue
		}
		out = append(out, b.ids.trait(tn))
	}
	return out, ok
}

// templateName returns the template an operative is declared on.
func (b *docBuilder) templateName(op string) (string, bool) {
	od, ok := b.doc.Operatives[op]
	if !ok {
		return "", false
	}
	_, ok = b.doc.Templates[od.Template]
	return od.Template, ok
}

// fieldValue converts an authored value for a named field of a template.
func (b *docBuilder) fieldValue(path, tmpl, field string, raw any) (ir.FieldValue, bool) {
	fid := b.ids.field(tmpl, field)
	fc, ok := b.s.Templates[b.ids.template(tmpl)].FieldConstraints[fid]
	if !ok {
		b.fail(ErrUnknownReference, path, "template %q has no field %q", tmpl, field)
		return ir.FieldValue{}, false
	}
	v, err := ir.FromGo(fc.ValueType, raw)
	if err != nil {
		b.fail(ErrInvalidValue, path, "%v", err)
		return ir.FieldValue{}, false
	}
	return ir.FieldValue{FieldID: fid, Value: v}, true
}

func (b *docBuilder) operatives() {
	for _, name := range sortedNames(b.doc.Operatives) {
		od := b.doc.Operatives[name]
		path := "operatives." + name
		tmpl, ok := b.templateName(name)
		if !ok {
			b.fail(ErrUnknownReference, path+".template", "unknown template %q", od.Template)
			continue
		}
		op := &ir.LibraryOperative{
			Tag:        ir.Tag{Name: name, ID: b.ids.operative(name)},
			TemplateID: b.ids.template(tmpl),
		}
		if od.Parent != "" {
			if _, ok := b.doc.Operatives[od.Parent]; !ok {
				b.fail(ErrUnknownReference, path+".parent", "unknown operative %q", od.Parent)
			}
			op.ParentID = b.ids.operative(od.Parent)
		}
		for _, f := range sortedNames(od.Locked) {
			if fv, ok := b.fieldValue(path+".locked."+f, tmpl, f, od.Locked[f]); ok {
				op.LockedFields = append(op.LockedFields, fv)
			}
		}
		for _, sn := range sortedNames(od.Specialize) {
			if spec, ok := b.specialization(path+".specialize."+sn, name, tmpl, sn, od.Specialize[sn]); ok {
				op.SlotSpecializations = append(op.SlotSpecializations, spec)
			}
		}
		b.s.Operatives[op.Tag.ID] = op
	}
}

func (b *docBuilder) specialization(path, op, tmpl, slot string, sd SpecDoc) (ir.SlotSpecialization, bool) {
	slotID := b.ids.slot(tmpl, slot)
	if _, ok := b.s.Templates[b.ids.template(tmpl)].OperativeSlots[slotID]; !ok {
		b.fail(ErrUnknownReference, path, "template %q has no slot %q", tmpl, slot)
		return ir.SlotSpecialization{}, false
	}
	spec := ir.SlotSpecialization{
		Tag:    ir.Tag{Name: op + "." + slot, ID: b.ids.spec(op, slot)},
		SlotID: slotID,
	}
	ok := true
	if sd.Bound != "" {
		bound, err := ir.ParseSlotBound(sd.Bound)
		if err != nil {
			b.fail(ErrInvalidBound, path+".bound", "%v", err)
			ok = false
		} else {
			spec.Bound = &bound
		}
	}
	switch {
	case len(sd.Operatives) > 0:
		ts := &ir.TypeSpecialization{Kind: ir.TypeMulti}
		if len(sd.Operatives) == 1 {
			ts.Kind = ir.TypeSingle
		}
		for _, name := range sd.Operatives {
			if _, found := b.doc.Operatives[name]; !found {
				b.fail(ErrUnknownReference, path+".operatives", "unknown operative %q", name)
				ok = false
				continue
			}
			ts.OperativeIDs = append(ts.OperativeIDs, b.ids.operative(name))
		}
		spec.Type = ts
	case len(sd.Traits) > 0:
		traits, found := b.traitIDs(path+".traits", sd.Traits)
		ok = ok && found
		spec.Type = &ir.TypeSpecialization{Kind: ir.TypeTraitObject, TraitIDs: traits}
	}
	for _, name := range sd.Instances {
		if _, found := b.doc.Instances[name]; !found {
			b.fail(ErrUnknownReference, path+".instances", "unknown library instance %q", name)
			ok = false
			continue
		}
		spec.SlottedInstances = append(spec.SlottedInstances, b.ids.instance(name))
	}
	return spec, ok
}

func (b *docBuilder) instances() {
	for _, name := range sortedNames(b.doc.Instances) {
		id := b.doc.Instances[name]
		path := "instances." + name
		tmpl, ok := b.templateName(id.Operative)
		if !ok {
			b.fail(ErrUnknownReference, path+".operative", "unknown operative %q", id.Operative)
			continue
		}
		inst := &ir.LibraryInstance{
			Tag:         ir.Tag{Name: name, ID: b.ids.instance(name)},
			OperativeID: b.ids.operative(id.Operative),
		}
		for _, f := range sortedNames(id.Fields) {
			if fv, ok := b.fieldValue(path+".fields."+f, tmpl, f, id.Fields[f]); ok {
				inst.FulfilledFields = append(inst.FulfilledFields, fv)
			}
		}
		b.s.Instances[inst.Tag.ID] = inst
	}
}

// impls resolves template and operative trait impls once every template
// exists, since paths cross into other templates.
func (b *docBuilder) impls() {
	for _, name := range sortedNames(b.doc.Templates) {
		t, ok := b.s.Templates[b.ids.template(name)]
		if !ok {
			continue
		}
		t.TraitImpls = b.resolveImpls("templates."+name+".impls", name, b.doc.Templates[name].Impls)
	}
	for _, name := range sortedNames(b.doc.Operatives) {
		op, ok := b.s.Operatives[b.ids.operative(name)]
		if !ok {
			continue
		}
		tmpl, _ := b.templateName(name)
		op.TraitImpls = b.resolveImpls("operatives."+name+".impls", tmpl, b.doc.Operatives[name].Impls)
	}
}

func (b *docBuilder) resolveImpls(path, tmpl string, impls Impls) ir.TraitImpls {
	if len(impls) == 0 {
		return nil
	}
	out := make(ir.TraitImpls, len(impls))
	for _, tn := range sortedNames(impls) {
		if _, ok := b.doc.Traits[tn]; !ok {
			b.fail(ErrUnknownReference, path+"."+tn, "unknown trait %q", tn)
			continue
		}
		methods := make(map[ir.UID]ir.ImplPath, len(impls[tn]))
		for _, mn := range sortedNames(impls[tn]) {
			if _, ok := b.doc.Traits[tn].Methods[mn]; !ok {
				b.fail(ErrUnknownReference, path+"."+tn+"."+mn, "trait %q has no method %q", tn, mn)
				continue
			}
			if p, ok := b.resolvePath(path+"."+tn+"."+mn, tmpl, impls[tn][mn]); ok {
				methods[b.ids.method(tn, mn)] = p
			}
		}
		out[b.ids.trait(tn)] = methods
	}
	return out
}

// resolvePath turns named steps into an ImplPath. Constituent steps move
// into the template of the slot's operative, so later steps name fields and
// slots of that template.
func (b *docBuilder) resolvePath(path, tmpl string, steps []StepDoc) (ir.ImplPath, bool) {
	if len(steps) == 0 {
		b.fail(ErrInvalidImplPath, path, "path has no steps")
		return nil, false
	}
	out := make(ir.ImplPath, 0, len(steps))
	cur := tmpl
	for i, st := range steps {
		at := fmt.Sprintf("%s[%d]", path, i)
		last := i == len(steps)-1
		set := 0
		for _, s := range []string{st.Field, st.Constituent, st.Instance} {
			if s != "" {
				set++
			}
		}
		if st.Trait != nil {
			set++
		}
		if set != 1 {
			b.fail(ErrInvalidImplPath, at, "step must set exactly one of field, constituent, instance, trait")
			return nil, false
		}
		switch {
		case st.Field != "":
			if !last {
				b.fail(ErrInvalidImplPath, at, "field step must be last")
				return nil, false
			}
			fid := b.ids.field(cur, st.Field)
			if _, ok := b.s.Templates[b.ids.template(cur)].FieldConstraints[fid]; !ok {
				b.fail(ErrUnknownReference, at, "template %q has no field %q", cur, st.Field)
				return nil, false
			}
			out = append(out, ir.PathStep{Kind: ir.StepField, ID: fid})
		case st.Trait != nil:
			if !last {
				b.fail(ErrInvalidImplPath, at, "trait step must be last")
				return nil, false
			}
			if _, ok := b.slotOf(at, cur, st.Trait.Slot); !ok {
				return nil, false
			}
			if _, ok := b.doc.Traits[st.Trait.Trait].Methods[st.Trait.Method]; !ok {
				b.fail(ErrUnknownReference, at, "trait %q has no method %q", st.Trait.Trait, st.Trait.Method)
				return nil, false
			}
			out = append(out, ir.PathStep{
				Kind:     ir.StepTraitOperativeConstituent,
				ID:       b.ids.slot(cur, st.Trait.Slot),
				TraitID:  b.ids.trait(st.Trait.Trait),
				MethodID: b.ids.method(st.Trait.Trait, st.Trait.Method),
			})
		default:
			kind, slot := ir.StepLibraryOperativeConstituent, st.Constituent
			if st.Instance != "" {
				kind, slot = ir.StepInstanceConstituent, st.Instance
			}
			if last {
				b.fail(ErrInvalidImplPath, at, "path must end with a field or trait step")
				return nil, false
			}
			sd, ok := b.slotOf(at, cur, slot)
			if !ok {
				return nil, false
			}
			if sd.Operative == "" {
				b.fail(ErrInvalidImplPath, at, "slot %q admits traits; only a trait step may follow it", slot)
				return nil, false
			}
			out = append(out, ir.PathStep{Kind: kind, ID: b.ids.slot(cur, slot)})
			cur = b.doc.Operatives[sd.Operative].Template
			if _, ok := b.doc.Templates[cur]; !ok {
				b.fail(ErrUnknownReference, at, "slot %q leads to unknown template %q", slot, cur)
				return nil, false
			}
		}
	}
	return out, true
}

func (b *docBuilder) slotOf(path, tmpl, slot string) (SlotDoc, bool) {
	sd, ok := b.doc.Templates[tmpl].Slots[slot]
	if !ok {
		b.fail(ErrUnknownReference, path, "template %q has no slot %q", tmpl, slot)
	}
	return sd, ok
}

// Names lists the document's item names by kind, for diagnostics.
func (d *Document) Names() map[string][]string {
	return map[string][]string{
		"traits":     sortedNames(d.Traits),
		"templates":  sortedNames(d.Templates),
		"operatives": sortedNames(d.Operatives),
		"instances":  sortedNames(d.Instances),
	}
}
