package ir

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
)

// FieldConstraint declares a required field on a template.
type FieldConstraint struct {
	Tag       Tag           `json:"tag"`
	ValueType PrimitiveType `json:"value_type"`
}

// BoundKind enumerates slot cardinality constraints.
type BoundKind uint8

const (
	BoundSingle BoundKind = iota + 1
	BoundLowerBound
	BoundUpperBound
	BoundRange
	BoundLowerBoundOrZero
	BoundRangeOrZero
	// BoundZero admits only an empty slot. Only legal as a specialization.
	BoundZero
)

var boundKindNames = map[BoundKind]string{
	BoundSingle:           "Single",
	BoundLowerBound:       "LowerBound",
	BoundUpperBound:       "UpperBound",
	BoundRange:            "Range",
	BoundLowerBoundOrZero: "LowerBoundOrZero",
	BoundRangeOrZero:      "RangeOrZero",
	BoundZero:             "Zero",
}

// String returns the constructor name.
func (k BoundKind) String() string {
	if name, ok := boundKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("BoundKind(%d)", uint8(k))
}

// SlotBound is a cardinality constraint on a slot's contents.
// Lo is used by LowerBound, Range, LowerBoundOrZero and RangeOrZero;
// Hi by UpperBound, Range and RangeOrZero.
type SlotBound struct {
	Kind BoundKind `json:"kind"`
	Lo   int       `json:"lo,omitempty" validate:"gte=0"`
	Hi   int       `json:"hi,omitempty" validate:"gte=0"`
}

// Single admits exactly one element.
func Single() SlotBound { return SlotBound{Kind: BoundSingle} }

// LowerBound admits n or more elements.
func LowerBound(n int) SlotBound { return SlotBound{Kind: BoundLowerBound, Lo: n} }

// UpperBound admits at most n elements.
func UpperBound(n int) SlotBound { return SlotBound{Kind: BoundUpperBound, Hi: n} }

// Range admits lo..hi elements inclusive.
func Range(lo, hi int) SlotBound { return SlotBound{Kind: BoundRange, Lo: lo, Hi: hi} }

// LowerBoundOrZero admits n or more elements, or none.
func LowerBoundOrZero(n int) SlotBound { return SlotBound{Kind: BoundLowerBoundOrZero, Lo: n} }

// RangeOrZero admits lo..hi elements, or none.
func RangeOrZero(lo, hi int) SlotBound { return SlotBound{Kind: BoundRangeOrZero, Lo: lo, Hi: hi} }

// Zero admits no elements.
func Zero() SlotBound { return SlotBound{Kind: BoundZero} }

// Allows reports whether a slot holding n elements satisfies the bound.
func (b SlotBound) Allows(n int) bool {
	switch b.Kind {
	case BoundSingle:
		return n == 1
	case BoundLowerBound:
		return n >= b.Lo
	case BoundUpperBound:
		return n >= 0 && n <= b.Hi
	case BoundRange:
		return n >= b.Lo && n <= b.Hi
	case BoundLowerBoundOrZero:
		return n == 0 || n >= b.Lo
	case BoundRangeOrZero:
		return n == 0 || (n >= b.Lo && n <= b.Hi)
	case BoundZero:
		return n == 0
	default:
		return false
	}
}

// Max returns the largest admitted count, or math.MaxInt when unbounded.
func (b SlotBound) Max() int {
	switch b.Kind {
	case BoundSingle:
		return 1
	case BoundUpperBound, BoundRange, BoundRangeOrZero:
		return b.Hi
	case BoundZero:
		return 0
	default:
		return math.MaxInt
	}
}

// Min returns the smallest admitted count.
func (b SlotBound) Min() int {
	switch b.Kind {
	case BoundSingle:
		return 1
	case BoundLowerBound, BoundRange:
		return b.Lo
	default:
		return 0
	}
}

// Valid reports whether the bound is well formed.
func (b SlotBound) Valid() bool {
	switch b.Kind {
	case BoundSingle, BoundZero:
		return true
	case BoundLowerBound, BoundLowerBoundOrZero:
		return b.Lo >= 0
	case BoundUpperBound:
		return b.Hi >= 0
	case BoundRange, BoundRangeOrZero:
		return b.Lo >= 0 && b.Lo <= b.Hi
	default:
		return false
	}
}

// String renders "Single", "LowerBound(1)", "Range(1,3)".
func (b SlotBound) String() string {
	switch b.Kind {
	case BoundSingle, BoundZero:
		return b.Kind.String()
	case BoundLowerBound, BoundLowerBoundOrZero:
		return fmt.Sprintf("%s(%d)", b.Kind, b.Lo)
	case BoundUpperBound:
		return fmt.Sprintf("%s(%d)", b.Kind, b.Hi)
	case BoundRange, BoundRangeOrZero:
		return fmt.Sprintf("%s(%d,%d)", b.Kind, b.Lo, b.Hi)
	default:
		return b.Kind.String()
	}
}

// ParseSlotBound parses the String form.
func ParseSlotBound(s string) (SlotBound, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	name, args := s, []int(nil)
	if open := strings.IndexByte(s, '('); open >= 0 {
		if !strings.HasSuffix(s, ")") {
			return SlotBound{}, fmt.Errorf("parse bound %q: missing ')'", s)
		}
		name = s[:open]
		for _, part := range strings.Split(s[open+1:len(s)-1], ",") {
			n, err := strconv.Atoi(part)
			if err != nil {
				return SlotBound{}, fmt.Errorf("parse bound %q: %w", s, err)
			}
			args = append(args, n)
		}
	}
	var kind BoundKind
	for k, n := range boundKindNames {
		if n == name {
			kind = k
		}
	}
	want := map[BoundKind]int{
		BoundSingle: 0, BoundZero: 0,
		BoundLowerBound: 1, BoundUpperBound: 1, BoundLowerBoundOrZero: 1,
		BoundRange: 2, BoundRangeOrZero: 2,
	}
	n, ok := want[kind]
	if !ok {
		return SlotBound{}, fmt.Errorf("parse bound %q: unknown bound", s)
	}
	if len(args) != n {
		return SlotBound{}, fmt.Errorf("parse bound %q: %s takes %d argument(s)", s, kind, n)
	}
	b := SlotBound{Kind: kind}
	switch kind {
	case BoundLowerBound, BoundLowerBoundOrZero:
		b.Lo = args[0]
	case BoundUpperBound:
		b.Hi = args[0]
	case BoundRange, BoundRangeOrZero:
		b.Lo, b.Hi = args[0], args[1]
	}
	if !b.Valid() {
		return SlotBound{}, fmt.Errorf("parse bound %q: malformed bound", s)
	}
	return b, nil
}

// DescriptorKind selects how an OperativeDescriptor matches operatives.
type DescriptorKind uint8

const (
	// DescriptorLibraryOperative admits a named operative and its descendants.
	DescriptorLibraryOperative DescriptorKind = iota + 1
	// DescriptorTraitOperative admits any operative implementing all listed traits.
	DescriptorTraitOperative
)

// OperativeDescriptor constrains the legal targets of a slot.
type OperativeDescriptor struct {
	Kind        DescriptorKind `json:"kind"`
	OperativeID UID            `json:"operative_id,omitempty"`
	TraitIDs    []UID          `json:"trait_ids,omitempty"`
}

// LibraryOperativeDescriptor admits id and its descendants.
func LibraryOperativeDescriptor(id UID) OperativeDescriptor {
	return OperativeDescriptor{Kind: DescriptorLibraryOperative, OperativeID: id}
}

// TraitOperativeDescriptor admits operatives implementing every trait.
func TraitOperativeDescriptor(traits ...UID) OperativeDescriptor {
	return OperativeDescriptor{Kind: DescriptorTraitOperative, TraitIDs: SortUIDs(append([]UID(nil), traits...))}
}

// String renders the descriptor for error messages.
func (d OperativeDescriptor) String() string {
	switch d.Kind {
	case DescriptorLibraryOperative:
		return "LibraryOperative(" + d.OperativeID.String() + ")"
	case DescriptorTraitOperative:
		parts := make([]string, len(d.TraitIDs))
		for i, id := range d.TraitIDs {
			parts[i] = id.String()
		}
		return "TraitOperative{" + strings.Join(parts, ",") + "}"
	default:
		return "Descriptor(?)"
	}
}

// OperativeSlot is an outgoing port on a template.
type OperativeSlot struct {
	Tag        Tag                 `json:"tag"`
	Bounds     SlotBound           `json:"bounds"`
	Descriptor OperativeDescriptor `json:"operative_descriptor"`
}

// PathStepKind enumerates ImplPath steps.
type PathStepKind uint8

const (
	// StepField reads a field of the current instance; always the last step.
	StepField PathStepKind = iota + 1
	// StepLibraryOperativeConstituent moves to the single target in a slot.
	StepLibraryOperativeConstituent
	// StepInstanceConstituent moves to the single target in a slot that was
	// bound through a library instance specialization.
	StepInstanceConstituent
	// StepTraitOperativeConstituent evaluates a trait method on the single
	// target in a slot; always the last step.
	StepTraitOperativeConstituent
)

// PathStep is one hop of an ImplPath. ID names the field or slot.
type PathStep struct {
	Kind     PathStepKind `json:"kind"`
	ID       UID          `json:"id"`
	TraitID  UID          `json:"trait_id,omitempty"`
	MethodID UID          `json:"method_id,omitempty"`
}

// ImplPath describes how to compute a trait method's value from an instance.
type ImplPath []PathStep

// TraitImpls maps trait id to method id to the path implementing it.
type TraitImpls map[UID]map[UID]ImplPath

// Clone copies the nested maps; paths are shared since they are immutable.
func (t TraitImpls) Clone() TraitImpls {
	if t == nil {
		return nil
	}
	out := make(TraitImpls, len(t))
	for trait, methods := range t {
		m := make(map[UID]ImplPath, len(methods))
		for method, path := range methods {
			m[method] = path
		}
		out[trait] = m
	}
	return out
}

// Template is a structural shape: fields and slots.
type Template struct {
	Tag              Tag                     `json:"tag"`
	FieldConstraints map[UID]FieldConstraint `json:"field_constraints"`
	OperativeSlots   map[UID]OperativeSlot   `json:"operative_slots"`
	TraitImpls       TraitImpls              `json:"trait_impls,omitempty"`
}

// FieldByName finds a field constraint by its tag name.
func (t *Template) FieldByName(name string) (FieldConstraint, bool) {
	for _, id := range SortedKeys(t.FieldConstraints) {
		if fc := t.FieldConstraints[id]; fc.Tag.Name == name {
			return fc, true
		}
	}
	return FieldConstraint{}, false
}

// SlotByName finds a slot by its tag name.
func (t *Template) SlotByName(name string) (OperativeSlot, bool) {
	for _, id := range SortedKeys(t.OperativeSlots) {
		if s := t.OperativeSlots[id]; s.Tag.Name == name {
			return s, true
		}
	}
	return OperativeSlot{}, false
}

// FieldValue pairs a field id with a value; used for locked and fulfilled fields.
type FieldValue struct {
	FieldID UID   `json:"field_id"`
	Value   Value `json:"-"`
}

// TypeSpecKind enumerates slot type narrowings.
type TypeSpecKind uint8

const (
	// TypeSingle fixes the slot to one operative (and its descendants).
	TypeSingle TypeSpecKind = iota + 1
	// TypeMulti restricts the slot to a set of operatives.
	TypeMulti
	// TypeTraitObject adds required traits to the upstream requirement.
	TypeTraitObject
)

// TypeSpecialization narrows the operatives a slot admits.
type TypeSpecialization struct {
	Kind         TypeSpecKind `json:"kind"`
	OperativeIDs []UID        `json:"operative_ids,omitempty"`
	TraitIDs     []UID        `json:"trait_ids,omitempty"`
}

// SlotSpecialization is a derived operative's refinement of one template slot.
// Upstream is the specialization it refines on an ancestor, or NilUID when it
// refines the template slot directly.
type SlotSpecialization struct {
	Tag              Tag                 `json:"tag"`
	SlotID           UID                 `json:"slot_id"`
	Upstream         UID                 `json:"upstream,omitempty"`
	Type             *TypeSpecialization `json:"type,omitempty"`
	Bound            *SlotBound          `json:"bound,omitempty"`
	SlottedInstances []UID               `json:"slotted_instances,omitempty"`
}

// Clone deep-copies the specialization.
func (s SlotSpecialization) Clone() SlotSpecialization {
	out := s
	if s.Type != nil {
		t := *s.Type
		t.OperativeIDs = append([]UID(nil), s.Type.OperativeIDs...)
		t.TraitIDs = append([]UID(nil), s.Type.TraitIDs...)
		out.Type = &t
	}
	if s.Bound != nil {
		b := *s.Bound
		out.Bound = &b
	}
	out.SlottedInstances = append([]UID(nil), s.SlottedInstances...)
	return out
}

// LibraryOperative refines a template (directly or through a parent operative).
// ParentID is NilUID for operatives rooted at their template.
type LibraryOperative struct {
	Tag                 Tag                  `json:"tag"`
	TemplateID          UID                  `json:"template_id"`
	ParentID            UID                  `json:"parent_operative,omitempty"`
	LockedFields        []FieldValue         `json:"-"`
	TraitImpls          TraitImpls           `json:"trait_impls,omitempty"`
	SlotSpecializations []SlotSpecialization `json:"slot_specializations,omitempty"`
}

// HasParent reports whether the operative derives from another operative.
func (o *LibraryOperative) HasParent() bool {
	return !o.ParentID.IsZero()
}

// LockedValue returns the value this operative itself locks for a field.
func (o *LibraryOperative) LockedValue(fieldID UID) (Value, bool) {
	for _, lf := range o.LockedFields {
		if lf.FieldID == fieldID {
			return lf.Value, true
		}
	}
	return nil, false
}

// Specialization returns this operative's own specialization of a slot.
func (o *LibraryOperative) Specialization(slotID UID) (*SlotSpecialization, bool) {
	for i := range o.SlotSpecializations {
		if o.SlotSpecializations[i].SlotID == slotID {
			return &o.SlotSpecializations[i], true
		}
	}
	return nil, false
}

// Clone deep-copies the operative.
func (o *LibraryOperative) Clone() *LibraryOperative {
	out := *o
	out.LockedFields = append([]FieldValue(nil), o.LockedFields...)
	out.TraitImpls = o.TraitImpls.Clone()
	out.SlotSpecializations = make([]SlotSpecialization, len(o.SlotSpecializations))
	for i, s := range o.SlotSpecializations {
		out.SlotSpecializations[i] = s.Clone()
	}
	return &out
}

// LibraryInstance is a reusable, fully specified value of an operative.
type LibraryInstance struct {
	Tag             Tag          `json:"tag"`
	OperativeID     UID          `json:"operative_id"`
	FulfilledFields []FieldValue `json:"-"`
}

// FieldValue returns the value fulfilled for a field.
func (i *LibraryInstance) FieldValue(fieldID UID) (Value, bool) {
	for _, fv := range i.FulfilledFields {
		if fv.FieldID == fieldID {
			return fv.Value, true
		}
	}
	return nil, false
}

// TraitMethod is a method signature.
type TraitMethod struct {
	Tag        Tag           `json:"tag"`
	ReturnType PrimitiveType `json:"return_type"`
}

// Trait is a named set of method signatures.
type Trait struct {
	Tag     Tag           `json:"tag"`
	Methods []TraitMethod `json:"methods"`
}

// Method finds a method by id.
func (t *Trait) Method(id UID) (TraitMethod, bool) {
	for _, m := range t.Methods {
		if m.Tag.ID == id {
			return m, true
		}
	}
	return TraitMethod{}, false
}

// Schema is the immutable library of templates, operatives, instances and traits.
// Editing goes through Clone; a Schema handed to the engine is never mutated.
type Schema struct {
	Templates  map[UID]*Template
	Operatives map[UID]*LibraryOperative
	Instances  map[UID]*LibraryInstance
	Traits     map[UID]*Trait

	versionOnce sync.Once
	version     string
}

// NewSchema returns an empty schema.
func NewSchema() *Schema {
	return &Schema{
		Templates:  make(map[UID]*Template),
		Operatives: make(map[UID]*LibraryOperative),
		Instances:  make(map[UID]*LibraryInstance),
		Traits:     make(map[UID]*Trait),
	}
}

// Template looks up a template.
func (s *Schema) Template(id UID) (*Template, bool) {
	t, ok := s.Templates[id]
	return t, ok
}

// Operative looks up an operative.
func (s *Schema) Operative(id UID) (*LibraryOperative, bool) {
	o, ok := s.Operatives[id]
	return o, ok
}

// LibraryInstance looks up a library instance.
func (s *Schema) LibraryInstance(id UID) (*LibraryInstance, bool) {
	i, ok := s.Instances[id]
	return i, ok
}

// Trait looks up a trait.
func (s *Schema) Trait(id UID) (*Trait, bool) {
	t, ok := s.Traits[id]
	return t, ok
}

// OperativeByName finds an operative by tag name.
func (s *Schema) OperativeByName(name string) (*LibraryOperative, bool) {
	for _, id := range SortedKeys(s.Operatives) {
		if op := s.Operatives[id]; op.Tag.Name == name {
			return op, true
		}
	}
	return nil, false
}

// TraitByName finds a trait by tag name.
func (s *Schema) TraitByName(name string) (*Trait, bool) {
	for _, id := range SortedKeys(s.Traits) {
		if tr := s.Traits[id]; tr.Tag.Name == name {
			return tr, true
		}
	}
	return nil, false
}

// TemplateOf returns the template an operative conforms to.
func (s *Schema) TemplateOf(operativeID UID) (*Template, bool) {
	op, ok := s.Operatives[operativeID]
	if !ok {
		return nil, false
	}
	return s.Template(op.TemplateID)
}

// Clone returns a copy whose operative and library-instance entries can be
// edited without affecting s. Templates and traits are shared.
func (s *Schema) Clone() *Schema {
	out := NewSchema()
	for id, t := range s.Templates {
		out.Templates[id] = t
	}
	for id, t := range s.Traits {
		out.Traits[id] = t
	}
	for id, op := range s.Operatives {
		out.Operatives[id] = op.Clone()
	}
	for id, inst := range s.Instances {
		c := *inst
		c.FulfilledFields = append([]FieldValue(nil), inst.FulfilledFields...)
		out.Instances[id] = &c
	}
	return out
}

// Version is a content hash of the schema, used as a digest cache key.
// Computed once; callers must not mutate a schema after first use.
func (s *Schema) Version() string {
	s.versionOnce.Do(func() {
		v, err := SchemaHash(s)
		if err != nil {
			// Unhashable schemas (NaN locks) still need a distinct key.
			v = fmt.Sprintf("unhashed-%p", s)
		}
		s.version = v
	})
	return s.version
}

// LinkUpstreams points every specialization without an upstream at the
// nearest ancestor specialization of the same slot. Loaders call it once
// after assembling a schema.
func (s *Schema) LinkUpstreams() {
	for _, id := range SortedKeys(s.Operatives) {
		op := s.Operatives[id]
		for i := range op.SlotSpecializations {
			spec := &op.SlotSpecializations[i]
			if !spec.Upstream.IsZero() {
				continue
			}
			seen := map[UID]bool{id: true}
			for cur := op.ParentID; !cur.IsZero() && !seen[cur]; {
				seen[cur] = true
				parent, ok := s.Operatives[cur]
				if !ok {
					break
				}
				if up, ok := parent.Specialization(spec.SlotID); ok {
					spec.Upstream = up.Tag.ID
					break
				}
				cur = parent.ParentID
			}
		}
	}
}
