package compiler

import (
	"fmt"
	"strings"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/digest"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/specialize"
)

// Schema error codes (E200-E299)
const (
	// Authoring errors (E201-E209)
	ErrShape            = "E201" // document fails a structural rule
	ErrUnknownReference = "E202" // name or id refers to nothing
	ErrInvalidType      = "E203" // unparsable primitive type
	ErrInvalidBound     = "E204" // unparsable or malformed slot bound
	ErrInvalidValue     = "E205" // value does not match its field type
	ErrInvalidImplPath  = "E206" // impl path has the wrong shape

	// Schema consistency errors (E210-E229)
	ErrParentCycle      = "E210" // operative is its own ancestor
	ErrTemplateMismatch = "E211" // operative and parent use different templates
	ErrLockedField      = "E212" // locked field missing from template or mistyped
	ErrLockConflict     = "E213" // descendant relocks a field at another value
	ErrSpecialization   = "E214" // specialization does not narrow its upstream
	ErrLibraryInstance  = "E215" // library instance fields incomplete or mistyped
	ErrTraitImpl        = "E216" // trait impl incomplete or returns the wrong type
	ErrTag              = "E220" // item name or id missing
	ErrDuplicateName    = "E221" // two items of one kind share a name
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors carries every problem found in one pass.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "\n")
}

// Codes lists the error codes in order.
func (v ValidationErrors) Codes() []string {
	out := make([]string, len(v))
	for i, e := range v {
		out[i] = e.Code
	}
	return out
}

type checker struct {
	s    *ir.Schema
	errs []ValidationError
}

func (c *checker) fail(code, field, format string, args ...any) {
	c.errs = append(c.errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Code: code})
}

// Validate checks a compiled schema for internal consistency.
// Returns all errors found (does not fail-fast). Specializations are only
// checked once the operative graph itself is sound.
func Validate(s *ir.Schema) []ValidationError {
	c := &checker{s: s}
	c.tags()
	c.templates()
	c.operatives()
	if len(c.errs) == 0 {
		c.specializations()
		c.instances()
		c.impls()
	}
	return c.errs
}

func (c *checker) tag(kind string, t ir.Tag) {
	at := kind + "." + t.Name
	if err := docValidator().Var(t.Name, "required,name"); err != nil {
		c.fail(ErrTag, at, "invalid name %q", t.Name)
	}
	if t.ID.IsZero() {
		c.fail(ErrTag, at, "missing id")
	}
}

func (c *checker) tags() {
	seen := make(map[string]ir.UID)
	check := func(kind string, t ir.Tag) {
		c.tag(kind, t)
		key := kind + "/" + t.Name
		if prev, ok := seen[key]; ok {
			c.fail(ErrDuplicateName, kind+"."+t.Name, "name shared by %s and %s", prev, t.ID)
			return
		}
		seen[key] = t.ID
	}
	for _, id := range ir.SortedKeys(c.s.Traits) {
		tr := c.s.Traits[id]
		check("traits", tr.Tag)
		for _, m := range tr.Methods {
			c.tag("traits."+tr.Tag.Name+".methods", m.Tag)
			if m.ReturnType.IsZero() {
				c.fail(ErrInvalidType, "traits."+tr.Tag.Name+".methods."+m.Tag.Name, "missing return type")
			}
		}
	}
	for _, id := range ir.SortedKeys(c.s.Templates) {
		check("templates", c.s.Templates[id].Tag)
	}
	for _, id := range ir.SortedKeys(c.s.Operatives) {
		check("operatives", c.s.Operatives[id].Tag)
	}
	for _, id := range ir.SortedKeys(c.s.Instances) {
		check("instances", c.s.Instances[id].Tag)
	}
}

func (c *checker) descriptor(at string, d ir.OperativeDescriptor) {
	switch d.Kind {
	case ir.DescriptorLibraryOperative:
		if _, ok := c.s.Operative(d.OperativeID); !ok {
			c.fail(ErrUnknownReference, at, "unknown operative %s", d.OperativeID)
		}
	case ir.DescriptorTraitOperative:
		for _, tid := range d.TraitIDs {
			if _, ok := c.s.Trait(tid); !ok {
				c.fail(ErrUnknownReference, at, "unknown trait %s", tid)
			}
		}
	default:
		c.fail(ErrShape, at, "slot has no operative descriptor")
	}
}

func (c *checker) templates() {
	for _, id := range ir.SortedKeys(c.s.Templates) {
		t := c.s.Templates[id]
		at := "templates." + t.Tag.Name
		for _, fid := range ir.SortedKeys(t.FieldConstraints) {
			fc := t.FieldConstraints[fid]
			c.tag(at+".fields", fc.Tag)
			if fc.ValueType.IsZero() {
				c.fail(ErrInvalidType, at+".fields."+fc.Tag.Name, "missing value type")
			}
		}
		for _, sid := range ir.SortedKeys(t.OperativeSlots) {
			slot := t.OperativeSlots[sid]
			c.tag(at+".slots", slot.Tag)
			if !slot.Bounds.Valid() {
				c.fail(ErrInvalidBound, at+".slots."+slot.Tag.Name, "invalid bound %s", slot.Bounds)
			}
			c.descriptor(at+".slots."+slot.Tag.Name, slot.Descriptor)
		}
	}
}

func (c *checker) operatives() {
	for _, id := range ir.SortedKeys(c.s.Operatives) {
		op := c.s.Operatives[id]
		at := "operatives." + op.Tag.Name
		tmpl, ok := c.s.Template(op.TemplateID)
		if !ok {
			c.fail(ErrUnknownReference, at+".template", "unknown template %s", op.TemplateID)
			continue
		}
		if op.HasParent() {
			parent, ok := c.s.Operative(op.ParentID)
			if !ok {
				c.fail(ErrUnknownReference, at+".parent", "unknown operative %s", op.ParentID)
				continue
			}
			if parent.TemplateID != op.TemplateID {
				c.fail(ErrTemplateMismatch, at+".parent", "parent %q uses another template", parent.Tag.Name)
			}
		}
		if _, err := digest.Ancestry(c.s, id); err != nil {
			c.fail(ErrParentCycle, at+".parent", "%v", err)
			continue
		}
		c.locks(at, op, tmpl)
	}
}

func (c *checker) locks(at string, op *ir.LibraryOperative, tmpl *ir.Template) {
	inherited := make(map[ir.UID]ir.Value)
	for cur := op.ParentID; !cur.IsZero(); {
		parent := c.s.Operatives[cur]
		for _, lf := range parent.LockedFields {
			if _, ok := inherited[lf.FieldID]; !ok {
				inherited[lf.FieldID] = lf.Value
			}
		}
		cur = parent.ParentID
	}
	for _, lf := range op.LockedFields {
		fc, ok := tmpl.FieldConstraints[lf.FieldID]
		if !ok {
			c.fail(ErrLockedField, at+".locked", "template %q has no field %s", tmpl.Tag.Name, lf.FieldID)
			continue
		}
		field := at + ".locked." + fc.Tag.Name
		if lf.Value == nil || !ir.TypeOf(lf.Value).Equal(fc.ValueType) {
			c.fail(ErrLockedField, field, "field is %s, got %s", fc.ValueType, ir.TypeOf(lf.Value))
			continue
		}
		if prev, ok := inherited[lf.FieldID]; ok && !ir.Equal(prev, lf.Value) {
			c.fail(ErrLockConflict, field, "ancestor locks %s, got %s", ir.FormatValue(prev), ir.FormatValue(lf.Value))
		}
	}
}

func (c *checker) specializations() {
	for _, e := range specialize.Check(c.s, digest.NewResolver()) {
		name := e.OperativeID.String()
		if op, ok := c.s.Operative(e.OperativeID); ok {
			name = op.Tag.Name
		}
		c.fail(ErrSpecialization, "operatives."+name+".specialize", "%s", e.Message)
	}
}

func (c *checker) instances() {
	for _, id := range ir.SortedKeys(c.s.Instances) {
		inst := c.s.Instances[id]
		at := "instances." + inst.Tag.Name
		tmpl, ok := c.s.TemplateOf(inst.OperativeID)
		if !ok {
			c.fail(ErrUnknownReference, at+".operative", "unknown operative %s", inst.OperativeID)
			continue
		}
		locked, err := digest.LockedFields(c.s, inst.OperativeID)
		if err != nil {
			c.fail(ErrUnknownReference, at+".operative", "%v", err)
			continue
		}
		fulfilled := make(map[ir.UID]bool, len(inst.FulfilledFields))
		for _, fv := range inst.FulfilledFields {
			fc, ok := tmpl.FieldConstraints[fv.FieldID]
			if !ok {
				c.fail(ErrLibraryInstance, at+".fields", "template %q has no field %s", tmpl.Tag.Name, fv.FieldID)
				continue
			}
			fulfilled[fv.FieldID] = true
			field := at + ".fields." + fc.Tag.Name
			if fv.Value == nil || !ir.TypeOf(fv.Value).Equal(fc.ValueType) {
				c.fail(ErrLibraryInstance, field, "field is %s, got %s", fc.ValueType, ir.TypeOf(fv.Value))
				continue
			}
			if lf, ok := locked[fv.FieldID]; ok && !ir.Equal(lf.Value, fv.Value) {
				c.fail(ErrLibraryInstance, field, "field is locked at %s", ir.FormatValue(lf.Value))
			}
		}
		for _, fid := range ir.SortedKeys(tmpl.FieldConstraints) {
			if _, ok := locked[fid]; ok || fulfilled[fid] {
				continue
			}
			c.fail(ErrLibraryInstance, at+".fields."+tmpl.FieldConstraints[fid].Tag.Name, "required field is empty")
		}
	}
}

// impls checks every trait impl an operative resolves: each named trait and
// method exists, every method of an implemented trait is covered, and each
// path yields the method's return type.
func (c *checker) impls() {
	for _, id := range ir.SortedKeys(c.s.Operatives) {
		op := c.s.Operatives[id]
		at := "operatives." + op.Tag.Name + ".impls"
		impls, err := digest.TraitImpls(c.s, id)
		if err != nil {
			c.fail(ErrTraitImpl, at, "%v", err)
			continue
		}
		for _, tid := range ir.SortedKeys(impls) {
			tr, ok := c.s.Trait(tid)
			if !ok {
				c.fail(ErrUnknownReference, at, "unknown trait %s", tid)
				continue
			}
			for _, m := range tr.Methods {
				path, ok := impls[tid][m.Tag.ID]
				if !ok {
					c.fail(ErrTraitImpl, at+"."+tr.Tag.Name, "method %q not implemented", m.Tag.Name)
					continue
				}
				got, err := c.pathType(op.TemplateID, path)
				if err != nil {
					c.fail(ErrInvalidImplPath, at+"."+tr.Tag.Name+"."+m.Tag.Name, "%v", err)
					continue
				}
				if !got.Equal(m.ReturnType) {
					c.fail(ErrTraitImpl, at+"."+tr.Tag.Name+"."+m.Tag.Name, "path yields %s, method returns %s", got, m.ReturnType)
				}
			}
			for _, mid := range ir.SortedKeys(impls[tid]) {
				if _, ok := tr.Method(mid); !ok {
					c.fail(ErrUnknownReference, at+"."+tr.Tag.Name, "trait has no method %s", mid)
				}
			}
		}
	}
}

// pathType walks a path from a template and returns the type it yields.
func (c *checker) pathType(templateID ir.UID, path ir.ImplPath) (ir.PrimitiveType, error) {
	if len(path) == 0 {
		return ir.PrimitiveType{}, fmt.Errorf("empty path")
	}
	cur := templateID
	for i, step := range path {
		tmpl, ok := c.s.Template(cur)
		if !ok {
			return ir.PrimitiveType{}, fmt.Errorf("step %d: unknown template %s", i, cur)
		}
		last := i == len(path)-1
		switch step.Kind {
		case ir.StepField:
			fc, ok := tmpl.FieldConstraints[step.ID]
			if !ok {
				return ir.PrimitiveType{}, fmt.Errorf("step %d: template %q has no field %s", i, tmpl.Tag.Name, step.ID)
			}
			if !last {
				return ir.PrimitiveType{}, fmt.Errorf("step %d: field step must be last", i)
			}
			return fc.ValueType, nil
		case ir.StepTraitOperativeConstituent:
			if _, ok := tmpl.OperativeSlots[step.ID]; !ok {
				return ir.PrimitiveType{}, fmt.Errorf("step %d: template %q has no slot %s", i, tmpl.Tag.Name, step.ID)
			}
			tr, ok := c.s.Trait(step.TraitID)
			if !ok {
				return ir.PrimitiveType{}, fmt.Errorf("step %d: unknown trait %s", i, step.TraitID)
			}
			m, ok := tr.Method(step.MethodID)
			if !ok {
				return ir.PrimitiveType{}, fmt.Errorf("step %d: trait %q has no method %s", i, tr.Tag.Name, step.MethodID)
			}
			if !last {
				return ir.PrimitiveType{}, fmt.Errorf("step %d: trait step must be last", i)
			}
			return m.ReturnType, nil
		case ir.StepLibraryOperativeConstituent, ir.StepInstanceConstituent:
			slot, ok := tmpl.OperativeSlots[step.ID]
			if !ok {
				return ir.PrimitiveType{}, fmt.Errorf("step %d: template %q has no slot %s", i, tmpl.Tag.Name, step.ID)
			}
			if slot.Descriptor.Kind != ir.DescriptorLibraryOperative {
				return ir.PrimitiveType{}, fmt.Errorf("step %d: slot %q admits traits; use a trait step", i, slot.Tag.Name)
			}
			next, ok := c.s.TemplateOf(slot.Descriptor.OperativeID)
			if !ok {
				return ir.PrimitiveType{}, fmt.Errorf("step %d: unknown operative %s", i, slot.Descriptor.OperativeID)
			}
			cur = next.Tag.ID
		default:
			return ir.PrimitiveType{}, fmt.Errorf("step %d: unknown step kind %d", i, step.Kind)
		}
	}
	return ir.PrimitiveType{}, fmt.Errorf("path must end with a field or trait step")
}
