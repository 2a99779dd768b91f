package compiler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
	tu "github.com/reedwoodruff/molecule-schema-sub000/internal/testutil"
)

// partDoc is a small valid document over the fixture namespace.
func partDoc() *Document {
	return &Document{
		Namespace: tu.Namespace.String(),
		Traits:    map[string]TraitDoc{"named": {Methods: map[string]string{"name": "String"}}},
		Templates: map[string]TemplateDoc{
			"part": {Fields: map[string]string{"label": "String"}},
			"wrapper": {
				Slots: map[string]SlotDoc{"inner": {Bound: "Single", Operative: "part"}},
				Impls: Impls{"named": {"name": {{Constituent: "inner"}, {Field: "label"}}}},
			},
		},
		Operatives: map[string]OperativeDoc{
			"part":    {Template: "part"},
			"wrapper": {Template: "wrapper"},
		},
	}
}

func buildErrors(t *testing.T, doc *Document) ValidationErrors {
	t.Helper()
	_, err := Build(doc)
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs), "want ValidationErrors, got %T: %v", err, err)
	return verrs
}

func TestBuild_ConstituentPath(t *testing.T) {
	s, err := Build(partDoc())
	require.NoError(t, err)

	want := ir.ImplPath{
		{Kind: ir.StepLibraryOperativeConstituent, ID: tu.SlotID("wrapper", "inner")},
		{Kind: ir.StepField, ID: tu.FieldID("part", "label")},
	}
	tmpl := s.Templates[tu.TemplateID("wrapper")]
	assert.Equal(t, want, tmpl.TraitImpls[tu.TraitID("named")][tu.MethodID("named", "name")])
	assert.Empty(t, Validate(s))
}

func TestBuild_Shape(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *Document)
	}{
		{"namespace not a uuid", func(d *Document) { d.Namespace = "nope" }},
		{"bad template name", func(d *Document) { d.Templates["9lives"] = TemplateDoc{} }},
		{"trait without methods", func(d *Document) { d.Traits["empty"] = TraitDoc{} }},
		{"slot with operative and traits", func(d *Document) {
			d.Templates["holder"] = TemplateDoc{Slots: map[string]SlotDoc{
				"x": {Bound: "Single", Operative: "part", Traits: []string{"named"}},
			}}
		}},
		{"slot with neither", func(d *Document) {
			d.Templates["holder"] = TemplateDoc{Slots: map[string]SlotDoc{"x": {Bound: "Single"}}}
		}},
		{"slot without bound", func(d *Document) {
			d.Templates["holder"] = TemplateDoc{Slots: map[string]SlotDoc{"x": {Operative: "part"}}}
		}},
		{"operative without template", func(d *Document) { d.Operatives["loose"] = OperativeDoc{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := partDoc()
			tt.mutate(doc)
			verrs := buildErrors(t, doc)
			for _, e := range verrs {
				assert.Equal(t, ErrShape, e.Code, e.Error())
			}
		})
	}
}

func TestBuild_References(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *Document)
		code   string
		field  string
	}{
		{
			name:   "bad field type",
			mutate: func(d *Document) { d.Templates["part"].Fields["label"] = "Strung" },
			code:   ErrInvalidType,
			field:  "templates.part.fields.label",
		},
		{
			name: "bad bound",
			mutate: func(d *Document) {
				d.Templates["wrapper"].Slots["inner"] = SlotDoc{Bound: "Range(3,1)", Operative: "part"}
			},
			code:  ErrInvalidBound,
			field: "templates.wrapper.slots.inner.bound",
		},
		{
			name: "unknown slot operative",
			mutate: func(d *Document) {
				d.Templates["wrapper"] = TemplateDoc{Slots: map[string]SlotDoc{"inner": {Bound: "Single", Operative: "ghost"}}}
			},
			code:  ErrUnknownReference,
			field: "templates.wrapper.slots.inner.operative",
		},
		{
			name:   "unknown parent",
			mutate: func(d *Document) { d.Operatives["bolt"] = OperativeDoc{Template: "part", Parent: "ghost"} },
			code:   ErrUnknownReference,
			field:  "operatives.bolt.parent",
		},
		{
			name: "locked value of wrong type",
			mutate: func(d *Document) {
				d.Operatives["bolt"] = OperativeDoc{Template: "part", Parent: "part", Locked: map[string]any{"label": 7}}
			},
			code:  ErrInvalidValue,
			field: "operatives.bolt.locked.label",
		},
		{
			name: "locked unknown field",
			mutate: func(d *Document) {
				d.Operatives["bolt"] = OperativeDoc{Template: "part", Locked: map[string]any{"size": "M6"}}
			},
			code:  ErrUnknownReference,
			field: "operatives.bolt.locked.size",
		},
		{
			name: "specialize unknown slot",
			mutate: func(d *Document) {
				d.Operatives["tight"] = OperativeDoc{Template: "wrapper", Specialize: map[string]SpecDoc{"outer": {Bound: "Single"}}}
			},
			code:  ErrUnknownReference,
			field: "operatives.tight.specialize.outer",
		},
		{
			name:   "instance of unknown operative",
			mutate: func(d *Document) { d.Instances = map[string]InstanceDoc{"m6": {Operative: "ghost"}} },
			code:   ErrUnknownReference,
			field:  "instances.m6.operative",
		},
		{
			name: "field step not last",
			mutate: func(d *Document) {
				d.Templates["wrapper"].Impls["named"]["name"] = []StepDoc{{Field: "label"}, {Field: "label"}}
			},
			code:  ErrInvalidImplPath,
			field: "templates.wrapper.impls.named.name[0]",
		},
		{
			name: "step with two members",
			mutate: func(d *Document) {
				d.Templates["wrapper"].Impls["named"]["name"] = []StepDoc{{Field: "label", Constituent: "inner"}}
			},
			code:  ErrInvalidImplPath,
			field: "templates.wrapper.impls.named.name[0]",
		},
		{
			name: "path ends on constituent",
			mutate: func(d *Document) {
				d.Templates["wrapper"].Impls["named"]["name"] = []StepDoc{{Constituent: "inner"}}
			},
			code:  ErrInvalidImplPath,
			field: "templates.wrapper.impls.named.name[0]",
		},
		{
			name: "path names field of wrong template",
			mutate: func(d *Document) {
				d.Templates["wrapper"].Impls["named"]["name"] = []StepDoc{{Field: "label"}}
			},
			code:  ErrUnknownReference,
			field: "templates.wrapper.impls.named.name[0]",
		},
		{
			name: "impl of unknown method",
			mutate: func(d *Document) {
				d.Templates["wrapper"].Impls["named"]["size"] = []StepDoc{{Constituent: "inner"}, {Field: "label"}}
			},
			code:  ErrUnknownReference,
			field: "templates.wrapper.impls.named.size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := partDoc()
			tt.mutate(doc)
			verrs := buildErrors(t, doc)
			require.Len(t, verrs, 1, verrs.Error())
			assert.Equal(t, tt.code, verrs[0].Code)
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestCompile_RunsValidate(t *testing.T) {
	doc := partDoc()
	doc.Operatives["bolt"] = OperativeDoc{Template: "part", Parent: "part", Locked: map[string]any{"label": "a"}}
	doc.Operatives["m8"] = OperativeDoc{Template: "part", Parent: "bolt", Locked: map[string]any{"label": "b"}}

	_, err := Compile(doc)
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, []string{ErrLockConflict}, verrs.Codes())
}

func TestDocument_Names(t *testing.T) {
	names := partDoc().Names()
	assert.Equal(t, []string{"part", "wrapper"}, names["templates"])
	assert.Equal(t, []string{"named"}, names["traits"])
	assert.Empty(t, names["instances"])
}
