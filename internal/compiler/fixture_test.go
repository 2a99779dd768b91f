package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
	tu "github.com/reedwoodruff/molecule-schema-sub000/internal/testutil"
)

// fixtureSchema models assemblies of parts:
//
//	part <- bolt, nut
//	assembly <- kit (parts: Range(1,3)) <- bolt-kit (parts: Single(bolt))
//	         \- kit <- big-kit <- bigger-kit (parts: Range(2,3))
func fixtureSchema() *ir.Schema {
	return tu.NewSchema().
		Trait("named", tu.Method{Name: "name", Type: ir.TypeString}).
		Template("part",
			tu.Field("label", ir.TypeString),
			tu.TemplateImpl("named", "name", tu.FieldStep("label"))).
		Template("assembly",
			tu.Field("title", ir.TypeString),
			tu.Slot("parts", ir.UpperBound(4), "part"),
			tu.TraitSlot("tags", ir.LowerBoundOrZero(1), "named")).
		Operative("part", "part").
		Operative("bolt", "part", tu.Parent("part")).
		Operative("nut", "part", tu.Parent("part")).
		Operative("assembly", "assembly").
		Operative("kit", "assembly", tu.Parent("assembly"), tu.Narrow("parts", ir.Range(1, 3))).
		Operative("bolt-kit", "assembly", tu.Parent("kit"), tu.NarrowTo("parts", "bolt")).
		Operative("big-kit", "assembly", tu.Parent("kit")).
		Operative("bigger-kit", "assembly", tu.Parent("big-kit"), tu.Narrow("parts", ir.Range(2, 3))).
		LibraryInstance("m6", "bolt", map[string]ir.Value{"label": ir.String("M6")}).
		Build()
}

// fixtureCUE is fixtureSchema written as an authored document.
const fixtureCUE = `namespace: "6f1c4f8e-2d3b-4c5a-9e7f-0a1b2c3d4e5f"
traits: named: methods: name: "String"
templates: {
	part: {
		fields: label: "String"
		impls: named: name: [{field: "label"}]
	}
	assembly: {
		fields: title: "String"
		slots: {
			parts: {bound: "UpperBound(4)", operative: "part"}
			tags: {bound: "LowerBoundOrZero(1)", traits: ["named"]}
		}
	}
}
operatives: {
	part: template: "part"
	bolt: {template: "part", parent: "part"}
	nut: {template: "part", parent: "part"}
	assembly: template: "assembly"
	kit: {template: "assembly", parent: "assembly", specialize: parts: bound: "Range(1,3)"}
	"bolt-kit": {template: "assembly", parent: "kit", specialize: parts: operatives: ["bolt"]}
	"big-kit": {template: "assembly", parent: "kit"}
	"bigger-kit": {template: "assembly", parent: "big-kit", specialize: parts: bound: "Range(2,3)"}
}
instances: m6: {operative: "bolt", fields: label: "M6"}
`

// fixtureYAML is fixtureSchema as an authored YAML document.
const fixtureYAML = `namespace: 6f1c4f8e-2d3b-4c5a-9e7f-0a1b2c3d4e5f
traits:
  named:
    methods:
      name: String
templates:
  part:
    fields:
      label: String
    impls:
      named:
        name:
          - field: label
  assembly:
    fields:
      title: String
    slots:
      parts:
        bound: UpperBound(4)
        operative: part
      tags:
        bound: LowerBoundOrZero(1)
        traits: [named]
operatives:
  part:
    template: part
  bolt:
    template: part
    parent: part
  nut:
    template: part
    parent: part
  assembly:
    template: assembly
  kit:
    template: assembly
    parent: assembly
    specialize:
      parts:
        bound: Range(1,3)
  bolt-kit:
    template: assembly
    parent: kit
    specialize:
      parts:
        operatives: [bolt]
  big-kit:
    template: assembly
    parent: kit
  bigger-kit:
    template: assembly
    parent: big-kit
    specialize:
      parts:
        bound: Range(2,3)
instances:
  m6:
    operative: bolt
    fields:
      label: M6
`

// requireSameSchema compares schemas through their canonical JSON form.
func requireSameSchema(t *testing.T, want, got *ir.Schema) {
	t.Helper()
	wantJSON, err := ir.MarshalSchema(want)
	require.NoError(t, err)
	gotJSON, err := ir.MarshalSchema(got)
	require.NoError(t, err)
	require.JSONEq(t, string(wantJSON), string(gotJSON))
}

// codes extracts error codes in order.
func codes(errs []ValidationError) []string {
	return ValidationErrors(errs).Codes()
}
