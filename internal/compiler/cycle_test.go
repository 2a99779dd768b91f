package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
	tu "github.com/reedwoodruff/molecule-schema-sub000/internal/testutil"
)

func TestAnalyzeCycles_Empty(t *testing.T) {
	warnings := AnalyzeCycles(ir.NewSchema())
	assert.NotNil(t, warnings)
	assert.Empty(t, warnings)
}

func TestAnalyzeCycles_Acyclic(t *testing.T) {
	// kit requires parts, but parts require nothing back
	assert.Empty(t, AnalyzeCycles(fixtureSchema()))
}

func TestAnalyzeCycles_MutualRequirement(t *testing.T) {
	s := tu.NewSchema().
		Template("a", tu.Slot("b", ir.Single(), "b")).
		Template("b", tu.Slot("a", ir.LowerBound(1), "a")).
		Operative("a", "a").
		Operative("b", "b").
		Build()

	warnings := AnalyzeCycles(s)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"a", "b", "a"}, warnings[0].Path)
	assert.Equal(t, "warning", warnings[0].Level)
	assert.Contains(t, warnings[0].Message, "a → b → a")
}

func TestAnalyzeCycles_SelfLoop(t *testing.T) {
	s := tu.NewSchema().
		Template("chain", tu.Slot("next", ir.Single(), "chain")).
		Operative("chain", "chain").
		Build()

	warnings := AnalyzeCycles(s)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"chain", "chain"}, warnings[0].Path)
	assert.Contains(t, warnings[0].Message, "requires an instance of itself")
}

func TestAnalyzeCycles_OptionalSlotIsNotACycle(t *testing.T) {
	s := tu.NewSchema().
		Template("list", tu.Slot("next", ir.UpperBound(1), "list")).
		Operative("list", "list").
		Build()

	assert.Empty(t, AnalyzeCycles(s))
}

func TestAnalyzeCycles_SpecializationMakesSlotRequired(t *testing.T) {
	s := tu.NewSchema().
		Template("node", tu.Slot("next", ir.UpperBound(1), "node")).
		Operative("node", "node").
		Operative("strict", "node", tu.Parent("node"), tu.Narrow("next", ir.Range(1, 1))).
		Build()

	warnings := AnalyzeCycles(s)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"strict", "strict"}, warnings[0].Path)
}

func TestAnalyzeCycles_TraitSlot(t *testing.T) {
	s := tu.NewSchema().
		Trait("named", tu.Method{Name: "name", Type: ir.TypeString}).
		Template("tagged",
			tu.Field("label", ir.TypeString),
			tu.TraitSlot("tags", ir.LowerBound(1), "named"),
			tu.TemplateImpl("named", "name", tu.FieldStep("label"))).
		Template("plain", tu.Field("label", ir.TypeString)).
		Operative("tagged", "tagged").
		Operative("plain", "plain").
		Build()

	warnings := AnalyzeCycles(s)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"tagged", "tagged"}, warnings[0].Path)
}

func TestReconstructCyclePath(t *testing.T) {
	graph := requirementGraph{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
	}
	assert.Equal(t, []string{"a", "b", "c", "a"}, reconstructCyclePath([]string{"a", "b", "c"}, graph))
	assert.Equal(t, []string{}, reconstructCyclePath(nil, graph))
}
