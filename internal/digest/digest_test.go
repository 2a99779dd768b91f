package digest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
	tu "github.com/reedwoodruff/molecule-schema-sub000/internal/testutil"
)

// hardwareSchema:
//
//	part <- bolt (code=B), nut (code=N, name via code) <- nylon-nut (code=N again)
//	holder (main: Single part, bound to m6) <- bolt-holder
func hardwareSchema() *ir.Schema {
	return tu.NewSchema().
		Trait("named", tu.Method{Name: "name", Type: ir.TypeString}).
		Trait("sourced", tu.Method{Name: "source", Type: ir.TypeString}).
		Trait("counted", tu.Method{Name: "count", Type: ir.TypeInt}).
		Template("part",
			tu.Field("label", ir.TypeString),
			tu.Field("code", ir.TypeString),
			tu.TemplateImpl("named", "name", tu.FieldStep("label")),
			tu.TemplateImpl("counted", "count", tu.FieldStep("label"))).
		Template("holder",
			tu.Field("title", ir.TypeString),
			tu.Slot("main", ir.Single(), "part"),
			tu.TemplateImpl("named", "name", tu.TraitStep("main", "named", "name")),
			tu.TemplateImpl("sourced", "source", tu.InstanceStep("main"), tu.In("part", tu.FieldStep("label")))).
		Operative("part", "part").
		Operative("bolt", "part", tu.Parent("part"), tu.Lock("code", ir.String("B"))).
		Operative("nut", "part", tu.Parent("part"),
			tu.Lock("code", ir.String("N")),
			tu.Impl("named", "name", tu.FieldStep("code"))).
		Operative("nylon-nut", "part", tu.Parent("nut"), tu.Lock("code", ir.String("N"))).
		Operative("holder", "holder", tu.BindLibrary("main", "m6")).
		Operative("bolt-holder", "holder", tu.Parent("holder")).
		LibraryInstance("m6", "bolt", map[string]ir.Value{"label": ir.String("M6")}).
		Build()
}

var (
	labelID = tu.FieldID("part", "label")
	codeID  = tu.FieldID("part", "code")
	mainID  = tu.SlotID("holder", "main")
)

func TestAncestry(t *testing.T) {
	s := hardwareSchema()

	chain, err := Ancestry(s, tu.OperativeID("nylon-nut"))
	require.NoError(t, err)
	assert.Equal(t, []ir.UID{tu.OperativeID("nylon-nut"), tu.OperativeID("nut"), tu.OperativeID("part")}, chain)

	_, err = Ancestry(s, tu.OperativeID("missing"))
	assert.True(t, ir.HasCode(err, ir.CodeOperativeNotFound))

	s.Operatives[tu.OperativeID("part")].ParentID = tu.OperativeID("nylon-nut")
	_, err = Ancestry(s, tu.OperativeID("nut"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parent cycle")
}

func TestDescendants(t *testing.T) {
	s := hardwareSchema()

	assert.ElementsMatch(t,
		[]ir.UID{tu.OperativeID("bolt"), tu.OperativeID("nut"), tu.OperativeID("nylon-nut")},
		Descendants(s, tu.OperativeID("part")))
	assert.Equal(t, []ir.UID{tu.OperativeID("nylon-nut")}, Descendants(s, tu.OperativeID("nut")))
	assert.Empty(t, Descendants(s, tu.OperativeID("bolt-holder")))
}

func TestLockedFields_RootmostWins(t *testing.T) {
	s := hardwareSchema()

	locked, err := LockedFields(s, tu.OperativeID("nylon-nut"))
	require.NoError(t, err)
	require.Contains(t, locked, codeID)
	assert.Equal(t, ir.String("N"), locked[codeID].Value)
	assert.Equal(t, tu.OperativeID("nut"), locked[codeID].FulfilledBy)
	assert.NotContains(t, locked, labelID)

	locked, err = LockedFields(s, tu.OperativeID("part"))
	require.NoError(t, err)
	assert.Empty(t, locked)
}

func TestTraitImpls_NearestWins(t *testing.T) {
	s := hardwareSchema()
	named, name := tu.TraitID("named"), tu.MethodID("named", "name")

	impls, err := TraitImpls(s, tu.OperativeID("bolt"))
	require.NoError(t, err)
	assert.Equal(t, ir.ImplPath{{Kind: ir.StepField, ID: labelID}}, impls[named][name], "template impl")

	impls, err = TraitImpls(s, tu.OperativeID("nylon-nut"))
	require.NoError(t, err)
	assert.Equal(t, ir.ImplPath{{Kind: ir.StepField, ID: codeID}}, impls[named][name], "inherited override")
	assert.Contains(t, impls, tu.TraitID("counted"))

	byInstance, err := TraitImplsOf(s, tu.LibraryInstanceID("m6"))
	require.NoError(t, err)
	assert.Contains(t, byInstance, named)

	byTemplate, err := TraitImplsOf(s, tu.TemplateID("holder"))
	require.NoError(t, err)
	assert.Contains(t, byTemplate, tu.TraitID("sourced"))
	assert.NotContains(t, byTemplate, tu.TraitID("counted"))
}

func TestOperativeDigest(t *testing.T) {
	s := hardwareSchema()

	d, err := Operative(s, tu.OperativeID("bolt-holder"))
	require.NoError(t, err)
	assert.Equal(t, tu.TemplateID("holder"), d.TemplateID)
	assert.True(t, d.DescendsFrom(tu.OperativeID("holder")))
	assert.True(t, d.DescendsFrom(tu.OperativeID("bolt-holder")))
	assert.False(t, d.DescendsFrom(tu.OperativeID("part")))
	assert.Equal(t, []ir.UID{tu.LibraryInstanceID("m6")}, d.Slots[mainID].RelatedInstances)
	assert.True(t, d.Implements(tu.TraitID("named"), tu.TraitID("sourced")))
	assert.False(t, d.Implements(tu.TraitID("counted")))
	assert.ElementsMatch(t, []ir.UID{tu.TraitID("named"), tu.TraitID("sourced")}, d.Traits())
}

func TestSatisfies(t *testing.T) {
	s := hardwareSchema()

	tests := []struct {
		name string
		op   string
		desc ir.OperativeDescriptor
		want bool
	}{
		{"self", "part", ir.LibraryOperativeDescriptor(tu.OperativeID("part")), true},
		{"descendant", "nylon-nut", ir.LibraryOperativeDescriptor(tu.OperativeID("part")), true},
		{"ancestor", "part", ir.LibraryOperativeDescriptor(tu.OperativeID("nut")), false},
		{"trait", "bolt", ir.TraitOperativeDescriptor(tu.TraitID("named"), tu.TraitID("counted")), true},
		{"missing trait", "holder", ir.TraitOperativeDescriptor(tu.TraitID("counted")), false},
	}
	r := NewResolver()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Satisfies(s, tu.OperativeID(tt.op), tt.desc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			cached, err := r.Satisfies(s, tu.OperativeID(tt.op), tt.desc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cached)
		})
	}
}

func TestLibraryInstanceFields(t *testing.T) {
	s := hardwareSchema()

	fields, err := LibraryInstanceFields(s, tu.LibraryInstanceID("m6"))
	require.NoError(t, err)
	assert.Equal(t, map[ir.UID]ir.Value{labelID: ir.String("M6"), codeID: ir.String("B")}, fields)

	_, err = LibraryInstanceFields(s, tu.LibraryInstanceID("nope"))
	assert.Error(t, err)
}

func TestResolverCachesPerVersion(t *testing.T) {
	s := hardwareSchema()
	r := NewResolver()

	first, err := r.Operative(s, tu.OperativeID("nut"))
	require.NoError(t, err)
	second, err := r.Operative(s, tu.OperativeID("nut"))
	require.NoError(t, err)
	assert.Same(t, first, second)
	hits, misses := r.Stats()
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)

	next := s.Clone()
	next.Operatives[tu.OperativeID("nut")].LockedFields = nil
	locked, err := r.LockedFields(next, tu.OperativeID("nut"))
	require.NoError(t, err)
	assert.Empty(t, locked)
	_, misses = r.Stats()
	assert.Equal(t, 2, misses)

	impls, err := r.TraitImpls(next, tu.OperativeID("nut"))
	require.NoError(t, err)
	assert.Contains(t, impls, tu.TraitID("named"))
}
