package specialize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/digest"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
	tu "github.com/reedwoodruff/molecule-schema-sub000/internal/testutil"
)

func TestEffective_TemplateDefault(t *testing.T) {
	s := fixtureSchema()

	c, err := Effective(s, tu.OperativeID("assembly"), partsSlot)
	require.NoError(t, err)
	assert.Equal(t, ir.UpperBound(4), c.Bound)
	assert.True(t, c.BoundOwner.IsZero())
	assert.Nil(t, c.Spec)
	assert.Empty(t, c.Types)
	assert.False(t, c.Owned(tu.OperativeID("assembly")))
}

func TestEffective_ChildestBoundAndAllTypes(t *testing.T) {
	s := fixtureSchema()

	c, err := Effective(s, tu.OperativeID("bolt-kit"), partsSlot)
	require.NoError(t, err)
	assert.Equal(t, ir.Range(1, 3), c.Bound)
	assert.Equal(t, tu.OperativeID("kit"), c.BoundOwner)
	require.Len(t, c.Types, 1)
	assert.Equal(t, ir.TypeSingle, c.Types[0].Kind)
	assert.True(t, c.Owned(tu.OperativeID("bolt-kit")))
	assert.Equal(t, tu.SpecID("bolt-kit", "parts"), c.Spec.Tag.ID)

	c, err = Effective(s, tu.OperativeID("bigger-kit"), partsSlot)
	require.NoError(t, err)
	assert.Equal(t, ir.Range(2, 3), c.Bound)
	assert.Equal(t, tu.OperativeID("bigger-kit"), c.BoundOwner)
}

func TestUpstream_IgnoresOwnSpecialization(t *testing.T) {
	s := fixtureSchema()

	c, err := Upstream(s, tu.OperativeID("bolt-kit"), partsSlot)
	require.NoError(t, err)
	assert.Equal(t, ir.Range(1, 3), c.Bound)
	assert.Empty(t, c.Types)
	assert.Equal(t, tu.OperativeID("kit"), c.SpecOwner)

	c, err = Upstream(s, tu.OperativeID("kit"), partsSlot)
	require.NoError(t, err)
	assert.Equal(t, ir.UpperBound(4), c.Bound)
	assert.Nil(t, c.Spec)
}

func TestEffective_SlotNotFound(t *testing.T) {
	s := fixtureSchema()

	_, err := Effective(s, tu.OperativeID("kit"), tu.SlotID("part", "label"))
	require.Error(t, err)
	assert.True(t, ir.HasCode(err, ir.CodeSlotNotFound))

	_, err = Effective(s, tu.OperativeID("missing"), partsSlot)
	assert.True(t, ir.HasCode(err, ir.CodeOperativeNotFound))
}

func TestConstraintAdmits(t *testing.T) {
	s := fixtureSchema()
	r := digest.NewResolver()

	tests := []struct {
		name     string
		host     string
		slot     ir.UID
		operand  string
		expected bool
	}{
		{"descriptor admits descendant", "assembly", partsSlot, "bolt", true},
		{"descriptor admits itself", "assembly", partsSlot, "part", true},
		{"descriptor rejects unrelated", "assembly", partsSlot, "kit", false},
		{"single admits named", "bolt-kit", partsSlot, "bolt", true},
		{"single rejects sibling", "bolt-kit", partsSlot, "nut", false},
		{"single rejects parent", "bolt-kit", partsSlot, "part", false},
		{"trait slot admits implementor", "kit", tagsSlot, "nut", true},
		{"trait slot rejects non implementor", "kit", tagsSlot, "assembly", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Effective(s, tu.OperativeID(tt.host), tt.slot)
			require.NoError(t, err)

			got, err := c.Admits(s, r, tu.OperativeID(tt.operand))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)

			uncachedGot, err := c.Admits(s, nil, tu.OperativeID(tt.operand))
			require.NoError(t, err)
			assert.Equal(t, got, uncachedGot)
		})
	}
}

func TestConstraintDescribe(t *testing.T) {
	s := fixtureSchema()

	c, err := Effective(s, tu.OperativeID("bolt-kit"), partsSlot)
	require.NoError(t, err)
	desc := c.Describe()
	assert.Contains(t, desc, " & ")
	assert.Contains(t, desc, tu.OperativeID("bolt").String())
}

func TestSlots(t *testing.T) {
	s := fixtureSchema()

	slots, err := Slots(s, tu.OperativeID("kit"))
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, ir.Range(1, 3), slots[partsSlot].Bound)
	assert.Equal(t, ir.LowerBoundOrZero(1), slots[tagsSlot].Bound)

	_, err = Slots(s, tu.OperativeID("missing"))
	assert.True(t, ir.HasCode(err, ir.CodeOperativeNotFound))
}
