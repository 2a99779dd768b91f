package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotBoundAllows(t *testing.T) {
	tests := []struct {
		bound   SlotBound
		allowed []int
		denied  []int
	}{
		{Single(), []int{1}, []int{0, 2}},
		{LowerBound(2), []int{2, 3, 100}, []int{0, 1}},
		{UpperBound(2), []int{0, 1, 2}, []int{3}},
		{Range(1, 3), []int{1, 2, 3}, []int{0, 4}},
		{LowerBoundOrZero(2), []int{0, 2, 9}, []int{1}},
		{RangeOrZero(2, 3), []int{0, 2, 3}, []int{1, 4}},
		{Zero(), []int{0}, []int{1}},
	}
	for _, tt := range tests {
		t.Run(tt.bound.String(), func(t *testing.T) {
			for _, n := range tt.allowed {
				assert.True(t, tt.bound.Allows(n), "%s should allow %d", tt.bound, n)
			}
			for _, n := range tt.denied {
				assert.False(t, tt.bound.Allows(n), "%s should deny %d", tt.bound, n)
			}
		})
	}
}

func TestSlotBoundMinMax(t *testing.T) {
	assert.Equal(t, 1, Single().Max())
	assert.Equal(t, math.MaxInt, LowerBound(1).Max())
	assert.Equal(t, 3, RangeOrZero(1, 3).Max())
	assert.Equal(t, 0, RangeOrZero(1, 3).Min())
	assert.Equal(t, 2, Range(2, 4).Min())
}

func TestParseSlotBound(t *testing.T) {
	for _, b := range []SlotBound{Single(), Zero(), LowerBound(1), UpperBound(4), Range(1, 3), LowerBoundOrZero(2), RangeOrZero(2, 5)} {
		parsed, err := ParseSlotBound(b.String())
		require.NoError(t, err, b.String())
		assert.Equal(t, b, parsed)
	}

	parsed, err := ParseSlotBound(" Range( 1, 3 ) ")
	require.NoError(t, err)
	assert.Equal(t, Range(1, 3), parsed)

	for _, bad := range []string{"", "Many", "Range(3,1)", "Single(1)", "LowerBound", "Range(1,x)", "UpperBound(2"} {
		_, err := ParseSlotBound(bad)
		assert.Error(t, err, bad)
	}
}

func TestSlotBoundValid(t *testing.T) {
	assert.True(t, Range(2, 2).Valid())
	assert.False(t, Range(3, 2).Valid())
	assert.False(t, LowerBound(-1).Valid())
	assert.False(t, SlotBound{}.Valid())
}

func TestTraitOperativeDescriptorSortsTraits(t *testing.T) {
	a, b := UIDFromUint64(0, 2), UIDFromUint64(0, 1)
	d := TraitOperativeDescriptor(a, b)
	assert.Equal(t, []UID{b, a}, d.TraitIDs)
	assert.Equal(t, DescriptorTraitOperative, d.Kind)
}

func TestOperativeClone(t *testing.T) {
	bound := LowerBound(1)
	op := &LibraryOperative{
		Tag:          Tag{Name: "op", ID: UIDFromUint64(0, 1)},
		LockedFields: []FieldValue{{FieldID: UIDFromUint64(0, 2), Value: Int(1)}},
		SlotSpecializations: []SlotSpecialization{{
			SlotID: UIDFromUint64(0, 3),
			Bound:  &bound,
			Type:   &TypeSpecialization{Kind: TypeMulti, OperativeIDs: []UID{UIDFromUint64(0, 4)}},
		}},
	}

	c := op.Clone()
	c.LockedFields[0].Value = Int(2)
	c.SlotSpecializations[0].Bound.Lo = 5
	c.SlotSpecializations[0].Type.OperativeIDs[0] = NilUID

	v, ok := op.LockedValue(UIDFromUint64(0, 2))
	require.True(t, ok)
	assert.True(t, Equal(Int(1), v))
	spec, ok := op.Specialization(UIDFromUint64(0, 3))
	require.True(t, ok)
	assert.Equal(t, 1, spec.Bound.Lo)
	assert.Equal(t, UIDFromUint64(0, 4), spec.Type.OperativeIDs[0])
}

func TestSchemaLookups(t *testing.T) {
	s := hashFixture()

	op, ok := s.OperativeByName("Employee")
	require.True(t, ok)
	tmpl, ok := s.TemplateOf(op.Tag.ID)
	require.True(t, ok)
	assert.Equal(t, "Person", tmpl.Tag.Name)

	fc, ok := tmpl.FieldByName("name")
	require.True(t, ok)
	assert.Equal(t, TypeString, fc.ValueType)

	_, ok = s.OperativeByName("Nobody")
	assert.False(t, ok)
	_, ok = tmpl.SlotByName("friends")
	assert.False(t, ok)
}

func TestSchemaCloneIsolation(t *testing.T) {
	s := hashFixture()
	c := s.Clone()
	c.Operatives[UIDFromUint64(1, 3)].Tag.Name = "Renamed"

	assert.Equal(t, "Employee", s.Operatives[UIDFromUint64(1, 3)].Tag.Name)
	assert.Same(t, s.Templates[UIDFromUint64(1, 2)], c.Templates[UIDFromUint64(1, 2)], "templates are shared")
}
