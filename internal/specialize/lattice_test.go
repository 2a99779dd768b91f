package specialize

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
)

func TestNarrows(t *testing.T) {
	tests := []struct {
		parent, child ir.SlotBound
		want          bool
	}{
		{ir.Single(), ir.Single(), true},
		{ir.Single(), ir.Range(1, 1), false},
		{ir.LowerBound(1), ir.Single(), true},
		{ir.LowerBound(1), ir.LowerBound(3), true},
		{ir.LowerBound(2), ir.LowerBound(1), false},
		{ir.LowerBound(1), ir.Zero(), false},
		{ir.LowerBound(1), ir.RangeOrZero(1, 3), false},
		{ir.UpperBound(4), ir.Range(1, 3), true},
		{ir.UpperBound(4), ir.Zero(), true},
		{ir.UpperBound(3), ir.LowerBound(1), false},
		{ir.Range(1, 3), ir.Range(1, 3), true},
		{ir.Range(1, 3), ir.Range(2, 4), false},
		{ir.LowerBoundOrZero(2), ir.RangeOrZero(2, 4), true},
		{ir.LowerBoundOrZero(2), ir.Zero(), true},
		{ir.LowerBoundOrZero(2), ir.LowerBound(1), false},
		{ir.RangeOrZero(1, 5), ir.UpperBound(5), true},
		{ir.Zero(), ir.UpperBound(0), true},
		{ir.Zero(), ir.Single(), false},
		{ir.Range(3, 1), ir.Single(), false},
		{ir.Range(5, math.MaxInt), ir.Zero(), false},
		{ir.Range(5, math.MaxInt), ir.LowerBound(5), true},
		{ir.LowerBound(5), ir.Range(5, math.MaxInt), true},
		{ir.LowerBound(5), ir.Range(4, math.MaxInt), false},
		{ir.UpperBound(math.MaxInt), ir.LowerBoundOrZero(3), true},
		{ir.Range(1, 2_000_000_000), ir.Range(1, 1_999_999_999), true},
		{ir.Range(1, 1_999_999_999), ir.Range(1, 2_000_000_000), false},
		{ir.RangeOrZero(1, 2_000_000_000), ir.UpperBound(2_000_000_000), true},
	}
	for _, tt := range tests {
		t.Run(tt.parent.String()+"->"+tt.child.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Narrows(tt.parent, tt.child))
		})
	}
}

func TestNarrows_LargeBoundsAreConstantTime(t *testing.T) {
	parent, child := ir.Range(1, math.MaxInt), ir.Range(2, math.MaxInt-1)
	done := make(chan bool, 1)
	go func() { done <- Narrows(parent, child) }()
	select {
	case got := <-done:
		assert.True(t, got)
	case <-time.After(time.Second):
		t.Fatal("Narrows did not return within a second")
	}
}

func TestTighter(t *testing.T) {
	assert.True(t, Tighter(ir.UpperBound(4), ir.Range(1, 3)))
	assert.False(t, Tighter(ir.Range(1, 3), ir.Range(1, 3)))
	assert.False(t, Tighter(ir.Single(), ir.Single()))
}
