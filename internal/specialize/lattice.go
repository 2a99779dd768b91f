package specialize

import (
	"math"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
)

// span is the set of counts a bound admits: an optional 0 plus the closed
// interval [lo, hi]. hi is math.MaxInt for unbounded kinds; lo > hi marks
// an empty interval.
type span struct {
	zero   bool
	lo, hi int
}

func spanOf(b ir.SlotBound) span {
	switch b.Kind {
	case ir.BoundSingle:
		return span{lo: 1, hi: 1}
	case ir.BoundLowerBound:
		return span{lo: b.Lo, hi: math.MaxInt}
	case ir.BoundUpperBound:
		return span{lo: 0, hi: b.Hi}
	case ir.BoundRange:
		return span{lo: b.Lo, hi: b.Hi}
	case ir.BoundLowerBoundOrZero:
		return span{zero: true, lo: b.Lo, hi: math.MaxInt}
	case ir.BoundRangeOrZero:
		return span{zero: true, lo: b.Lo, hi: b.Hi}
	default:
		return span{zero: true, lo: 1, hi: 0}
	}
}

func (s span) admitsZero() bool {
	return s.zero || (s.lo <= 0 && s.hi >= 0)
}

// Narrows reports whether child is a legal cardinality specialization of
// parent: every count child admits, parent admits too. Single cannot be
// specialized further, and Zero is reachable only from bounds admitting 0.
//
// Bounds that admit 0 (RangeOrZero, Zero) therefore do not narrow
// LowerBound(n) for n > 0, even though they are listed among its targets.
func Narrows(parent, child ir.SlotBound) bool {
	if !parent.Valid() || !child.Valid() {
		return false
	}
	if parent.Kind == ir.BoundSingle {
		return child.Kind == ir.BoundSingle
	}
	p, c := spanOf(parent), spanOf(child)
	if c.admitsZero() && !p.admitsZero() {
		return false
	}
	// 0 is settled above; the rest of the child interval must sit inside
	// the parent interval.
	lo := max(c.lo, 1)
	if lo > c.hi {
		return true
	}
	return p.lo <= lo && c.hi <= p.hi
}

// Tighter reports whether child admits strictly fewer counts than parent.
func Tighter(parent, child ir.SlotBound) bool {
	return Narrows(parent, child) && !Narrows(child, parent)
}
