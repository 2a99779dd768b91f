package builder

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/engine"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
	tu "github.com/reedwoodruff/molecule-schema-sub000/internal/testutil"
)

// fixtureSchema:
//
//	holder.main   Single of oa
//	bag.items     LowerBound(1) of anything implementing named (ob does, oc does not)
//	pair.next     UpperBound(1) of pair
//	box.things    Range(1,3) of oa; small-box narrows it to Range(1,1)
//	gauge.f       Int; five locks f=5
func fixtureSchema() *ir.Schema {
	return tu.NewSchema().
		Trait("named", tu.Method{Name: "name", Type: ir.TypeString}).
		Template("leaf", tu.Field("label", ir.TypeString)).
		Template("holder",
			tu.Field("title", ir.TypeString),
			tu.Slot("main", ir.Single(), "oa")).
		Template("bag", tu.TraitSlot("items", ir.LowerBound(1), "named")).
		Template("pair", tu.Slot("next", ir.UpperBound(1), "pair")).
		Template("box", tu.Slot("things", ir.Range(1, 3), "oa")).
		Template("gauge", tu.Field("f", ir.TypeInt)).
		Operative("oa", "leaf").
		Operative("ob", "leaf", tu.Impl("named", "name", tu.FieldStep("label"))).
		Operative("oc", "leaf").
		Operative("holder", "holder").
		Operative("bag", "bag").
		Operative("pair", "pair").
		Operative("box", "box").
		Operative("small-box", "box", tu.Parent("box"), tu.Narrow("things", ir.Range(1, 1))).
		Operative("gauge", "gauge").
		Operative("five", "gauge", tu.Parent("gauge"), tu.Lock("f", ir.Int(5))).
		Build()
}

var (
	labelID  = tu.FieldID("leaf", "label")
	titleID  = tu.FieldID("holder", "title")
	fID      = tu.FieldID("gauge", "f")
	mainSlot = tu.SlotID("holder", "main")
	itemSlot = tu.SlotID("bag", "items")
	nextSlot = tu.SlotID("pair", "next")
	thingsID = tu.SlotID("box", "things")
)

func op(name string) ir.UID { return tu.OperativeID(name) }

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	return engine.New(fixtureSchema(),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithIDGenerator(tu.NewDeterministicUIDs(1)),
	)
}

// leaf returns a builder callback labelling a new leaf.
func leaf(label string) func(*Builder) {
	return func(b *Builder) { b.SetField(labelID, ir.String(label)) }
}

// newBox commits a box holding new oa leaves and returns the box id and
// the leaf ids.
func newBox(t *testing.T, e *engine.Engine, labels ...string) (ir.UID, []ir.UID) {
	t.Helper()
	b := New(e, op("box"))
	var children []ir.UID
	for _, l := range labels {
		child := New(e, op("oa"))
		leaf(l)(child)
		b.AddOutgoing(thingsID, child.Ref(), child)
		children = append(children, child.ID())
	}
	_, err := b.Execute()
	require.NoError(t, err)
	return b.ID(), children
}

func snapshot(e *engine.Engine) []ir.StandaloneInstance {
	return e.Standalone()
}

func requireErrors(t *testing.T, err error, codes ...ir.ErrorCode) []*ir.Error {
	t.Helper()
	require.Error(t, err)
	var agg *ir.AggregateError
	require.ErrorAs(t, err, &agg)
	require.Equal(t, codes, ir.Codes(err))
	return agg.Errors
}
