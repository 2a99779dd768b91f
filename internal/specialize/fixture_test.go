package specialize

import (
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

var (
	partsSlot = tu.SlotID("assembly", "parts")
	tagsSlot  = tu.SlotID("assembly", "tags")
	labelID   = tu.FieldID("part", "label")
)

// fakeGraph is an in-memory Graph over a fixed schema.
type fakeGraph struct {
	schema *ir.Schema
	recs   map[ir.UID]*ir.InstanceRecord
	ids    *ir.SequentialUIDs
}

func newFakeGraph(s *ir.Schema) *fakeGraph {
	return &fakeGraph{schema: s, recs: make(map[ir.UID]*ir.InstanceRecord), ids: ir.NewSequentialUIDs(0xfa)}
}

func (g *fakeGraph) Schema() *ir.Schema { return g.schema }

func (g *fakeGraph) Get(id ir.UID) (*ir.InstanceRecord, bool) {
	rec, ok := g.recs[id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

func (g *fakeGraph) IDs() []ir.UID { return ir.SortedKeys(g.recs) }

func (g *fakeGraph) add(operative string, fields map[ir.UID]ir.Value) ir.UID {
	opID := tu.OperativeID(operative)
	rec := ir.NewInstanceRecord(g.ids.Next(), opID, g.schema.Operatives[opID].TemplateID)
	for k, v := range fields {
		rec.Fields[k] = v
	}
	g.recs[rec.ID] = rec
	return rec.ID
}

func (g *fakeGraph) link(host, slot ir.UID, targets ...ir.UID) {
	h := g.recs[host]
	h.Outgoing[slot] = ir.SortUIDs(append(h.Outgoing[slot], targets...))
	for _, t := range targets {
		g.recs[t].Incoming = ir.SortEdges(append(g.recs[t].Incoming, ir.EdgeRef{Host: host, Target: t, Slot: slot}))
	}
}
