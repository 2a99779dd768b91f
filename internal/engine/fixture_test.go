package engine

import (
	"io"
	"log/slog"
	"testing"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
	tu "github.com/reedwoodruff/molecule-schema-sub000/internal/testutil"
)

// fixtureSchema: folders hold up to three docs; memos are docs whose title
// is locked.
func fixtureSchema() *ir.Schema {
	return tu.NewSchema().
		Template("doc", tu.Field("title", ir.TypeString)).
		Template("folder",
			tu.Field("name", ir.TypeString),
			tu.Slot("docs", ir.UpperBound(3), "doc")).
		Operative("doc", "doc").
		Operative("memo", "doc", tu.Parent("doc"), tu.Lock("title", ir.String("memo"))).
		Operative("folder", "folder").
		Build()
}

var (
	titleID = tu.FieldID("doc", "title")
	nameID  = tu.FieldID("folder", "name")
	docsID  = tu.SlotID("folder", "docs")
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	base := []Option{WithLogger(quietLogger()), WithIDGenerator(tu.NewDeterministicUIDs(1))}
	return New(fixtureSchema(), append(base, opts...)...)
}

func newRecord(e *Engine, operative string, fields map[ir.UID]ir.Value) *ir.InstanceRecord {
	opID := tu.OperativeID(operative)
	rec := ir.NewInstanceRecord(e.NewUID(), opID, e.Schema().Operatives[opID].TemplateID)
	for k, v := range fields {
		rec.Fields[k] = v
	}
	return rec
}

func doc(e *Engine, title string) *ir.InstanceRecord {
	return newRecord(e, "doc", map[ir.UID]ir.Value{titleID: ir.String(title)})
}

func folder(e *Engine, name string) *ir.InstanceRecord {
	return newRecord(e, "folder", map[ir.UID]ir.Value{nameID: ir.String(name)})
}

// link stages both halves of host.docs -> targets.
func link(bp *ir.Blueprint, host ir.UID, targets ...ir.UID) {
	for _, t := range targets {
		edge := ir.EdgeRef{Host: host, Target: t, Slot: docsID}
		bp.AddOutgoing = append(bp.AddOutgoing, edge)
		bp.AddIncoming = append(bp.AddIncoming, edge)
	}
}

// createFolder returns a blueprint adding a folder holding new docs.
func createFolder(e *Engine, name string, titles ...string) (*ir.Blueprint, *ir.InstanceRecord, []*ir.InstanceRecord) {
	f := folder(e, name)
	bp := &ir.Blueprint{Added: []*ir.InstanceRecord{f}}
	var docs []*ir.InstanceRecord
	for _, title := range titles {
		d := doc(e, title)
		docs = append(docs, d)
		bp.Added = append(bp.Added, d)
		link(bp, f.ID, d.ID)
	}
	return bp, f, docs
}

// snapshot captures every live record for equality checks.
func snapshot(e *Engine) map[ir.UID]*ir.InstanceRecord {
	out := make(map[ir.UID]*ir.InstanceRecord, e.Len())
	for _, id := range e.IDs() {
		rec, _ := e.Get(id)
		out[id] = rec
	}
	return out
}

func sameGraph(t *testing.T, want, got map[ir.UID]*ir.InstanceRecord) bool {
	t.Helper()
	if len(want) != len(got) {
		t.Errorf("graph has %d instances, want %d", len(got), len(want))
		return false
	}
	for id, rec := range want {
		if !rec.Equal(got[id]) {
			t.Errorf("instance %s differs", id)
			return false
		}
	}
	return true
}
