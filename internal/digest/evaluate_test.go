package digest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
	tu "github.com/reedwoodruff/molecule-schema-sub000/internal/testutil"
)

type mapReader map[ir.UID]*ir.InstanceRecord

func (m mapReader) Get(id ir.UID) (*ir.InstanceRecord, bool) {
	rec, ok := m[id]
	return rec, ok
}

func (m mapReader) add(s *ir.Schema, id uint64, operative string, fields map[ir.UID]ir.Value) *ir.InstanceRecord {
	opID := tu.OperativeID(operative)
	rec := ir.NewInstanceRecord(ir.UIDFromUint64(0, id), opID, s.Operatives[opID].TemplateID)
	for k, v := range fields {
		rec.Fields[k] = v
	}
	m[rec.ID] = rec
	return rec
}

func TestEvaluate(t *testing.T) {
	s := hardwareSchema()
	r := mapReader{}
	named, name := tu.TraitID("named"), tu.MethodID("named", "name")

	bolt := r.add(s, 1, "bolt", map[ir.UID]ir.Value{labelID: ir.String("hex"), codeID: ir.String("B")})
	nut := r.add(s, 2, "nylon-nut", map[ir.UID]ir.Value{labelID: ir.String("lock"), codeID: ir.String("N")})
	holder := r.add(s, 3, "bolt-holder", nil)
	holder.Outgoing[mainID] = []ir.UID{bolt.ID}

	v, err := Evaluate(r, s, bolt.ID, named, name)
	require.NoError(t, err)
	assert.Equal(t, ir.String("hex"), v)

	v, err = Evaluate(r, s, nut.ID, named, name)
	require.NoError(t, err)
	assert.Equal(t, ir.String("N"), v, "operative override reads code")

	v, err = Evaluate(r, s, holder.ID, named, name)
	require.NoError(t, err)
	assert.Equal(t, ir.String("hex"), v, "trait step through the live constituent")

	v, err = Evaluate(r, s, holder.ID, tu.TraitID("sourced"), tu.MethodID("sourced", "source"))
	require.NoError(t, err)
	assert.Equal(t, ir.String("M6"), v, "instance step through the bound library instance")
}

func TestEvaluateLibrary(t *testing.T) {
	s := hardwareSchema()

	v, err := EvaluateLibrary(mapReader{}, s, tu.LibraryInstanceID("m6"), tu.TraitID("named"), tu.MethodID("named", "name"))
	require.NoError(t, err)
	assert.Equal(t, ir.String("M6"), v)

	_, err = EvaluateLibrary(mapReader{}, s, tu.LibraryInstanceID("nope"), tu.TraitID("named"), tu.MethodID("named", "name"))
	assert.Error(t, err)
}

func TestEvaluate_Errors(t *testing.T) {
	s := hardwareSchema()
	r := mapReader{}
	bolt := r.add(s, 1, "bolt", map[ir.UID]ir.Value{labelID: ir.String("hex")})
	empty := r.add(s, 2, "holder", nil)

	tests := []struct {
		name     string
		id       ir.UID
		trait    ir.UID
		method   ir.UID
		contains string
	}{
		{"missing instance", ir.UIDFromUint64(0, 99), tu.TraitID("named"), tu.MethodID("named", "name"), "does not exist"},
		{"unknown trait", bolt.ID, tu.TraitID("ghost"), tu.MethodID("ghost", "x"), "not found"},
		{"unknown method", bolt.ID, tu.TraitID("named"), tu.MethodID("named", "x"), "has no method"},
		{"not implemented", bolt.ID, tu.TraitID("sourced"), tu.MethodID("sourced", "source"), "does not implement"},
		{"wrong return type", bolt.ID, tu.TraitID("counted"), tu.MethodID("counted", "count"), "want Int"},
		{"empty constituent", empty.ID, tu.TraitID("named"), tu.MethodID("named", "name"), "holds 0 elements"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(r, s, tt.id, tt.trait, tt.method)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}
