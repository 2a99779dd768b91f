package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/compiler"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/store"
)

const shelfSchema = "testdata/shelf.cue"

// parse parses an inline scenario against the shared test schema.
func parse(t *testing.T, content string) *Scenario {
	t.Helper()
	scenario, err := ParseScenario([]byte(content))
	require.NoError(t, err)
	scenario.Schema = shelfSchema
	return scenario
}

func TestRun_Testdata(t *testing.T) {
	files, err := DiscoverScenarios([]string{"testdata"}, "")
	require.NoError(t, err)
	require.Len(t, files, 3)

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_SchemaLoadFailure(t *testing.T) {
	scenario := parse(t, minimalScenario)
	scenario.Schema = "testdata/missing.cue"

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load schema")
}

func TestRun_BindsNames(t *testing.T) {
	scenario := parse(t, `
name: names
description: names bind to built instances, nested ones included
schema: x
steps:
  - build:
      operative: shelf
      as: s
      fields: {label: top}
      add:
        notes:
          - new: {operative: note, as: n, fields: {body: a}}
          - new: {operative: note, fields: {body: b}}
assertions: [{type: verify}]
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, result.Errors)

	require.Contains(t, result.Names, "s")
	require.Contains(t, result.Names, "n")
	assert.Len(t, result.Names, 2)
	assert.Equal(t, 3, result.Graph.Len())

	rec, ok := result.Graph.Get(result.Names["s"])
	require.True(t, ok)
	assert.Len(t, rec.OutgoingEdges(), 2)
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/shelf_history.scenario.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	assert.Equal(t, first.Names, second.Names)
	assert.Equal(t, first.Trace, second.Trace)
	assert.Equal(t, first.Graph.IDs(), second.Graph.IDs())
}

func TestRun_FreshGraphPerRun(t *testing.T) {
	scenario := parse(t, `
name: fresh
description: every run starts from an empty graph
schema: x
steps:
  - build: {operative: note, as: n, fields: {body: a}}
assertions:
  - type: instance_count
    operative: note
    count: 1
`)

	for range 2 {
		result, err := Run(scenario)
		require.NoError(t, err)
		assert.True(t, result.Pass, result.Errors)
	}
}

func TestRun_UnexpectedRejection(t *testing.T) {
	scenario := parse(t, `
name: overfull
description: a fourth note overflows the shelf
schema: x
steps:
  - build:
      operative: shelf
      fields: {label: top}
      add:
        notes:
          - new: {operative: note, fields: {body: a}}
          - new: {operative: note, fields: {body: b}}
          - new: {operative: note, fields: {body: c}}
          - new: {operative: note, fields: {body: d}}
assertions: [{type: verify}]
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "step 1 (build)")
	assert.Contains(t, result.Errors[0], string(ir.CodeCardinalityOutOfRange))

	require.Len(t, result.Trace, 1)
	assert.Equal(t, KindRejected, result.Trace[0].Kind)
	assert.Contains(t, result.Trace[0].Codes, string(ir.CodeCardinalityOutOfRange))
	assert.Equal(t, 0, result.Graph.Len())
}

func TestRun_ExpectedRejectionSucceeded(t *testing.T) {
	scenario := parse(t, `
name: not_rejected
description: a valid build expected to fail
schema: x
steps:
  - build: {operative: note, fields: {body: a}}
    expect: {rejected: true}
assertions: [{type: verify}]
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected rejection, step succeeded")
}

func TestRun_MissingExpectedCode(t *testing.T) {
	scenario := parse(t, `
name: wrong_code
description: the rejection carries a different code
schema: x
steps:
  - build: {operative: note}
    expect:
      codes: [LOCKED_FIELD_VIOLATION]
assertions: [{type: verify}]
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected code LOCKED_FIELD_VIOLATION")
	assert.Contains(t, result.Errors[0], string(ir.CodeRequiredFieldEmpty))
}

func TestRun_UndoWithEmptyHistory(t *testing.T) {
	scenario := parse(t, `
name: empty_undo
description: undo with nothing to undo is a rejection without codes
schema: x
steps:
  - undo: true
    expect: {rejected: true}
  - redo: true
    expect: {rejected: true}
assertions:
  - type: trace_count
    kind: rejected
    count: 2
  - type: history
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	for _, ev := range result.Trace {
		assert.Empty(t, ev.Codes)
	}
}

func TestRun_ScenarioErrors(t *testing.T) {
	tests := []struct {
		name    string
		step    string
		wantErr string
	}{
		{
			name:    "unknown operative",
			step:    "build: {operative: drawer}",
			wantErr: `unknown operative "drawer"`,
		},
		{
			name:    "unknown field",
			step:    "build: {operative: note, fields: {title: x}}",
			wantErr: `template note has no field "title"`,
		},
		{
			name:    "unknown slot",
			step:    "build: {operative: shelf, add: {books: [{ref: x}]}}",
			wantErr: `template shelf has no slot "books"`,
		},
		{
			name:    "unknown instance",
			step:    "edit: {instance: ghost, fields: {body: x}}",
			wantErr: `unknown instance "ghost"`,
		},
		{
			name:    "wrong field type",
			step:    "build: {operative: lock, fields: {code: seven}}",
			wantErr: `field "code"`,
		},
		{
			name:    "duplicate name",
			step:    "build: {operative: shelf, as: a, fields: {label: x}, add: {notes: [{new: {operative: note, as: a, fields: {body: y}}}]}}",
			wantErr: `name "a" is declared twice`,
		},
		{
			name:    "unknown lock operative",
			step:    "lock: {operative: drawer, field: body, value: x}",
			wantErr: `unknown operative "drawer"`,
		},
		{
			name:    "unknown narrow slot",
			step:    "narrow: {operative: shelf, slot: books, bound: Single}",
			wantErr: `template shelf has no slot "books"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenario := parse(t, "name: x\ndescription: x\nschema: x\nsteps:\n  - "+tt.step+"\nassertions: [{type: verify}]\n")

			_, err := Run(scenario)
			require.Error(t, err)
			var se *ScenarioError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, 1, se.Step)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRun_NameAlreadyBound(t *testing.T) {
	scenario := parse(t, `
name: rebound
description: names bind once
schema: x
steps:
  - build: {operative: note, as: n, fields: {body: a}}
  - build: {operative: note, as: n, fields: {body: b}}
assertions: [{type: verify}]
`)

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `step 2: name "n" is already bound`)
}

func TestRun_EditRemoveAndDelete(t *testing.T) {
	scenario := parse(t, `
name: edit_remove
description: removing a note from a shelf and deleting it
schema: x
steps:
  - build:
      operative: shelf
      as: s
      fields: {label: top}
      add:
        notes:
          - new: {operative: note, as: a, fields: {body: a}}
          - new: {operative: note, as: b, fields: {body: b}}
  - edit:
      instance: s
      fields: {label: bottom}
      remove:
        notes: [a]
  - delete: {instance: a}
assertions:
  - type: targets
    instance: s
    slot: notes
    expect: [b]
  - type: field
    instance: s
    field: label
    equals: bottom
  - type: exists
    instance: a
    live: false
  - type: trace_order
    kinds: [commit, commit, commit]
  - type: replay
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	edit := result.Trace[1]
	assert.Equal(t, 1, edit.EdgesRemoved)
	assert.Equal(t, 1, edit.FieldUpdates)
	assert.Equal(t, 1, result.Trace[2].Deleted)
}

func TestRun_SpecializationTrace(t *testing.T) {
	scenario, err := LoadScenario("testdata/memo_specialize.scenario.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, result.Errors)

	var changes int
	for _, ev := range result.Trace {
		if ev.SchemaChange {
			changes++
		}
	}
	// narrow, lock, undo of the lock, redo of the lock
	assert.Equal(t, 4, changes)
	assert.NotEqual(t, mustLoad(t).Version(), result.Graph.Schema().Version())
}

func TestRunWithSchema(t *testing.T) {
	scenario := parse(t, minimalScenario)

	result, err := RunWithSchema(scenario, mustLoad(t))
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Len(t, result.Trace, 1)
	assert.Equal(t, int64(1), result.Trace[0].Seq)
}

func mustLoad(t *testing.T) *ir.Schema {
	t.Helper()
	s, err := compiler.LoadFile(shelfSchema)
	require.NoError(t, err)
	return s
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)

	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}

func TestResult_AddRejected(t *testing.T) {
	r := NewResult()
	r.AddRejected(3, []ir.ErrorCode{ir.CodeSlotNotFound, ir.CodeFieldNotFound})

	require.Len(t, r.Trace, 1)
	assert.Equal(t, TraceEvent{
		Step:  3,
		Kind:  KindRejected,
		Codes: []string{"SLOT_NOT_FOUND", "FIELD_NOT_FOUND"},
	}, r.Trace[0])
	assert.True(t, r.Pass, "a rejection alone does not fail the result")
}

func TestResult_NameOf(t *testing.T) {
	r := NewResult()
	id := ir.UIDFromUint64(1, 1)
	assert.Equal(t, id.String(), r.nameOf(id))

	r.Names["a"] = id
	assert.Equal(t, "a", r.nameOf(id))
}

func TestRunInStore_JournalsSession(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	scenario, err := LoadScenario("testdata/shelf_history.scenario.yaml")
	require.NoError(t, err)
	schema := mustLoad(t)

	result, err := RunInStore(ctx, st, scenario, schema)
	require.NoError(t, err)
	require.True(t, result.Pass, result.Errors)

	entries, err := st.ReadJournal(ctx, scenario.Name, 0)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	for i, e := range entries {
		assert.Equal(t, int64(i+1), e.Seq)
		assert.Equal(t, result.Trace[i].Kind, e.Kind.String())
	}

	_, err = RunInStore(ctx, st, scenario, schema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already has a journal")
}
