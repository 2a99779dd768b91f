package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/store"
)

var shelfHistory = filepath.Join(harnessTestdata, "shelf_history.scenario.yaml")

func TestRun_MissingDatabaseFlag(t *testing.T) {
	_, err := execute(t, "run", shelfHistory)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.Contains(t, err.Error(), "db")
}

func TestRun_JournalsScenario(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "molecule.db")

	out, err := execute(t, "run", "--db", dbPath, shelfHistory)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ shelf_history: 3 instance(s), 4 trace event(s)")
	assert.NotContains(t, out, "Snapshot saved")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	entries, err := st.ReadJournal(ctx, "shelf_history", 0)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, []string{"commit", "commit", "undo", "redo"}, []string{
		entries[0].Kind.String(), entries[1].Kind.String(), entries[2].Kind.String(), entries[3].Kind.String(),
	})

	e, err := st.Restore(ctx, "shelf_history")
	require.NoError(t, err)
	assert.Equal(t, 3, e.Len())
}

func TestRun_Snapshot(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "molecule.db")

	out, err := execute(t, "--format", "json", "run", "--db", dbPath, "--snapshot", shelfHistory)
	require.NoError(t, err)

	var result RunResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, result.Pass)
	assert.Equal(t, "shelf_history", result.Session)
	assert.Equal(t, 4, result.Events)
	assert.Equal(t, int64(4), result.SnapshotSeq)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	snap, err := st.LatestSnapshot(context.Background(), "shelf_history")
	require.NoError(t, err)
	assert.Equal(t, int64(4), snap.Seq)
	assert.Len(t, snap.Instances, 3)
}

func TestRun_SessionAlreadyJournaled(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "molecule.db")

	_, err := execute(t, "run", "--db", dbPath, shelfHistory)
	require.NoError(t, err)

	out, err := execute(t, "run", "--db", dbPath, shelfHistory)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "already has a journal")
}

func TestRun_FailingScenario(t *testing.T) {
	schema, err := filepath.Abs(shelfSchema)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "short.scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`name: short
description: Asserts one note too many.
schema: `+schema+`
steps:
  - build: {operative: note, as: n, fields: {body: hello}}
assertions:
  - type: instance_count
    operative: note
    count: 2
`), 0644))

	out, err := execute(t, "run", "--db", filepath.Join(t.TempDir(), "molecule.db"), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ short: 1 instance(s), 1 trace event(s)")
}

func TestRun_BadInputs(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "molecule.db")

	out, err := execute(t, "run", "--db", dbPath, "/nonexistent/x.scenario.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeLoadFailed)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ghost.cue"), []byte(ghostSchema), 0644))
	scenario := filepath.Join(dir, "ghost.scenario.yaml")
	require.NoError(t, os.WriteFile(scenario, []byte(`name: ghost
description: Runs against a schema that does not validate.
schema: ghost.cue
steps:
  - build: {operative: note, as: n, fields: {title: x}}
assertions:
  - type: verify
`), 0644))

	out, err = execute(t, "run", "--db", dbPath, scenario)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "operatives.ghost.template")
}
