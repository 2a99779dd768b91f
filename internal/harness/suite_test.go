package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverScenarios_Directory(t *testing.T) {
	files, err := DiscoverScenarios([]string{"testdata"}, "")
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join("testdata", "lock_key.scenario.yaml"),
		filepath.Join("testdata", "memo_specialize.scenario.yaml"),
		filepath.Join("testdata", "shelf_history.scenario.yaml"),
	}, files)
}

func TestDiscoverScenarios_Filter(t *testing.T) {
	files, err := DiscoverScenarios([]string{"testdata"}, "*_history")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("testdata", "shelf_history.scenario.yaml")}, files)

	_, err = DiscoverScenarios([]string{"testdata"}, "[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}

func TestDiscoverScenarios_FilesAndDuplicates(t *testing.T) {
	file := filepath.Join("testdata", "lock_key.scenario.yaml")

	files, err := DiscoverScenarios([]string{file, "testdata", file}, "lock_*")
	require.NoError(t, err)
	assert.Equal(t, []string{file}, files)
}

func TestDiscoverScenarios_NotFound(t *testing.T) {
	_, err := DiscoverScenarios([]string{"testdata/nope"}, "")
	require.Error(t, err)

	var nf *ScenarioNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "testdata/nope", nf.Path)
}

func TestRunSuite(t *testing.T) {
	broken := filepath.Join(t.TempDir(), "broken"+ScenarioSuffix)
	require.NoError(t, os.WriteFile(broken, []byte("name: [unclosed"), 0644))

	files, err := DiscoverScenarios([]string{"testdata"}, "")
	require.NoError(t, err)
	files = append(files, broken)

	suite := RunSuite(files)
	assert.Equal(t, 4, suite.TotalScenarios)
	assert.Equal(t, 3, suite.Passed)
	assert.Equal(t, 1, suite.Failed)
	require.Len(t, suite.Results, 4)

	for _, outcome := range suite.Results[:3] {
		assert.True(t, outcome.Pass, outcome.Errors)
		assert.NotNil(t, outcome.Result)
		assert.NotNil(t, outcome.Scenario)
	}
	assert.Equal(t, "lock_key", suite.Results[0].Name)

	last := suite.Results[3]
	assert.False(t, last.Pass)
	assert.Equal(t, "broken"+ScenarioSuffix, last.Name)
	assert.Nil(t, last.Result)
	require.Len(t, last.Errors, 1)
	assert.Contains(t, last.Errors[0], "failed to load scenario")
}

func TestRunSuite_ExecutionError(t *testing.T) {
	dir := t.TempDir()
	schema, err := os.ReadFile(shelfSchema)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shelf.cue"), schema, 0644))

	path := filepath.Join(dir, "bad"+ScenarioSuffix)
	require.NoError(t, os.WriteFile(path, []byte(`
name: bad
description: references an operative the schema lacks
schema: shelf.cue
steps:
  - build: {operative: drawer}
assertions: [{type: verify}]
`), 0644))

	suite := RunSuite([]string{path})
	require.Len(t, suite.Results, 1)
	outcome := suite.Results[0]
	assert.False(t, outcome.Pass)
	assert.Equal(t, "bad", outcome.Name)
	assert.NotNil(t, outcome.Scenario)
	require.Len(t, outcome.Errors, 1)
	assert.Contains(t, outcome.Errors[0], "scenario execution failed")
	assert.Contains(t, outcome.Errors[0], `unknown operative "drawer"`)
}
