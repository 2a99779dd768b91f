package compiler

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
)

func TestCompileSchemaString_MatchesFixture(t *testing.T) {
	s, err := CompileSchemaString("fixture.cue", fixtureCUE)
	require.NoError(t, err)
	requireSameSchema(t, fixtureSchema(), s)
}

func TestCompileSchemaString_LinksUpstreams(t *testing.T) {
	s, err := CompileSchemaString("fixture.cue", fixtureCUE)
	require.NoError(t, err)

	boltKit, ok := s.OperativeByName("bolt-kit")
	require.True(t, ok)
	kit, ok := s.OperativeByName("kit")
	require.True(t, ok)
	require.Len(t, boltKit.SlotSpecializations, 1)
	assert.Equal(t, kit.SlotSpecializations[0].Tag.ID, boltKit.SlotSpecializations[0].Upstream)
}

func TestCompileSchemaString_CUEError(t *testing.T) {
	_, err := CompileSchemaString("broken.cue", "templates: {\n\tnote: fields: title: \"String\"\n")

	var ce *CompileError
	require.True(t, errors.As(err, &ce), "want *CompileError, got %T: %v", err, err)
	assert.Equal(t, "cue", ce.Field)
}

func TestCompileSchemaString_ConflictIsCUEError(t *testing.T) {
	src := `templates: note: fields: title: "String"
templates: note: fields: title: "Int"
`
	_, err := CompileSchemaString("conflict.cue", src)

	var ce *CompileError
	require.True(t, errors.As(err, &ce), "want *CompileError, got %T: %v", err, err)
	assert.True(t, ce.Pos.IsValid())
}

func TestCompileSchemaString_ValidationLine(t *testing.T) {
	src := `templates: note: fields: title: "String"
operatives: note: template: "note"
operatives: ghost: template: "nope"
`
	_, err := CompileSchemaString("ghost.cue", src)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs), "want ValidationErrors, got %T: %v", err, err)
	require.Len(t, verrs, 1)
	assert.Equal(t, ErrUnknownReference, verrs[0].Code)
	assert.Equal(t, "operatives.ghost.template", verrs[0].Field)
	assert.Equal(t, 3, verrs[0].Line)
}

func TestCompileSchemaString_DefaultNamespace(t *testing.T) {
	s, err := CompileSchemaString("note.cue", `templates: note: fields: title: "String"
operatives: note: template: "note"
`)
	require.NoError(t, err)

	_, ok := s.Operatives[ir.NameUID(DefaultNamespace, "operative/note")]
	assert.True(t, ok)
}

func TestLoadYAML_MatchesFixture(t *testing.T) {
	s, err := LoadYAML([]byte(fixtureYAML))
	require.NoError(t, err)
	requireSameSchema(t, fixtureSchema(), s)
}

func TestLoadYAML_UnknownKey(t *testing.T) {
	_, err := LoadYAML([]byte("templatez:\n  note: {}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "templatez")
}

func TestLoadJSON_RoundTrip(t *testing.T) {
	want := fixtureSchema()
	data, err := ir.MarshalSchema(want)
	require.NoError(t, err)

	got, err := LoadJSON(data)
	require.NoError(t, err)
	requireSameSchema(t, want, got)
	assert.Equal(t, want.Version(), got.Version())
}

func TestLoadJSON_Invalid(t *testing.T) {
	s := fixtureSchema()
	s.Instances[firstKey(s.Instances)].FulfilledFields = nil
	data, err := ir.MarshalSchema(s)
	require.NoError(t, err)

	_, err = LoadJSON(data)
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, []string{ErrLibraryInstance}, verrs.Codes())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	jsonData, err := ir.MarshalSchema(fixtureSchema())
	require.NoError(t, err)

	files := map[string]string{
		"schema.cue":  fixtureCUE,
		"schema.yaml": fixtureYAML,
		"schema.json": string(jsonData),
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	for name := range files {
		t.Run(name, func(t *testing.T) {
			s, err := LoadFile(filepath.Join(dir, name))
			require.NoError(t, err)
			requireSameSchema(t, fixtureSchema(), s)
		})
	}
}

func TestLoadFile_Directory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schema.cue"), []byte(fixtureCUE), 0o644))

	s, err := LoadFile(dir)
	require.NoError(t, err)
	requireSameSchema(t, fixtureSchema(), s)
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "schema.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o644))

	_, err := LoadFile(txt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported extension")

	_, err = LoadFile(filepath.Join(dir, "missing.cue"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func firstKey[V any](m map[ir.UID]V) ir.UID {
	return ir.SortedKeys(m)[0]
}
