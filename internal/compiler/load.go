package compiler

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
)

// Compile builds an authored document and validates the result.
func Compile(doc *Document) (*ir.Schema, error) {
	s, err := Build(doc)
	if err != nil {
		return nil, err
	}
	if errs := Validate(s); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return s, nil
}

// LoadJSON reads a compiled schema in its JSON interchange form, links
// specialization upstreams and validates it.
func LoadJSON(data []byte) (*ir.Schema, error) {
	s, err := ir.UnmarshalSchema(data)
	if err != nil {
		return nil, err
	}
	s.LinkUpstreams()
	if errs := Validate(s); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return s, nil
}

// LoadYAML reads an authored document written as YAML and compiles it.
func LoadYAML(data []byte) (*ir.Schema, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode schema document: %w", err)
	}
	return Compile(&doc)
}

// LoadFile loads a schema by path. Directories and .cue files are read as
// CUE, .yaml and .yml files as authored YAML, and .json files as compiled
// schemas.
func LoadFile(path string) (*ir.Schema, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	if info.IsDir() {
		return LoadCUE(path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return LoadCUE(path)
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load schema: %w", err)
		}
		return LoadJSON(data)
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load schema: %w", err)
		}
		return LoadYAML(data)
	default:
		return nil, fmt.Errorf("load schema %s: unsupported extension %q", path, filepath.Ext(path))
	}
}
