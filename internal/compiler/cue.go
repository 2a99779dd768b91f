package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
)

// CompileSchema decodes a CUE value holding an authored schema document and
// compiles it. Uses CUE SDK's Go API directly (not CLI subprocess).
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`templates: note: fields: title: "String"`)
//	s, err := CompileSchema(v)
//
// CUE evaluation errors come back as *CompileError; document problems as
// ValidationErrors, with the source line filled in where CUE knows it.
func CompileSchema(v cue.Value) (*ir.Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var doc Document
	if err := v.Decode(&doc); err != nil {
		return nil, formatCUEError(err)
	}

	s, err := Compile(&doc)
	if verrs, ok := err.(ValidationErrors); ok {
		return nil, annotateLines(v, verrs)
	}
	return s, err
}

// CompileSchemaString compiles CUE source text. filename is used in positions.
func CompileSchemaString(filename, src string) (*ir.Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	return CompileSchema(v)
}

// LoadCUE loads a schema from a CUE file or from every CUE file in a
// directory.
func LoadCUE(path string) (*ir.Schema, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	cfg := &load.Config{Dir: path}
	args := []string{"."}
	if !info.IsDir() {
		cfg.Dir = filepath.Dir(path)
		args = []string{filepath.Base(path)}
	}

	instances := load.Instances(args, cfg)
	if len(instances) == 0 {
		return nil, fmt.Errorf("load schema %s: no CUE instances loaded", path)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}

	ctx := cuecontext.New()
	value := ctx.BuildInstance(inst)
	return CompileSchema(value)
}

var indexSuffix = regexp.MustCompile(`\[\d+\]$`)

// annotateLines fills in the line of each error from the deepest CUE value
// its field path reaches.
func annotateLines(v cue.Value, errs ValidationErrors) ValidationErrors {
	for i := range errs {
		cur := v
		line := 0
		for _, seg := range strings.Split(indexSuffix.ReplaceAllString(errs[i].Field, ""), ".") {
			next := cur.LookupPath(cue.MakePath(cue.Str(seg)))
			if !next.Exists() {
				break
			}
			cur = next
			if pos := cur.Pos(); pos.IsValid() {
				line = pos.Line()
			}
		}
		errs[i].Line = line
	}
	return errs
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
