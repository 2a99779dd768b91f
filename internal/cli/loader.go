package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue/token"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/compiler"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
)

// LoadResult contains a loaded schema and what the loader found along the way.
type LoadResult struct {
	Schema    *ir.Schema
	Warnings  []compiler.CycleWarning
	FileCount int // Number of CUE files found; 0 for JSON and YAML schemas
}

// LoadError represents an error that occurred during schema loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available

	// Validation holds the document problems when the schema was read but
	// failed validation.
	Validation compiler.ValidationErrors
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadSchema loads a schema from a CUE directory or a .cue, .yaml, .yml or
// .json file and analyzes it for required-slot cycles.
func LoadSchema(path string) (*LoadResult, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing schema: %v", err)}
	}

	result := &LoadResult{}
	if info.IsDir() {
		cueFiles, err := FindCUEFiles(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
		}
		if len(cueFiles) == 0 {
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
		}
		result.FileCount = len(cueFiles)
	} else if filepath.Ext(path) == ".cue" {
		result.FileCount = 1
	}

	schema, err := compiler.LoadFile(path)
	if err != nil {
		return nil, convertLoadError(err)
	}
	result.Schema = schema
	result.Warnings = compiler.AnalyzeCycles(schema)
	return result, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertLoadError converts a compiler error to a LoadError with position info.
func convertLoadError(err error) *LoadError {
	var verrs compiler.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &LoadError{
			Code:       ErrCodeInvalidSchema,
			Message:    fmt.Sprintf("schema has %d error(s)", len(verrs)),
			Validation: verrs,
		}
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    ErrCodeBuildFailed,
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeLoadFailed,
		Message: err.Error(),
	}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeScanError     = "E002" // Directory scan error
	ErrCodeNoFiles       = "E003" // No CUE files found
	ErrCodeLoadFailed    = "E004" // Schema read or decode failed
	ErrCodeNotFound      = "E005" // Path not found
	ErrCodeBuildFailed   = "E006" // CUE evaluation failed
	ErrCodeWriteFailed   = "E007" // File write error
	ErrCodeInvalidSchema = "E008" // Schema failed validation

	ErrCodeUnknownOperative = "E101" // Operative name not in schema

	ErrCodeStore          = "E201" // Database open or query failed
	ErrCodeUnknownSession = "E202" // Session not in database
	ErrCodeReplayFailed   = "E203" // Journal does not replay
)
