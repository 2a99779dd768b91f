package cli

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult summarizes a compiled schema.
type CompilationResult struct {
	Version    string   `json:"version"`
	Templates  []string `json:"templates"`
	Operatives []string `json:"operatives"`
	Instances  []string `json:"instances"`
	Traits     []string `json:"traits"`
	Warnings   []string `json:"warnings,omitempty"`
	Output     string   `json:"output,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <schema>",
		Short: "Compile a schema to its JSON interchange form",
		Long: `Compile an authored schema (CUE or YAML) to the JSON interchange form.

Item ids are derived from names under the document's namespace, so the same
document always compiles to the same ids and the same schema version. The
output can be loaded again by any command that takes a schema.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	loaded, err := LoadSchema(path)
	if err != nil {
		return outputCompileError(formatter, err)
	}
	if loaded.FileCount > 0 {
		formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, path)
	}

	result := summarize(loaded)

	// Write to file if --output specified
	if opts.Output != "" {
		if err := writeSchemaToFile(loaded.Schema, opts.Output); err != nil {
			return outputCompileError(formatter, &LoadError{
				Code:    ErrCodeWriteFailed,
				Message: fmt.Sprintf("writing output file: %v", err),
			})
		}
		result.Output = opts.Output
	}

	return outputCompileSuccess(formatter, result)
}

// summarize lists a schema's items by name.
func summarize(loaded *LoadResult) *CompilationResult {
	s := loaded.Schema
	result := &CompilationResult{
		Version:    s.Version(),
		Templates:  []string{},
		Operatives: []string{},
		Instances:  []string{},
		Traits:     []string{},
	}
	for _, t := range s.Templates {
		result.Templates = append(result.Templates, t.Tag.Name)
	}
	for _, op := range s.Operatives {
		result.Operatives = append(result.Operatives, op.Tag.Name)
	}
	for _, inst := range s.Instances {
		result.Instances = append(result.Instances, inst.Tag.Name)
	}
	for _, tr := range s.Traits {
		result.Traits = append(result.Traits, tr.Tag.Name)
	}
	slices.Sort(result.Templates)
	slices.Sort(result.Operatives)
	slices.Sort(result.Instances)
	slices.Sort(result.Traits)
	for _, w := range loaded.Warnings {
		result.Warnings = append(result.Warnings, w.Message)
	}
	return result
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult) error {
	if formatter.Format == FormatJSON {
		return formatter.Success(result)
	}

	// Human-readable text output
	fmt.Fprintf(formatter.Writer, "✓ Compiled %d template(s), %d operative(s)\n\n",
		len(result.Templates), len(result.Operatives))
	fmt.Fprintf(formatter.Writer, "Version: %s\n", result.Version)

	for _, section := range []struct {
		title string
		names []string
	}{
		{"Templates", result.Templates},
		{"Operatives", result.Operatives},
		{"Instances", result.Instances},
		{"Traits", result.Traits},
	} {
		if len(section.names) > 0 {
			fmt.Fprintf(formatter.Writer, "%s: %s\n", section.title, strings.Join(section.names, ", "))
		}
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(formatter.Writer, "⚠ %s\n", w)
	}

	if result.Output != "" {
		fmt.Fprintf(formatter.Writer, "\nWrote schema to %s\n", result.Output)
	}

	return nil
}

// outputCompileError outputs a compilation error. Validation problems are
// listed one by one.
func outputCompileError(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		loadErr = &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}
	if len(loadErr.Validation) > 0 {
		return outputValidationErrors(formatter, loadErr.Validation)
	}

	var details interface{}
	if loadErr.Pos.IsValid() {
		details = fmt.Sprintf("%s:%d:%d", loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column())
	}
	_ = formatter.Error(loadErr.Code, loadErr.Message, details)
	// Compilation errors are command-level errors (exit code 2)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", loadErr.Code, loadErr.Message), nil)
}

// writeSchemaToFile writes the schema in its JSON interchange form.
func writeSchemaToFile(s *ir.Schema, filename string) error {
	data, err := ir.MarshalSchema(s)
	if err != nil {
		return fmt.Errorf("marshaling schema: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
