package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Path   string   `json:"path"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"` // "match", "updated" or "missing"
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <path>...",
		Short: "Run scenario files",
		Long: `Run scenario files against their schemas.

Each path is a *.scenario.yaml file or a directory searched recursively.
A scenario passes when every step behaves as its expect clause says and
every assertion holds. When golden/<name>.golden exists next to the
scenario, the final trace and graph must also match it byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  molecule test ./scenarios
  molecule test ./scenarios --filter "*_history"
  molecule test ./scenarios --update
  molecule test ./scenarios/shelf.scenario.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern on the name")

	return cmd
}

func runTests(opts *TestOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	files, err := harness.DiscoverScenarios(paths, opts.Filter)
	if err != nil {
		var notFound *harness.ScenarioNotFoundError
		if errors.As(err, &notFound) {
			_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		} else {
			_ = formatter.Error(ErrCodeScanError, err.Error(), nil)
		}
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}
	formatter.VerboseLog("Found %d scenario file(s)", len(files))

	if len(files) == 0 {
		if opts.Format == FormatJSON {
			return outputTestJSON(formatter, TestResult{Scenarios: []ScenarioResult{}})
		}
		fmt.Fprintln(formatter.Writer, "No scenarios found.")
		return nil
	}

	suite := harness.RunSuite(files)
	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(suite.Results)),
		Total:     suite.TotalScenarios,
	}
	for _, outcome := range suite.Results {
		sr := checkOutcome(opts, outcome)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		if opts.Format != FormatJSON {
			printScenarioText(formatter, sr)
		}
		result.Scenarios = append(result.Scenarios, sr)
	}

	if opts.Format == FormatJSON {
		return outputTestJSON(formatter, result)
	}
	return outputTestText(formatter, result)
}

// checkOutcome folds the golden comparison into a scenario outcome.
func checkOutcome(opts *TestOptions, outcome harness.ScenarioOutcome) ScenarioResult {
	sr := ScenarioResult{
		Name:   outcome.Name,
		Path:   outcome.Path,
		Pass:   outcome.Pass,
		Errors: outcome.Errors,
	}
	if outcome.Result == nil {
		return sr
	}

	data, err := harness.NewSnapshot(outcome.Name, outcome.Result).Marshal()
	if err != nil {
		sr.Pass = false
		sr.Errors = append(sr.Errors, fmt.Sprintf("failed to snapshot graph: %v", err))
		return sr
	}

	goldenPath := goldenFilePath(outcome.Path, outcome.Name)
	if opts.Update {
		if err := writeGoldenFile(goldenPath, data); err != nil {
			sr.Pass = false
			sr.Errors = append(sr.Errors, fmt.Sprintf("failed to update golden file: %v", err))
			return sr
		}
		sr.Golden = "updated"
		return sr
	}

	want, err := os.ReadFile(goldenPath)
	if os.IsNotExist(err) {
		sr.Golden = "missing"
		return sr
	}
	if err != nil {
		sr.Pass = false
		sr.Errors = append(sr.Errors, fmt.Sprintf("failed to read golden file: %v", err))
		return sr
	}
	if !bytes.Equal(want, data) {
		sr.Pass = false
		sr.Errors = append(sr.Errors, "graph does not match golden file (run with --update to regenerate)")
		return sr
	}
	sr.Golden = "match"
	return sr
}

// goldenFilePath returns the golden file for a scenario: golden/<name>.golden
// beside the scenario file.
func goldenFilePath(scenarioFile, name string) string {
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

func writeGoldenFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func printScenarioText(formatter *OutputFormatter, sr ScenarioResult) {
	w := formatter.Writer
	mark := "✓"
	if !sr.Pass {
		mark = "✗"
	}
	switch sr.Golden {
	case "updated":
		fmt.Fprintf(w, "%s %s (golden updated)\n", mark, sr.Name)
	case "match":
		fmt.Fprintf(w, "%s %s (golden)\n", mark, sr.Name)
	default:
		fmt.Fprintf(w, "%s %s\n", mark, sr.Name)
	}
	for _, e := range sr.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(formatter *OutputFormatter, result TestResult) error {
	status := "ok"
	if result.Failed > 0 {
		status = "error"
	}

	response := CLIResponse{
		Status: status,
		Data:   result,
	}

	if result.Failed > 0 {
		response.Error = &CLIError{
			Code:    "E_TEST_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}

	if err := formatter.Respond(response); err != nil {
		return err
	}

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// outputTestText outputs the test summary as text.
func outputTestText(formatter *OutputFormatter, result TestResult) error {
	w := formatter.Writer

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
