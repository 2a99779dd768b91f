package harness

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ScenarioSuffix marks scenario files in a directory, keeping them apart from
// schema files written in YAML.
const ScenarioSuffix = ".scenario.yaml"

// ScenarioNotFoundError is returned when a referenced scenario path doesn't exist.
type ScenarioNotFoundError struct {
	Path string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("scenario path %q does not exist", e.Path)
}

// DiscoverScenarios expands paths into scenario files. Files are taken as
// given; directories are walked for files ending in ScenarioSuffix. If
// filter is set, only scenarios whose base name (without suffix) matches the
// glob are kept. The result is sorted and free of duplicates.
func DiscoverScenarios(paths []string, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			return nil, &ScenarioNotFoundError{Path: path}
		}
		if err != nil {
			return nil, err
		}

		if !info.IsDir() {
			files = append(files, path)
			continue
		}

		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(p, ScenarioSuffix) {
				return nil
			}
			files = append(files, p)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if filter != "" {
		files = slices.DeleteFunc(files, func(p string) bool {
			name := strings.TrimSuffix(filepath.Base(p), ScenarioSuffix)
			name = strings.TrimSuffix(name, filepath.Ext(name))
			matched, _ := filepath.Match(filter, name)
			return !matched
		})
	}

	slices.Sort(files)
	return slices.Compact(files), nil
}

// SuiteResult contains results from running many scenarios.
type SuiteResult struct {
	TotalScenarios int               `json:"total_scenarios"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Results        []ScenarioOutcome `json:"results"`
}

// ScenarioOutcome is the result of one scenario file.
type ScenarioOutcome struct {
	Path   string   `json:"path"`
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`

	// Result is nil when the scenario failed to load or execute.
	Result *Result `json:"-"`

	// Scenario is nil when the scenario failed to load.
	Scenario *Scenario `json:"-"`
}

// RunSuite loads and runs every scenario file in order.
//
// For each file:
// 1. Load the scenario, resolving its schema next to the file
// 2. Run it via harness.Run
// 3. Collect the outcome
//
// Load and execution errors fail that scenario only.
func RunSuite(files []string) *SuiteResult {
	suite := &SuiteResult{Results: make([]ScenarioOutcome, 0, len(files))}

	for _, file := range files {
		suite.TotalScenarios++
		outcome := runFile(file)
		if outcome.Pass {
			suite.Passed++
		} else {
			suite.Failed++
		}
		suite.Results = append(suite.Results, outcome)
	}

	return suite
}

func runFile(file string) ScenarioOutcome {
	outcome := ScenarioOutcome{Path: file, Name: filepath.Base(file)}

	scenario, err := LoadScenario(file)
	if err != nil {
		outcome.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return outcome
	}
	outcome.Name = scenario.Name
	outcome.Scenario = scenario

	result, err := Run(scenario)
	if err != nil {
		outcome.Errors = []string{fmt.Sprintf("scenario execution failed: %v", err)}
		return outcome
	}

	outcome.Result = result
	outcome.Pass = result.Pass
	outcome.Errors = result.Errors
	return outcome
}
