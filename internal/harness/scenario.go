package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
)

// Scenario defines a conformance test scenario.
// Scenarios drive builders, history and specialization edits against one
// schema and assert on the resulting trace and final graph.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the path of the schema file (.cue, .yaml or .json).
	// Relative paths are resolved against the scenario's base path.
	Schema string `yaml:"schema"`

	// Steps run in order against a fresh graph.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and graph.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one graph change. Exactly one of the action fields is set.
type Step struct {
	Build  *BuildStep  `yaml:"build,omitempty"`
	Edit   *EditStep   `yaml:"edit,omitempty"`
	Delete *DeleteStep `yaml:"delete,omitempty"`
	Undo   bool        `yaml:"undo,omitempty"`
	Redo   bool        `yaml:"redo,omitempty"`
	Lock   *LockStep   `yaml:"lock,omitempty"`
	Narrow *NarrowStep `yaml:"narrow,omitempty"`

	// Expect specifies whether the step must be rejected.
	// If nil, the step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// BuildStep creates a new instance, optionally with new or existing
// instances in its slots.
type BuildStep struct {
	// Operative is the operative name to instantiate.
	Operative string `yaml:"operative"`

	// As names the instance. Names declared anywhere in the step can be
	// referenced from the same step before the instance exists.
	As string `yaml:"as,omitempty"`

	// Fields maps field names to values.
	Fields map[string]any `yaml:"fields,omitempty"`

	// Add maps slot names to targets.
	Add map[string][]Target `yaml:"add,omitempty"`
}

// Target is a slot target: a named instance or a new one.
type Target struct {
	Ref string     `yaml:"ref,omitempty"`
	New *BuildStep `yaml:"new,omitempty"`
}

// EditStep changes a live instance.
type EditStep struct {
	Instance string              `yaml:"instance"`
	Fields   map[string]any      `yaml:"fields,omitempty"`
	Add      map[string][]Target `yaml:"add,omitempty"`
	Remove   map[string][]string `yaml:"remove,omitempty"`
}

// DeleteStep deletes a live instance.
type DeleteStep struct {
	Instance string `yaml:"instance"`

	// Recursive also deletes constituents left without an owner.
	Recursive bool `yaml:"recursive,omitempty"`
}

// LockStep locks a field on an operative to a value.
type LockStep struct {
	Operative string `yaml:"operative"`
	Field     string `yaml:"field"`
	Value     any    `yaml:"value"`
}

// NarrowStep narrows the cardinality of an operative's slot.
type NarrowStep struct {
	Operative string `yaml:"operative"`
	Slot      string `yaml:"slot"`
	Bound     string `yaml:"bound"`
}

// ExpectClause specifies expected rejection.
type ExpectClause struct {
	// Rejected requires the step to fail.
	Rejected bool `yaml:"rejected,omitempty"`

	// Codes lists error codes the failure must carry. Implies Rejected.
	Codes []string `yaml:"codes,omitempty"`
}

func (e *ExpectClause) rejects() bool {
	return e != nil && (e.Rejected || len(e.Codes) > 0)
}

// action names the step's action.
func (s *Step) action() string {
	switch {
	case s.Build != nil:
		return "build"
	case s.Edit != nil:
		return "edit"
	case s.Delete != nil:
		return "delete"
	case s.Undo:
		return "undo"
	case s.Redo:
		return "redo"
	case s.Lock != nil:
		return "lock"
	case s.Narrow != nil:
		return "narrow"
	}
	return ""
}

func (s *Step) actionCount() int {
	n := 0
	for _, set := range []bool{s.Build != nil, s.Edit != nil, s.Delete != nil, s.Undo, s.Redo, s.Lock != nil, s.Narrow != nil} {
		if set {
			n++
		}
	}
	return n
}

// Assertion validates trace or final graph.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_count": Check events of a kind occur exactly N times
	// - "trace_order": Check event kinds occur in order
	// - "instance_count": Check live instances of an operative
	// - "exists": Check a named instance is (or is not) live
	// - "field": Check a field value
	// - "targets": Check a slot's targets
	// - "history": Check undo and redo depth
	// - "verify": Check graph invariants hold
	// - "replay": Check the journal rebuilds the final graph
	Type string `yaml:"type"`

	// Kind is the event kind (used by trace_count).
	Kind string `yaml:"kind,omitempty"`

	// Kinds is the expected event order (used by trace_order).
	Kinds []string `yaml:"kinds,omitempty"`

	// Operative is the operative name (used by instance_count).
	Operative string `yaml:"operative,omitempty"`

	// Instance names the instance (used by exists, field, targets).
	Instance string `yaml:"instance,omitempty"`

	// Field is the field name (used by field).
	Field string `yaml:"field,omitempty"`

	// Slot is the slot name (used by targets).
	Slot string `yaml:"slot,omitempty"`

	// Equals is the expected field value (used by field).
	Equals any `yaml:"equals,omitempty"`

	// Expect lists expected target names, in any order (used by targets).
	Expect []string `yaml:"expect,omitempty"`

	// Count is the expected number (used by trace_count, instance_count).
	Count int `yaml:"count,omitempty"`

	// Live is the expected liveness (used by exists). Defaults to true.
	Live *bool `yaml:"live,omitempty"`

	// Undo and Redo are expected history depths (used by history).
	Undo int `yaml:"undo,omitempty"`
	Redo int `yaml:"redo,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceCount    = "trace_count"
	AssertTraceOrder    = "trace_order"
	AssertInstanceCount = "instance_count"
	AssertExists        = "exists"
	AssertField         = "field"
	AssertTargets       = "targets"
	AssertHistory       = "history"
	AssertVerify        = "verify"
	AssertReplay        = "replay"
)

// LoadScenario reads and parses a scenario YAML file, resolving the schema
// path relative to the scenario file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the schema path relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if !filepath.IsAbs(scenario.Schema) && basePath != "" {
		scenario.Schema = filepath.Join(basePath, scenario.Schema)
	}

	if _, err := os.Stat(scenario.Schema); os.IsNotExist(err) {
		return nil, fmt.Errorf("invalid scenario: schema file not found: %s", scenario.Schema)
	}

	return scenario, nil
}

// ParseScenario parses scenario YAML without touching the filesystem.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Schema == "" {
		return fmt.Errorf("schema is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i]); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, s *Step) error {
	switch s.actionCount() {
	case 0:
		return fmt.Errorf("steps[%d]: one of build, edit, delete, undo, redo, lock, narrow is required", index)
	case 1:
	default:
		return fmt.Errorf("steps[%d]: only one action per step", index)
	}

	for _, code := range stepCodes(s) {
		if code == "" {
			return fmt.Errorf("steps[%d].expect: empty error code", index)
		}
	}

	switch {
	case s.Build != nil:
		return validateBuild(fmt.Sprintf("steps[%d].build", index), s.Build)
	case s.Edit != nil:
		if s.Edit.Instance == "" {
			return fmt.Errorf("steps[%d].edit: instance is required", index)
		}
		return validateTargets(fmt.Sprintf("steps[%d].edit", index), s.Edit.Add)
	case s.Delete != nil:
		if s.Delete.Instance == "" {
			return fmt.Errorf("steps[%d].delete: instance is required", index)
		}
	case s.Lock != nil:
		if s.Lock.Operative == "" || s.Lock.Field == "" {
			return fmt.Errorf("steps[%d].lock: operative and field are required", index)
		}
		if s.Lock.Value == nil {
			return fmt.Errorf("steps[%d].lock: value is required", index)
		}
	case s.Narrow != nil:
		if s.Narrow.Operative == "" || s.Narrow.Slot == "" {
			return fmt.Errorf("steps[%d].narrow: operative and slot are required", index)
		}
		if _, err := ir.ParseSlotBound(s.Narrow.Bound); err != nil {
			return fmt.Errorf("steps[%d].narrow: %w", index, err)
		}
	}
	return nil
}

func stepCodes(s *Step) []string {
	if s.Expect == nil {
		return nil
	}
	return s.Expect.Codes
}

func validateBuild(where string, b *BuildStep) error {
	if b.Operative == "" {
		return fmt.Errorf("%s: operative is required", where)
	}
	return validateTargets(where, b.Add)
}

func validateTargets(where string, add map[string][]Target) error {
	for slot, targets := range add {
		for i, t := range targets {
			at := fmt.Sprintf("%s.add.%s[%d]", where, slot, i)
			switch {
			case t.Ref != "" && t.New != nil:
				return fmt.Errorf("%s: ref and new are mutually exclusive", at)
			case t.Ref == "" && t.New == nil:
				return fmt.Errorf("%s: ref or new is required", at)
			case t.New != nil:
				if err := validateBuild(at+".new", t.New); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for trace_order", index)
		}
	case AssertInstanceCount:
		if a.Operative == "" {
			return fmt.Errorf("assertions[%d]: operative is required for instance_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for instance_count", index)
		}
	case AssertExists:
		if a.Instance == "" {
			return fmt.Errorf("assertions[%d]: instance is required for exists", index)
		}
	case AssertField:
		if a.Instance == "" || a.Field == "" {
			return fmt.Errorf("assertions[%d]: instance and field are required for field", index)
		}
		if a.Equals == nil {
			return fmt.Errorf("assertions[%d]: equals is required for field", index)
		}
	case AssertTargets:
		if a.Instance == "" || a.Slot == "" {
			return fmt.Errorf("assertions[%d]: instance and slot are required for targets", index)
		}
	case AssertHistory, AssertVerify, AssertReplay:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
