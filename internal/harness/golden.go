package harness

import (
	"encoding/json"
	"slices"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
)

// Snapshot captures a scenario's trace and final graph.
// Instances are addressed by scenario name so snapshots read without ids;
// unnamed instances fall back to their id.
type Snapshot struct {
	ScenarioName string             `json:"scenario_name"`
	Trace        []TraceEvent       `json:"trace"`
	Graph        []SnapshotInstance `json:"graph"`
}

// SnapshotInstance is one live instance in a Snapshot.
type SnapshotInstance struct {
	Name      string              `json:"name"`
	Operative string              `json:"operative"`
	Fields    map[string]string   `json:"fields"`
	Slots     map[string][]string `json:"slots,omitempty"`
}

// NewSnapshot builds the snapshot of a scenario result.
func NewSnapshot(scenarioName string, result *Result) *Snapshot {
	s := &Snapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
		Graph:        []SnapshotInstance{},
	}
	if result.Graph == nil {
		return s
	}

	schema := result.Graph.Schema()
	for _, id := range result.Graph.IDs() {
		rec, _ := result.Graph.Get(id)
		inst := SnapshotInstance{
			Name:      result.nameOf(id),
			Operative: rec.OperativeID.String(),
			Fields:    make(map[string]string),
		}
		if op, ok := schema.Operative(rec.OperativeID); ok {
			inst.Operative = op.Tag.Name
		}
		tmpl, _ := schema.Template(rec.TemplateID)
		for fid, v := range rec.Fields {
			inst.Fields[fieldName(tmpl, fid)] = ir.FormatValue(v)
		}
		for _, slotID := range ir.SortedKeys(rec.Outgoing) {
			targets := rec.Outgoing[slotID]
			if len(targets) == 0 {
				continue
			}
			if inst.Slots == nil {
				inst.Slots = make(map[string][]string)
			}
			names := make([]string, 0, len(targets))
			for _, t := range targets {
				names = append(names, result.nameOf(t))
			}
			slices.Sort(names)
			inst.Slots[slotName(tmpl, slotID)] = names
		}
		s.Graph = append(s.Graph, inst)
	}
	slices.SortFunc(s.Graph, func(a, b SnapshotInstance) int { return strings.Compare(a.Name, b.Name) })
	return s
}

func fieldName(tmpl *ir.Template, id ir.UID) string {
	if tmpl != nil {
		if fc, ok := tmpl.FieldConstraints[id]; ok {
			return fc.Tag.Name
		}
	}
	return id.String()
}

func slotName(tmpl *ir.Template, id ir.UID) string {
	if tmpl != nil {
		if slot, ok := tmpl.OperativeSlots[id]; ok {
			return slot.Tag.Name
		}
	}
	return id.String()
}

// Marshal encodes the snapshot as canonical JSON for deterministic comparison.
func (s *Snapshot) Marshal() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return ir.CanonicalJSON(data)
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the given result against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(scenarioName, result).Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
