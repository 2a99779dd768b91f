package harness

import (
	"github.com/reedwoodruff/molecule-schema-sub000/internal/engine"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
)

// Event kinds recorded in the trace besides the engine's own.
const (
	KindRejected = "rejected"
)

// TraceEvent summarizes one applied blueprint, or one rejected step.
type TraceEvent struct {
	Step         int      `json:"step"`          // 1-based scenario step
	Kind         string   `json:"kind"`          // "commit", "undo", "redo" or "rejected"
	Seq          int64    `json:"seq,omitempty"` // engine clock; 0 for rejected steps
	Added        int      `json:"added"`
	Deleted      int      `json:"deleted"`
	EdgesAdded   int      `json:"edges_added"`
	EdgesRemoved int      `json:"edges_removed"`
	FieldUpdates int      `json:"field_updates"`
	SchemaChange bool     `json:"schema_change"`
	Codes        []string `json:"codes,omitempty"` // rejected steps only
}

func traceEvent(step int, ev engine.Event) TraceEvent {
	bp := ev.Blueprint
	return TraceEvent{
		Step:         step,
		Kind:         ev.Kind.String(),
		Seq:          ev.Seq,
		Added:        len(bp.Added),
		Deleted:      len(bp.Deleted),
		EdgesAdded:   len(bp.AddOutgoing),
		EdgesRemoved: len(bp.RemoveOutgoing),
		FieldUpdates: len(bp.FieldUpdates),
		SchemaChange: bp.Schema != nil,
	}
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step behaved as expected and all assertions match.
	Pass bool `json:"pass"`

	// Trace contains every applied blueprint and rejected step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Names maps scenario instance names to their ids.
	Names map[string]ir.UID `json:"-"`

	// Graph is the final graph.
	Graph *engine.Engine `json:"-"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Names:  make(map[string]ir.UID),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddRejected records a step that failed, with the error codes it carried.
func (r *Result) AddRejected(step int, codes []ir.ErrorCode) {
	ev := TraceEvent{Step: step, Kind: KindRejected}
	for _, c := range codes {
		ev.Codes = append(ev.Codes, string(c))
	}
	r.Trace = append(r.Trace, ev)
}

// nameOf returns the scenario name of id, or its id string when unnamed.
func (r *Result) nameOf(id ir.UID) string {
	for name, named := range r.Names {
		if named == id {
			return name
		}
	}
	return id.String()
}
