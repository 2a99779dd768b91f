package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/engine"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			if event.Kind == KindRejected {
				fmt.Fprintf(&buf, "  step %d: rejected %v\n", event.Step, event.Codes)
				continue
			}
			fmt.Fprintf(&buf, "  [%d] step %d: %s +%d -%d\n", event.Seq, event.Step, event.Kind, event.Added, event.Deleted)
		}
	}

	return buf.String()
}

// assertTraceCount checks that events of the kind occur exactly the
// specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Kind == assertion.Kind {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d %s events", assertion.Count, assertion.Kind),
			Actual:   fmt.Sprintf("%d events", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceOrder checks that event kinds occur in the specified order.
// Kinds don't need to be consecutive (intervening events are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	next := 0
	for _, event := range trace {
		if next < len(assertion.Kinds) && event.Kind == assertion.Kinds[next] {
			next++
		}
	}

	if next < len(assertion.Kinds) {
		return &AssertionError{
			Type:     AssertTraceOrder,
			Expected: fmt.Sprintf("events in order: %v", assertion.Kinds),
			Actual:   fmt.Sprintf("no %s after the first %d matched", assertion.Kinds[next], next),
			Trace:    trace,
		}
	}
	return nil
}

func assertInstanceCount(result *Result, assertion Assertion) error {
	op, ok := result.Graph.Schema().OperativeByName(assertion.Operative)
	if !ok {
		return fmt.Errorf("instance_count: unknown operative %q", assertion.Operative)
	}

	count := 0
	for _, id := range result.Graph.IDs() {
		rec, _ := result.Graph.Get(id)
		if rec.OperativeID == op.Tag.ID {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertInstanceCount,
			Expected: fmt.Sprintf("%d live %s instances", assertion.Count, assertion.Operative),
			Actual:   fmt.Sprintf("%d", count),
		}
	}
	return nil
}

func assertExists(result *Result, assertion Assertion) error {
	id, ok := result.Names[assertion.Instance]
	if !ok {
		return fmt.Errorf("exists: unknown instance %q", assertion.Instance)
	}

	want := assertion.Live == nil || *assertion.Live
	if got := result.Graph.Contains(id); got != want {
		return &AssertionError{
			Type:     AssertExists,
			Expected: fmt.Sprintf("%s live = %t", assertion.Instance, want),
			Actual:   fmt.Sprintf("live = %t", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

// liveRecord returns the record and template of a named live instance.
func liveRecord(result *Result, kind, name string) (*ir.InstanceRecord, *ir.Template, error) {
	id, ok := result.Names[name]
	if !ok {
		return nil, nil, fmt.Errorf("%s: unknown instance %q", kind, name)
	}
	rec, ok := result.Graph.Get(id)
	if !ok {
		return nil, nil, &AssertionError{
			Type:     kind,
			Expected: fmt.Sprintf("%s to be live", name),
			Actual:   "instance was deleted",
		}
	}
	tmpl, ok := result.Graph.Schema().Template(rec.TemplateID)
	if !ok {
		return nil, nil, fmt.Errorf("%s: instance %q has no template", kind, name)
	}
	return rec, tmpl, nil
}

func assertField(result *Result, assertion Assertion) error {
	rec, tmpl, err := liveRecord(result, AssertField, assertion.Instance)
	if err != nil {
		return err
	}
	fc, ok := tmpl.FieldByName(assertion.Field)
	if !ok {
		return fmt.Errorf("field: template %s has no field %q", tmpl.Tag.Name, assertion.Field)
	}
	want, err := ir.FromGo(fc.ValueType, assertion.Equals)
	if err != nil {
		return fmt.Errorf("field: expected value: %w", err)
	}

	got, ok := rec.Fields[fc.Tag.ID]
	if !ok || !ir.Equal(got, want) {
		actual := "<unset>"
		if ok {
			actual = ir.FormatValue(got)
		}
		return &AssertionError{
			Type:     AssertField,
			Expected: fmt.Sprintf("%s.%s = %s", assertion.Instance, assertion.Field, ir.FormatValue(want)),
			Actual:   actual,
		}
	}
	return nil
}

func assertTargets(result *Result, assertion Assertion) error {
	rec, tmpl, err := liveRecord(result, AssertTargets, assertion.Instance)
	if err != nil {
		return err
	}
	slot, ok := tmpl.SlotByName(assertion.Slot)
	if !ok {
		return fmt.Errorf("targets: template %s has no slot %q", tmpl.Tag.Name, assertion.Slot)
	}

	var got []string
	for _, id := range rec.Targets(slot.Tag.ID) {
		got = append(got, result.nameOf(id))
	}
	want := slices.Clone(assertion.Expect)
	slices.Sort(got)
	slices.Sort(want)

	if !slices.Equal(got, want) {
		return &AssertionError{
			Type:     AssertTargets,
			Expected: fmt.Sprintf("%s.%s = %v", assertion.Instance, assertion.Slot, want),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

func assertHistory(result *Result, assertion Assertion) error {
	undo, redo := result.Graph.HistoryDepth()
	if undo != assertion.Undo || redo != assertion.Redo {
		return &AssertionError{
			Type:     AssertHistory,
			Expected: fmt.Sprintf("undo %d, redo %d", assertion.Undo, assertion.Redo),
			Actual:   fmt.Sprintf("undo %d, redo %d", undo, redo),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertVerify(result *Result) error {
	if err := result.Graph.Verify(); err != nil {
		return &AssertionError{
			Type:     AssertVerify,
			Expected: "graph invariants hold",
			Actual:   err.Error(),
		}
	}
	return nil
}

// assertReplay restores the session from its journal and compares the
// restored graph with the live one.
func assertReplay(ctx context.Context, st *store.Store, session string, result *Result) error {
	restored, err := st.Restore(ctx, session, engine.WithLogger(result.Graph.Logger()))
	if err != nil {
		return &AssertionError{
			Type:     AssertReplay,
			Expected: "journal replays",
			Actual:   err.Error(),
		}
	}

	if restored.Schema().Version() != result.Graph.Schema().Version() {
		return &AssertionError{
			Type:     AssertReplay,
			Expected: fmt.Sprintf("schema %s", result.Graph.Schema().Version()),
			Actual:   fmt.Sprintf("schema %s", restored.Schema().Version()),
		}
	}

	want, got := result.Graph.IDs(), restored.IDs()
	if !slices.Equal(want, got) {
		return &AssertionError{
			Type:     AssertReplay,
			Expected: fmt.Sprintf("%d instances", len(want)),
			Actual:   fmt.Sprintf("%d instances", len(got)),
		}
	}
	for _, id := range want {
		w, _ := result.Graph.Get(id)
		g, _ := restored.Get(id)
		if !w.Equal(g) {
			return &AssertionError{
				Type:     AssertReplay,
				Expected: fmt.Sprintf("instance %s as recorded", result.nameOf(id)),
				Actual:   "restored instance differs",
			}
		}
	}
	return nil
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store   *store.Store
	Ctx     context.Context
	Session string
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides journal access for replay assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertInstanceCount:
			err = assertInstanceCount(result, assertion)
		case AssertExists:
			err = assertExists(result, assertion)
		case AssertField:
			err = assertField(result, assertion)
		case AssertTargets:
			err = assertTargets(result, assertion)
		case AssertHistory:
			err = assertHistory(result, assertion)
		case AssertVerify:
			err = assertVerify(result)
		case AssertReplay:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: replay requires a journal", i)
			} else {
				err = assertReplay(actx.Ctx, actx.Store, actx.Session, result)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
