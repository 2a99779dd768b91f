package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/builder"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/compiler"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/engine"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/specialize"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/store"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/testutil"
)

// ScenarioError reports a scenario that cannot be executed as written: an
// unknown operative, field, slot or instance name. Graph rejections are not
// ScenarioErrors; they are compared against the step's expect clause.
type ScenarioError struct {
	Step    int
	Message string
}

func (e *ScenarioError) Error() string {
	return fmt.Sprintf("step %d: %s", e.Step, e.Message)
}

// errNothing is returned by undo and redo steps with an empty stack.
var errNothing = errors.New("history stack is empty")

// Harness is the test execution engine.
// It runs one scenario against a fresh graph with deterministic ids, and
// journals every applied blueprint into an in-memory store.
type Harness struct {
	engine *engine.Engine
	result *Result
	logger *slog.Logger
	step   int
}

// Run loads the scenario's schema and executes the scenario.
func Run(scenario *Scenario) (*Result, error) {
	schema, err := compiler.LoadFile(scenario.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	return RunWithSchema(scenario, schema)
}

// RunWithSchema executes a scenario against an already loaded schema,
// journaling into a fresh in-memory store.
func RunWithSchema(scenario *Scenario, schema *ir.Schema) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	return RunInStore(context.Background(), st, scenario, schema)
}

// RunInStore executes a scenario and journals it into st under a session
// named after the scenario. The session must not have a journal yet.
//
// Execution flow:
// 1. Create the session over the scenario's schema
// 2. Create an engine whose events are journaled and traced
// 3. Execute steps, comparing each outcome with its expect clause
// 4. Evaluate assertions against the final graph
func RunInStore(ctx context.Context, st *store.Store, scenario *Scenario, schema *ir.Schema) (*Result, error) {
	if err := st.CreateSession(ctx, scenario.Name, schema); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	last, err := st.LastSeq(ctx, scenario.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if last > 0 {
		return nil, fmt.Errorf("session %q already has a journal", scenario.Name)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	h := &Harness{
		engine: engine.New(schema,
			engine.WithLogger(logger),
			engine.WithIDGenerator(testutil.NewDeterministicUIDs(1)),
		),
		result: NewResult(),
		logger: logger,
	}
	h.result.Graph = h.engine

	rec := st.Record(ctx, scenario.Name, h.engine)
	h.engine.Subscribe(func(ev engine.Event) {
		h.result.Trace = append(h.result.Trace, traceEvent(h.step, ev))
	})

	for i := range scenario.Steps {
		h.step = i + 1
		if err := h.runStep(&scenario.Steps[i]); err != nil {
			_ = rec.Close()
			return nil, err
		}
	}

	if err := rec.Close(); err != nil {
		return nil, fmt.Errorf("failed to journal scenario: %w", err)
	}

	actx := &AssertionContext{Store: st, Ctx: ctx, Session: scenario.Name}
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(msg)
	}

	return h.result, nil
}

// runStep executes one step and records whether it behaved as expected.
// Only ScenarioErrors are returned.
func (h *Harness) runStep(s *Step) error {
	err := h.apply(s)
	var se *ScenarioError
	if errors.As(err, &se) {
		return se
	}

	action := s.action()
	switch {
	case err == nil && s.Expect.rejects():
		h.result.AddError(fmt.Sprintf("step %d (%s): expected rejection, step succeeded", h.step, action))
	case err == nil:
	case !s.Expect.rejects():
		h.result.AddRejected(h.step, ir.Codes(err))
		h.result.AddError(fmt.Sprintf("step %d (%s): %v", h.step, action, err))
	default:
		codes := ir.Codes(err)
		h.result.AddRejected(h.step, codes)
		for _, want := range s.Expect.Codes {
			if !slices.Contains(codes, ir.ErrorCode(want)) {
				h.result.AddError(fmt.Sprintf("step %d (%s): expected code %s, got %v", h.step, action, want, codes))
			}
		}
	}

	h.logger.Info("step completed",
		"step", h.step,
		"action", action,
		"rejected", err != nil,
	)
	return nil
}

func (h *Harness) apply(s *Step) error {
	switch {
	case s.Build != nil:
		return h.build(s.Build)
	case s.Edit != nil:
		return h.edit(s.Edit)
	case s.Delete != nil:
		return h.delete(s.Delete)
	case s.Undo:
		if !h.engine.Undo() {
			return errNothing
		}
	case s.Redo:
		if !h.engine.Redo() {
			return errNothing
		}
	case s.Lock != nil:
		return h.lock(s.Lock)
	case s.Narrow != nil:
		return h.narrow(s.Narrow)
	}
	return nil
}

func (h *Harness) fail(format string, args ...any) error {
	return &ScenarioError{Step: h.step, Message: fmt.Sprintf(format, args...)}
}

func (h *Harness) schema() *ir.Schema {
	return h.engine.Schema()
}

// named collects the builders of one step that declare a name, so the
// names can be bound once the step commits.
type named map[string]*builder.Builder

func (h *Harness) build(b *BuildStep) error {
	names := make(named)
	root, err := h.newBuilder(b, names)
	if err != nil {
		return err
	}
	return h.execute(root, names)
}

func (h *Harness) execute(b *builder.Builder, names named) error {
	if _, err := b.Execute(); err != nil {
		return err
	}
	for name, nb := range names {
		h.result.Names[name] = nb.ID()
	}
	return nil
}

// newBuilder builds the tree for a new instance and its nested targets.
func (h *Harness) newBuilder(b *BuildStep, names named) (*builder.Builder, error) {
	op, ok := h.schema().OperativeByName(b.Operative)
	if !ok {
		return nil, h.fail("unknown operative %q", b.Operative)
	}
	tmpl, ok := h.schema().TemplateOf(op.Tag.ID)
	if !ok {
		return nil, h.fail("operative %q has no template", b.Operative)
	}

	bl := builder.New(h.engine, op.Tag.ID)
	if b.As != "" {
		if _, taken := h.result.Names[b.As]; taken {
			return nil, h.fail("name %q is already bound", b.As)
		}
		if _, taken := names[b.As]; taken {
			return nil, h.fail("name %q is declared twice", b.As)
		}
		names[b.As] = bl
		bl.SetTempID(b.As)
	}

	if err := h.setFields(bl, tmpl, b.Fields); err != nil {
		return nil, err
	}
	if err := h.addTargets(bl, tmpl, b.Add, names); err != nil {
		return nil, err
	}
	return bl, nil
}

func (h *Harness) setFields(bl *builder.Builder, tmpl *ir.Template, fields map[string]any) error {
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		fc, ok := tmpl.FieldByName(name)
		if !ok {
			return h.fail("template %s has no field %q", tmpl.Tag.Name, name)
		}
		v, err := ir.FromGo(fc.ValueType, fields[name])
		if err != nil {
			return h.fail("field %q: %v", name, err)
		}
		bl.SetField(fc.Tag.ID, v)
	}
	return nil
}

func (h *Harness) addTargets(bl *builder.Builder, tmpl *ir.Template, add map[string][]Target, names named) error {
	for _, slotName := range slices.Sorted(maps.Keys(add)) {
		slot, ok := tmpl.SlotByName(slotName)
		if !ok {
			return h.fail("template %s has no slot %q", tmpl.Tag.Name, slotName)
		}
		for _, t := range add[slotName] {
			if t.New != nil {
				child, err := h.newBuilder(t.New, names)
				if err != nil {
					return err
				}
				bl.AddOutgoing(slot.Tag.ID, child.Ref(), child)
				continue
			}
			bl.AddOutgoing(slot.Tag.ID, h.ref(t.Ref))
		}
	}
	return nil
}

// ref resolves a target name: a bound instance, or a temporary id naming an
// instance declared in the same step.
func (h *Harness) ref(name string) builder.BlueprintID {
	if id, ok := h.result.Names[name]; ok {
		return builder.Existing(id)
	}
	return builder.Temporary(name)
}

func (h *Harness) lookup(name string) (ir.UID, error) {
	id, ok := h.result.Names[name]
	if !ok {
		return ir.UID{}, h.fail("unknown instance %q", name)
	}
	return id, nil
}

func (h *Harness) edit(e *EditStep) error {
	id, err := h.lookup(e.Instance)
	if err != nil {
		return err
	}
	rec, ok := h.engine.Get(id)
	if !ok {
		return ir.OutgoingElementDoesNotExist(id)
	}
	tmpl, ok := h.schema().Template(rec.TemplateID)
	if !ok {
		return h.fail("instance %q has no template", e.Instance)
	}

	names := make(named)
	bl := builder.Edit(h.engine, id)
	if err := h.setFields(bl, tmpl, e.Fields); err != nil {
		return err
	}
	if err := h.addTargets(bl, tmpl, e.Add, names); err != nil {
		return err
	}
	for _, slotName := range slices.Sorted(maps.Keys(e.Remove)) {
		slot, ok := tmpl.SlotByName(slotName)
		if !ok {
			return h.fail("template %s has no slot %q", tmpl.Tag.Name, slotName)
		}
		for _, target := range e.Remove[slotName] {
			tid, err := h.lookup(target)
			if err != nil {
				return err
			}
			bl.RemoveFrom(slot.Tag.ID, tid)
		}
	}
	return h.execute(bl, names)
}

func (h *Harness) delete(d *DeleteStep) error {
	id, err := h.lookup(d.Instance)
	if err != nil {
		return err
	}
	bl := builder.Edit(h.engine, id)
	if d.Recursive {
		bl.DeleteRecursive()
	} else {
		bl.Delete()
	}
	return h.execute(bl, nil)
}

func (h *Harness) lock(l *LockStep) error {
	op, ok := h.schema().OperativeByName(l.Operative)
	if !ok {
		return h.fail("unknown operative %q", l.Operative)
	}
	tmpl, _ := h.schema().TemplateOf(op.Tag.ID)
	fc, ok := tmpl.FieldByName(l.Field)
	if !ok {
		return h.fail("template %s has no field %q", tmpl.Tag.Name, l.Field)
	}
	v, err := ir.FromGo(fc.ValueType, l.Value)
	if err != nil {
		return h.fail("lock %q: %v", l.Field, err)
	}
	bp, err := specialize.NewEditor(h.engine, h.engine.IDGenerator()).LockField(op.Tag.ID, fc.Tag.ID, v)
	if err != nil {
		return err
	}
	return h.engine.Commit(bp)
}

func (h *Harness) narrow(n *NarrowStep) error {
	op, ok := h.schema().OperativeByName(n.Operative)
	if !ok {
		return h.fail("unknown operative %q", n.Operative)
	}
	tmpl, _ := h.schema().TemplateOf(op.Tag.ID)
	slot, ok := tmpl.SlotByName(n.Slot)
	if !ok {
		return h.fail("template %s has no slot %q", tmpl.Tag.Name, n.Slot)
	}
	bound, err := ir.ParseSlotBound(n.Bound)
	if err != nil {
		return h.fail("narrow %q: %v", n.Slot, err)
	}
	bp, err := specialize.NewEditor(h.engine, h.engine.IDGenerator()).NarrowSlot(op.Tag.ID, slot.Tag.ID, bound)
	if err != nil {
		return err
	}
	return h.engine.Commit(bp)
}
