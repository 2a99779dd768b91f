package engine

import (
	"context"
	"log/slog"
	"maps"
	"slices"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/digest"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
)

// EventKind distinguishes history events.
type EventKind int

const (
	// EventCommit is a newly committed blueprint.
	EventCommit EventKind = iota + 1
	// EventUndo is the reverse of the most recent undoable blueprint.
	EventUndo
	// EventRedo re-applies the most recently undone blueprint.
	EventRedo
	// EventApply is a blueprint applied outside history (loading, replay).
	EventApply
)

var eventKindNames = map[EventKind]string{
	EventCommit: "commit",
	EventUndo:   "undo",
	EventRedo:   "redo",
	EventApply:  "apply",
}

// String returns the lower-case event name used in logs and journals.
func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseEventKind parses the String form.
func ParseEventKind(s string) (EventKind, bool) {
	for k, name := range eventKindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// Event reports one applied change. Blueprint is the change exactly as it
// was applied: for EventUndo that is the reverse of the undone blueprint.
type Event struct {
	Seq       int64
	Kind      EventKind
	Blueprint *ir.Blueprint
}

// Engine is the single-writer live graph.
//
// Thread-safety model:
//   - Reads (Get, IDs, Len, Schema) and writes (Apply, Commit, Undo, Redo)
//     must come from one goroutine, or be serialized by the caller.
//   - Resolver() is safe from any goroutine.
//
// INVARIANTS (after every apply of a validated blueprint):
//   - every outgoing edge has a matching incoming entry and vice versa
//   - every edge endpoint is live
//   - slot counts and targets satisfy the effective slot constraints
//   - fields match the template and locked values
//
// Verify checks them explicitly.
type Engine struct {
	schema    *ir.Schema
	instances map[ir.UID]*ir.InstanceRecord
	hist      *history
	clock     *Clock
	ids       ir.UIDGenerator
	resolver  *digest.Resolver
	logger    *slog.Logger

	observers map[int]func(Event)
	nextObs   int

	maxHistory int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithIDGenerator sets the UID source for new instances and
// specializations. Default: random v4 UIDs.
func WithIDGenerator(g ir.UIDGenerator) Option {
	return func(e *Engine) {
		if g != nil {
			e.ids = g
		}
	}
}

// WithMaxHistory bounds the undo stack. Zero means unlimited.
//
// Use WithMaxHistory(100) for long interactive sessions.
// Use WithMaxHistory(1) for testing trimming.
func WithMaxHistory(n int) Option {
	return func(e *Engine) {
		e.maxHistory = n
	}
}

// WithClock sets the logical clock. Used to continue a journal's numbering.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// New creates an empty graph over a schema.
//
// The schema must not be mutated afterwards; schema edits go through
// blueprints carrying a SchemaChange.
func New(schema *ir.Schema, opts ...Option) *Engine {
	e := &Engine{
		schema:     schema,
		instances:  make(map[ir.UID]*ir.InstanceRecord),
		clock:      NewClock(),
		ids:        ir.RandomUIDs{},
		resolver:   digest.NewResolver(),
		logger:     slog.Default(),
		observers:  make(map[int]func(Event)),
		maxHistory: DefaultMaxHistory,
	}

	for _, opt := range opts {
		opt(e)
	}
	e.hist = newHistory(e.maxHistory)

	return e
}

// Schema returns the current schema. Callers must not mutate it.
func (e *Engine) Schema() *ir.Schema {
	return e.schema
}

// Resolver returns the digest cache shared by the engine's readers.
func (e *Engine) Resolver() *digest.Resolver {
	return e.resolver
}

// NewUID allocates an identifier from the engine's generator.
func (e *Engine) NewUID() ir.UID {
	return e.ids.Next()
}

// IDGenerator returns the engine's UID source.
func (e *Engine) IDGenerator() ir.UIDGenerator {
	return e.ids
}

// Clock returns the engine's logical clock.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// Logger returns the engine's logger, for collaborators that log alongside it.
func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

// Get returns a copy of a live instance.
func (e *Engine) Get(id ir.UID) (*ir.InstanceRecord, bool) {
	rec, ok := e.instances[id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Contains reports whether an instance is live.
func (e *Engine) Contains(id ir.UID) bool {
	_, ok := e.instances[id]
	return ok
}

// Len returns the number of live instances.
func (e *Engine) Len() int {
	return len(e.instances)
}

// IDs lists live instance ids in order.
func (e *Engine) IDs() []ir.UID {
	return ir.SortedKeys(e.instances)
}

// Subscribe registers an observer called after every applied blueprint.
// The returned function removes it.
func (e *Engine) Subscribe(fn func(Event)) (unsubscribe func()) {
	id := e.nextObs
	e.nextObs++
	e.observers[id] = fn
	return func() { delete(e.observers, id) }
}

func (e *Engine) notify(kind EventKind, bp *ir.Blueprint) {
	ev := Event{Seq: e.clock.Next(), Kind: kind, Blueprint: bp}
	for _, id := range slices.Sorted(maps.Keys(e.observers)) {
		e.observers[id](ev)
	}
}

// checkSchema rejects schema changes staged against another schema.
func (e *Engine) checkSchema(bp *ir.Blueprint) error {
	if bp.Schema == nil || bp.Schema.Before == e.schema {
		return nil
	}
	if bp.Schema.Before != nil && bp.Schema.Before.Version() == e.schema.Version() {
		return nil
	}
	staged := "<nil>"
	if bp.Schema.Before != nil {
		staged = bp.Schema.Before.Version()
	}
	return &StaleSchemaError{Current: e.schema.Version(), Staged: staged}
}

// Apply applies a blueprint without recording history. Used for loading
// and replay; interactive edits go through Commit.
func (e *Engine) Apply(bp *ir.Blueprint) error {
	if err := e.checkSchema(bp); err != nil {
		return err
	}
	e.apply(bp)
	e.notify(EventApply, bp)
	return nil
}

// Commit applies a blueprint, pushes it onto the undo stack and clears redo.
// Empty blueprints are ignored and leave history untouched.
func (e *Engine) Commit(bp *ir.Blueprint) error {
	if bp == nil || bp.IsEmpty() {
		e.logger.Debug("empty blueprint ignored")
		return nil
	}
	if err := e.checkSchema(bp); err != nil {
		return err
	}

	e.apply(bp)
	if e.hist.commit(bp) {
		e.logger.Debug("oldest undo entry dropped",
			"limit", e.maxHistory,
			"dropped_total", e.hist.dropped,
		)
	}

	e.logger.Info("blueprint committed",
		"added", len(bp.Added),
		"deleted", len(bp.Deleted),
		"edges_added", len(bp.AddOutgoing),
		"edges_removed", len(bp.RemoveOutgoing),
		"field_updates", len(bp.FieldUpdates),
		"schema_change", bp.Schema != nil,
	)
	recordHistory(context.Background(), EventCommit, bp.ChangeCount())
	e.notify(EventCommit, bp)
	return nil
}

// Undo reverts the most recent commit (or redo). Returns false when there
// is nothing to undo.
func (e *Engine) Undo() bool {
	bp, ok := e.hist.popUndo()
	if !ok {
		e.logger.Warn("undo with empty history")
		return false
	}
	rev := bp.Reverse()
	e.apply(rev)
	e.hist.pushRedo(bp)

	e.logger.Info("undo", "changes", bp.ChangeCount())
	recordHistory(context.Background(), EventUndo, bp.ChangeCount())
	e.notify(EventUndo, rev)
	return true
}

// Redo re-applies the most recently undone blueprint. Returns false when
// there is nothing to redo; every commit clears the redo stack.
func (e *Engine) Redo() bool {
	bp, ok := e.hist.popRedo()
	if !ok {
		e.logger.Warn("redo with empty history")
		return false
	}
	e.apply(bp)
	e.hist.pushUndo(bp)

	e.logger.Info("redo", "changes", bp.ChangeCount())
	recordHistory(context.Background(), EventRedo, bp.ChangeCount())
	e.notify(EventRedo, bp)
	return true
}

// CanUndo reports whether Undo would change anything.
func (e *Engine) CanUndo() bool {
	n, _ := e.hist.depth()
	return n > 0
}

// CanRedo reports whether Redo would change anything.
func (e *Engine) CanRedo() bool {
	_, n := e.hist.depth()
	return n > 0
}

// HistoryDepth returns the undo and redo stack sizes.
func (e *Engine) HistoryDepth() (undo, redo int) {
	return e.hist.depth()
}
