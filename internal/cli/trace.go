package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/engine"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string
	Kind     string // optional - filter to one event kind
}

// TraceEntry represents a single journal entry in the timeline.
type TraceEntry struct {
	Seq          int64    `json:"seq"`
	Kind         string   `json:"kind"`
	Hash         string   `json:"hash"`
	Added        []string `json:"added,omitempty"`
	Deleted      []string `json:"deleted,omitempty"`
	EdgesAdded   int      `json:"edges_added"`
	EdgesRemoved int      `json:"edges_removed"`
	FieldUpdates []string `json:"field_updates,omitempty"`
	SchemaChange string   `json:"schema_change,omitempty"` // "before -> after" versions
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Session    string       `json:"session"`
	BaseSchema string       `json:"base_schema"`
	Timeline   []TraceEntry `json:"timeline"`
	Stats      TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the journal.
type TraceStats struct {
	TotalEvents   int `json:"total_events"`
	Commits       int `json:"commits"`
	Undos         int `json:"undos"`
	Redos         int `json:"redos"`
	Applies       int `json:"applies"`
	SchemaChanges int `json:"schema_changes"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the journal of a session",
		Long: `Show the journaled changes of a session in order.

Each entry lists the instances it added and deleted, its edge changes, its
field updates and any schema change it carried. Undo entries hold the
reversed change, so they read as the opposite of what they undid.

Examples:
  molecule trace --db ./molecule.db --session shelf_history
  molecule trace --db ./molecule.db --session shelf_history --kind undo
  molecule trace --db ./molecule.db --session shelf_history --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session to trace (required)")
	_ = cmd.MarkFlagRequired("session")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter to one event kind (commit, undo, redo, apply)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	var kind engine.EventKind
	if opts.Kind != "" {
		k, ok := engine.ParseEventKind(opts.Kind)
		if !ok {
			msg := fmt.Sprintf("invalid kind %q: must be commit, undo, redo or apply", opts.Kind)
			_ = formatter.Error(ErrCodeGeneric, msg, nil)
			return NewExitError(ExitCommandError, msg)
		}
		kind = k
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	sess, err := st.GetSession(ctx, opts.Session)
	if err != nil {
		return outputSessionError(formatter, opts.Session, err)
	}
	schema, err := st.GetSchema(ctx, sess.BaseSchema)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read base schema", err)
	}

	entries, err := st.ReadJournal(ctx, opts.Session, 0)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}
	formatter.VerboseLog("Read %d journal entries", len(entries))

	result := buildTrace(sess, schema, entries, kind)

	if opts.Format == FormatJSON {
		return outputTraceJSON(formatter, result)
	}
	return outputTraceText(formatter, result, opts.Verbose)
}

// buildTrace converts journal entries to timeline entries. Names are resolved
// against the schema in force at each entry. When kind is set, only entries
// of that kind appear in the timeline; stats always count every entry.
func buildTrace(sess store.Session, schema *ir.Schema, entries []store.JournalEntry, kind engine.EventKind) TraceResult {
	result := TraceResult{
		Session:    sess.ID,
		BaseSchema: sess.BaseSchema,
		Timeline:   []TraceEntry{},
	}

	for _, entry := range entries {
		bp := entry.Blueprint
		result.Stats.TotalEvents++
		switch entry.Kind {
		case engine.EventCommit:
			result.Stats.Commits++
		case engine.EventUndo:
			result.Stats.Undos++
		case engine.EventRedo:
			result.Stats.Redos++
		case engine.EventApply:
			result.Stats.Applies++
		}
		if bp.Schema != nil {
			result.Stats.SchemaChanges++
		}

		if kind == 0 || entry.Kind == kind {
			result.Timeline = append(result.Timeline, traceEntry(schema, entry))
		}
		if bp.Schema != nil {
			schema = bp.Schema.After
		}
	}

	return result
}

func traceEntry(schema *ir.Schema, entry store.JournalEntry) TraceEntry {
	bp := entry.Blueprint
	te := TraceEntry{
		Seq:          entry.Seq,
		Kind:         entry.Kind.String(),
		Hash:         entry.Hash,
		EdgesAdded:   len(bp.AddOutgoing),
		EdgesRemoved: len(bp.RemoveOutgoing),
	}
	for _, rec := range bp.Added {
		te.Added = append(te.Added, describeRecord(schema, rec))
	}
	for _, rec := range bp.Deleted {
		te.Deleted = append(te.Deleted, describeRecord(schema, rec))
	}
	for _, fe := range bp.FieldUpdates {
		te.FieldUpdates = append(te.FieldUpdates, describeFieldEdit(schema, fe))
	}
	if bp.Schema != nil {
		te.SchemaChange = fmt.Sprintf("%s -> %s", truncateID(bp.Schema.Before.Version()), truncateID(bp.Schema.After.Version()))
	}
	return te
}

// describeRecord renders a record as operative:id.
func describeRecord(schema *ir.Schema, rec *ir.InstanceRecord) string {
	return fmt.Sprintf("%s:%s", operativeName(schema, rec.OperativeID), truncateID(rec.ID.String()))
}

// describeFieldEdit renders a field edit as id.field: prev -> new.
func describeFieldEdit(schema *ir.Schema, fe ir.FieldEdit) string {
	field := fe.FieldID.String()
	for _, tmpl := range schema.Templates {
		if fc, ok := tmpl.FieldConstraints[fe.FieldID]; ok {
			field = fc.Tag.Name
			break
		}
	}
	return fmt.Sprintf("%s.%s: %s -> %s", truncateID(fe.InstanceID.String()), field, formatOptional(fe.Prev), formatOptional(fe.New))
}

func formatOptional(v ir.Value) string {
	if v == nil {
		return "(unset)"
	}
	return ir.FormatValue(v)
}

// outputTraceJSON outputs the trace result as JSON.
func outputTraceJSON(formatter *OutputFormatter, result TraceResult) error {
	response := CLIResponse{
		Status:  "ok",
		Data:    result,
		Session: result.Session,
	}

	return formatter.Respond(response)
}

// outputTraceText outputs the trace result as text.
func outputTraceText(formatter *OutputFormatter, result TraceResult, verbose bool) error {
	w := formatter.Writer

	fmt.Fprintf(w, "Trace for Session: %s\n", result.Session)
	fmt.Fprintf(w, "Base Schema: %s\n", truncateID(result.BaseSchema))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	} else {
		for _, entry := range result.Timeline {
			formatTraceEntry(w, entry, verbose)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events:   %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Commits:        %d\n", result.Stats.Commits)
	fmt.Fprintf(w, "  Undos:          %d\n", result.Stats.Undos)
	fmt.Fprintf(w, "  Redos:          %d\n", result.Stats.Redos)
	fmt.Fprintf(w, "  Applies:        %d\n", result.Stats.Applies)
	fmt.Fprintf(w, "  Schema Changes: %d\n", result.Stats.SchemaChanges)

	return nil
}

// formatTraceEntry formats a single journal entry for text output.
func formatTraceEntry(w io.Writer, entry TraceEntry, verbose bool) {
	fmt.Fprintf(w, "  [%d] %s +%d -%d edges +%d -%d fields %d\n",
		entry.Seq, strings.ToUpper(entry.Kind),
		len(entry.Added), len(entry.Deleted),
		entry.EdgesAdded, entry.EdgesRemoved,
		len(entry.FieldUpdates))
	if entry.SchemaChange != "" {
		fmt.Fprintf(w, "       Schema: %s\n", entry.SchemaChange)
	}
	if !verbose {
		return
	}
	for _, a := range entry.Added {
		fmt.Fprintf(w, "       + %s\n", a)
	}
	for _, d := range entry.Deleted {
		fmt.Fprintf(w, "       - %s\n", d)
	}
	for _, f := range entry.FieldUpdates {
		fmt.Fprintf(w, "       ~ %s\n", f)
	}
	fmt.Fprintf(w, "       Hash: %s\n", truncateID(entry.Hash))
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
