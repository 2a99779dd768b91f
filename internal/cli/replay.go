package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/engine"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Session  string // optional - specific session only
	Snapshot bool   // save a snapshot of each restored graph
}

// ReplaySessionResult holds the replay result for a single session.
type ReplaySessionResult struct {
	Session       string `json:"session"`
	Instances     int    `json:"instances"`
	LastSeq       int64  `json:"last_seq"`
	SchemaVersion string `json:"schema_version"`
	SnapshotSeq   int64  `json:"snapshot_seq,omitempty"`
	Consistent    bool   `json:"consistent"`
	Deterministic bool   `json:"deterministic"`
	Error         string `json:"error,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Sessions         []ReplaySessionResult `json:"sessions"`
	TotalSessions    int                   `json:"total_sessions"`
	AllDeterministic bool                  `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Restore sessions and verify determinism",
		Long: `Restore stored sessions from their snapshot and journal.

Each session is restored twice and the two graphs are compared. A session
passes when both restores succeed, agree instance for instance, and the
restored graph satisfies every schema constraint.

Exit codes:
  0 - All sessions restore deterministically
  1 - A journal does not replay, or two restores differ
  2 - Command error (database not found, unknown session, etc.)

Examples:
  molecule replay --db ./molecule.db
  molecule replay --db ./molecule.db --session shelf_history
  molecule replay --db ./molecule.db --snapshot --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "replay specific session only")
	cmd.Flags().BoolVar(&opts.Snapshot, "snapshot", false, "save a snapshot of each restored session")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	var sessions []string
	if opts.Session != "" {
		if _, err := st.GetSession(ctx, opts.Session); err != nil {
			return outputSessionError(formatter, opts.Session, err)
		}
		sessions = []string{opts.Session}
	} else {
		all, err := st.ListSessions(ctx)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to list sessions", err)
		}
		for _, s := range all {
			sessions = append(sessions, s.ID)
		}
	}

	if len(sessions) == 0 {
		if opts.Format == FormatJSON {
			return outputReplayJSON(formatter, ReplayResult{
				Sessions:         []ReplaySessionResult{},
				AllDeterministic: true,
			})
		}
		fmt.Fprintln(formatter.Writer, "No sessions found in database.")
		return nil
	}

	result := ReplayResult{
		Sessions:         make([]ReplaySessionResult, 0, len(sessions)),
		TotalSessions:    len(sessions),
		AllDeterministic: true,
	}
	for _, id := range sessions {
		formatter.VerboseLog("Restoring session %s", id)
		sr, err := replaySession(ctx, st, id, opts.Snapshot)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay session %s", id), err)
		}
		if !sr.Deterministic || !sr.Consistent {
			result.AllDeterministic = false
		}
		result.Sessions = append(result.Sessions, sr)
	}

	if opts.Format == FormatJSON {
		return outputReplayJSON(formatter, result)
	}
	return outputReplayText(formatter, result, opts.Verbose)
}

// outputSessionError reports a session lookup failure.
func outputSessionError(formatter *OutputFormatter, session string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		msg := fmt.Sprintf("unknown session %q", session)
		_ = formatter.Error(ErrCodeUnknownSession, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}
	_ = formatter.Error(ErrCodeStore, err.Error(), nil)
	return WrapExitError(ExitCommandError, "failed to read session", err)
}

// replaySession restores a session twice and compares the graphs. Replay
// failures are reported in the result; only store errors are returned.
func replaySession(ctx context.Context, st *store.Store, id string, snapshot bool) (ReplaySessionResult, error) {
	sr := ReplaySessionResult{Session: id}

	last, err := st.LastSeq(ctx, id)
	if err != nil {
		return sr, err
	}
	sr.LastSeq = last

	quiet := engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	first, err := st.Restore(ctx, id, quiet)
	if err != nil {
		sr.Error = err.Error()
		return sr, nil
	}
	second, err := st.Restore(ctx, id, quiet)
	if err != nil {
		sr.Error = err.Error()
		return sr, nil
	}

	sr.Instances = first.Len()
	sr.SchemaVersion = first.Schema().Version()
	sr.Deterministic = sameGraph(first, second)
	if err := first.Verify(); err != nil {
		sr.Error = err.Error()
	} else {
		sr.Consistent = true
	}

	if snapshot {
		seq, err := st.SaveSnapshot(ctx, id, first)
		if err != nil {
			return sr, err
		}
		sr.SnapshotSeq = seq
	} else if snap, err := st.LatestSnapshot(ctx, id); err == nil {
		sr.SnapshotSeq = snap.Seq
	} else if !errors.Is(err, sql.ErrNoRows) {
		return sr, err
	}

	return sr, nil
}

// sameGraph reports whether two engines hold the same instances under the
// same schema.
func sameGraph(a, b *engine.Engine) bool {
	if a.Schema().Version() != b.Schema().Version() {
		return false
	}
	ids := a.IDs()
	if !slices.Equal(ids, b.IDs()) {
		return false
	}
	for _, id := range ids {
		ra, _ := a.Get(id)
		rb, _ := b.Get(id)
		if !ra.Equal(rb) {
			return false
		}
	}
	return true
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(formatter *OutputFormatter, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.AllDeterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeReplayFailed,
			Message: "replay verification failed",
		}
	}

	if err := formatter.Respond(response); err != nil {
		return err
	}

	if !result.AllDeterministic {
		// Replay failure = exit code 1
		return NewExitError(ExitFailure, "replay verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(formatter *OutputFormatter, result ReplayResult, verbose bool) error {
	w := formatter.Writer

	fmt.Fprintf(w, "Replay Summary: %d session(s)\n", result.TotalSessions)
	fmt.Fprintln(w)

	for _, s := range result.Sessions {
		status := "✓"
		if !s.Deterministic || !s.Consistent {
			status = "✗"
		}

		fmt.Fprintf(w, "%s Session: %s\n", status, s.Session)
		fmt.Fprintf(w, "  Instances: %d, last seq %d\n", s.Instances, s.LastSeq)
		if verbose {
			fmt.Fprintf(w, "  Schema: %s\n", s.SchemaVersion)
			if s.SnapshotSeq > 0 {
				fmt.Fprintf(w, "  Snapshot: seq %d\n", s.SnapshotSeq)
			}
		}

		if s.Error != "" {
			fmt.Fprintf(w, "  Error: %s\n", s.Error)
		} else if !s.Deterministic {
			fmt.Fprintln(w, "  Warning: Non-deterministic replay detected!")
		}
		fmt.Fprintln(w)
	}

	if result.AllDeterministic {
		fmt.Fprintln(w, "✓ All sessions verified deterministic")
		return nil
	}

	fmt.Fprintln(w, "✗ Replay verification failed")
	// Replay failure = exit code 1
	return NewExitError(ExitFailure, "replay verification failed")
}
