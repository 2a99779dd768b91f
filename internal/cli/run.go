package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/compiler"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/harness"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Snapshot bool // save a snapshot after the scenario
}

// RunResult reports a journaled scenario.
type RunResult struct {
	Session     string   `json:"session"`
	Pass        bool     `json:"pass"`
	Events      int      `json:"events"`
	Instances   int      `json:"instances"`
	SnapshotSeq int64    `json:"snapshot_seq,omitempty"`
	Errors      []string `json:"errors,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run a scenario into a session database",
		Long: `Run a scenario and journal every change it makes.

The scenario's schema is stored and a session named after the scenario is
created in the SQLite database (the file is created if it doesn't exist).
Each committed, undone and redone change is appended to the session's
journal, so the final graph can later be restored with replay and inspected
with trace.

Example:
  molecule run --db ./molecule.db ./scenarios/shelf_history.scenario.yaml
  molecule run --db /tmp/test.db --snapshot ./scenarios/memo.scenario.yaml --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioInStore(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().BoolVar(&opts.Snapshot, "snapshot", false, "save a snapshot of the final graph")

	return cmd
}

func runScenarioInStore(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	// Configure logging based on verbose flag
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(formatter.GetErrWriter(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		_ = formatter.Error(ErrCodeLoadFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}
	logger.Debug("loading schema", "path", scenario.Schema)
	schema, err := compiler.LoadFile(scenario.Schema)
	if err != nil {
		return outputCompileError(formatter, convertLoadError(err))
	}

	logger.Debug("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("running scenario", "session", scenario.Name, "steps", len(scenario.Steps))
	result, err := harness.RunInStore(ctx, st, scenario, schema)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "scenario execution failed", err)
	}

	out := RunResult{
		Session:   scenario.Name,
		Pass:      result.Pass,
		Events:    len(result.Trace),
		Instances: result.Graph.Len(),
		Errors:    result.Errors,
	}
	if opts.Snapshot {
		seq, err := st.SaveSnapshot(ctx, scenario.Name, result.Graph)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to save snapshot", err)
		}
		out.SnapshotSeq = seq
		logger.Info("snapshot saved", "session", scenario.Name, "seq", seq)
	}
	logger.Info("scenario finished", "session", scenario.Name, "pass", result.Pass)

	return outputRunResult(formatter, out)
}

func outputRunResult(formatter *OutputFormatter, out RunResult) error {
	if formatter.Format == FormatJSON {
		if err := formatter.Success(out); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		mark := "✓"
		if !out.Pass {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s: %d instance(s), %d trace event(s)\n", mark, out.Session, out.Instances, out.Events)
		for _, e := range out.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
		if out.SnapshotSeq > 0 {
			fmt.Fprintf(w, "Snapshot saved at seq %d\n", out.SnapshotSeq)
		}
	}

	if !out.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", out.Session))
	}
	return nil
}
