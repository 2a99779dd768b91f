package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions are the persistent flags every subcommand sees.
type RootOptions struct {
	Verbose bool
	Format  string
}

// ValidFormats lists the values --format accepts.
var ValidFormats = []string{FormatText, FormatJSON}

// NewRootCommand assembles the molecule command tree. Subcommands share one
// RootOptions, filled in by cobra before any RunE runs.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "molecule",
		Short: "molecule - constraint-schema graph engine",
		Long: `Compile constraint schemas, inspect operative digests, and run
scenarios against a graph whose every edit is checked against its schema.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", FormatText, "output format (json|text)")

	// Schema commands first, then the ones that work on scenarios and
	// journals.
	cmd.AddCommand(
		NewCompileCommand(opts),
		NewValidateCommand(opts),
		NewDigestCommand(opts),
		NewRunCommand(opts),
		NewReplayCommand(opts),
		NewTestCommand(opts),
		NewTraceCommand(opts),
	)

	return cmd
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
