package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/digest"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/specialize"
)

// DigestResult is the flattened view of one operative.
type DigestResult struct {
	Operative    string            `json:"operative"`
	Template     string            `json:"template"`
	Ancestry     []string          `json:"ancestry"`
	LockedFields []LockedFieldView `json:"locked_fields"`
	Slots        []SlotView        `json:"slots"`
	Traits       []string          `json:"traits"`
}

// LockedFieldView is one locked field and the operative that locks it.
type LockedFieldView struct {
	Field    string `json:"field"`
	Value    string `json:"value"`
	LockedBy string `json:"locked_by"`
}

// SlotView is one slot with its effective bound and the operatives it admits.
type SlotView struct {
	Slot    string   `json:"slot"`
	Bound   string   `json:"bound"`
	Admits  []string `json:"admits"`
	Library []string `json:"library,omitempty"`
}

// NewDigestCommand creates the digest command.
func NewDigestCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "digest <schema> [operative...]",
		Short: "Show the effective constraints of operatives",
		Long: `Show what an operative inherits: its ancestry, the fields locked along
it, every slot with the bound and target types that apply after
specialization, and the traits it implements.

With no operative names, every operative in the schema is shown.

Examples:
  molecule digest ./schema
  molecule digest ./schema.cue memo shelf --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDigest(rootOpts, args[0], args[1:], cmd)
		},
	}

	return cmd
}

func runDigest(opts *RootOptions, path string, names []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	loaded, err := LoadSchema(path)
	if err != nil {
		return outputCompileError(formatter, err)
	}
	s := loaded.Schema

	var ids []ir.UID
	if len(names) == 0 {
		ids = ir.SortedKeys(s.Operatives)
	}
	for _, name := range names {
		op, ok := s.OperativeByName(name)
		if !ok {
			_ = formatter.Error(ErrCodeUnknownOperative, fmt.Sprintf("unknown operative %q", name), nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("unknown operative %q", name))
		}
		ids = append(ids, op.Tag.ID)
	}

	r := digest.NewResolver()
	results := make([]DigestResult, 0, len(ids))
	for _, id := range ids {
		res, err := digestOperative(s, r, id)
		if err != nil {
			_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitFailure, "digest failed", err)
		}
		results = append(results, res)
	}
	hits, misses := r.Stats()
	formatter.VerboseLog("Digest cache: %d hit(s), %d miss(es)", hits, misses)

	if opts.Format == FormatJSON {
		return formatter.Success(results)
	}
	outputDigestText(formatter, results)
	return nil
}

func digestOperative(s *ir.Schema, r *digest.Resolver, id ir.UID) (DigestResult, error) {
	d, err := r.Operative(s, id)
	if err != nil {
		return DigestResult{}, err
	}
	op, _ := s.Operative(id)
	tmpl, _ := s.Template(d.TemplateID)

	res := DigestResult{
		Operative:    op.Tag.Name,
		Template:     tmpl.Tag.Name,
		Ancestry:     make([]string, 0, len(d.Ancestry)),
		LockedFields: []LockedFieldView{},
		Slots:        []SlotView{},
		Traits:       []string{},
	}
	for _, a := range d.Ancestry {
		res.Ancestry = append(res.Ancestry, operativeName(s, a))
	}
	for _, fieldID := range ir.SortedKeys(d.LockedFields) {
		lf := d.LockedFields[fieldID]
		res.LockedFields = append(res.LockedFields, LockedFieldView{
			Field:    tmpl.FieldConstraints[fieldID].Tag.Name,
			Value:    ir.FormatValue(lf.Value),
			LockedBy: operativeName(s, lf.FulfilledBy),
		})
	}

	slots, err := specialize.Slots(s, id)
	if err != nil {
		return DigestResult{}, err
	}
	for _, slotID := range ir.SortedKeys(slots) {
		c := slots[slotID]
		view := SlotView{Slot: c.Slot.Tag.Name, Bound: c.Bound.String(), Admits: []string{}}
		for _, cand := range ir.SortedKeys(s.Operatives) {
			if ok, err := c.Admits(s, r, cand); err == nil && ok {
				view.Admits = append(view.Admits, operativeName(s, cand))
			}
		}
		for _, inst := range d.Slots[slotID].RelatedInstances {
			if li, ok := s.LibraryInstance(inst); ok {
				view.Library = append(view.Library, li.Tag.Name)
			}
		}
		slices.Sort(view.Admits)
		res.Slots = append(res.Slots, view)
	}
	slices.SortFunc(res.Slots, func(a, b SlotView) int { return strings.Compare(a.Slot, b.Slot) })

	for _, t := range d.Traits() {
		if tr, ok := s.Trait(t); ok {
			res.Traits = append(res.Traits, tr.Tag.Name)
		}
	}
	slices.Sort(res.Traits)
	return res, nil
}

func operativeName(s *ir.Schema, id ir.UID) string {
	if op, ok := s.Operative(id); ok {
		return op.Tag.Name
	}
	return id.String()
}

func outputDigestText(formatter *OutputFormatter, results []DigestResult) {
	w := formatter.Writer
	for i, res := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s (template %s)\n", res.Operative, res.Template)
		fmt.Fprintf(w, "  Ancestry: %s\n", strings.Join(res.Ancestry, " → "))
		for _, lf := range res.LockedFields {
			fmt.Fprintf(w, "  Locked: %s = %s (by %s)\n", lf.Field, lf.Value, lf.LockedBy)
		}
		for _, sv := range res.Slots {
			fmt.Fprintf(w, "  Slot %s: %s of %s\n", sv.Slot, sv.Bound, strings.Join(sv.Admits, " | "))
			if len(sv.Library) > 0 {
				fmt.Fprintf(w, "    Library: %s\n", strings.Join(sv.Library, ", "))
			}
		}
		if len(res.Traits) > 0 {
			fmt.Fprintf(w, "  Traits: %s\n", strings.Join(res.Traits, ", "))
		}
	}
}
