package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/epmem/internal/engine"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Anchor   string
	Cue      string
	Neg      string
	Before   int64
	After    int64
	Prohibit []int64
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Find the episode that best matches a cue",
		Long: `Find the recorded episode that best matches a cue and print it.

Cues are working-memory triples rooted at their first identifier. Variables
such as <q> become fresh identifiers.

Exit codes:
  0 - Match printed
  1 - No episode matches
  2 - Command error (malformed cue, bad bounds, unreadable database)

Examples:
  epmem query --db ./episodes.db --cue "(<q> ^item <i>)(<i> ^color red)"
  epmem query --db ./episodes.db --cue "(<q> ^a 1)" --neg "(<n> ^flag on)" --before 40
  epmem query --db ./episodes.db --cue "(<q> ^a 1)" --prohibit 7 --prohibit 9`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, cmd)
		},
	}

	anchorFlag(cmd, &opts.Anchor)
	cmd.Flags().StringVar(&opts.Cue, "cue", "", "positive cue (required)")
	cmd.Flags().StringVar(&opts.Neg, "neg", "", "negative cue")
	cmd.Flags().Int64Var(&opts.Before, "before", 0, "only consider episodes before this one")
	cmd.Flags().Int64Var(&opts.After, "after", 0, "only consider episodes after this one")
	cmd.Flags().Int64SliceVar(&opts.Prohibit, "prohibit", nil, "never return this episode (repeatable)")
	_ = cmd.MarkFlagRequired("cue")

	return cmd
}

func runQuery(opts *QueryOptions, cmd *cobra.Command) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	eng, mem, err := opts.openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	anchor, err := newAnchor(mem, opts.Anchor)
	if err != nil {
		return err
	}

	req := engine.QueryRequest{Before: opts.Before, After: opts.After, Prohibit: opts.Prohibit}
	if req.Pos, err = mem.AddText(opts.Cue); err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("invalid cue %q", opts.Cue), err)
	}
	if opts.Neg != "" {
		if req.Neg, err = mem.AddText(opts.Neg); err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("invalid negative cue %q", opts.Neg), err)
		}
	}

	return report(cmd, opts.RootOptions, eng.Query(ctx, anchor, req), mem, anchor)
}
