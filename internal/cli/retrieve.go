package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// RetrieveOptions holds flags for the retrieve command.
type RetrieveOptions struct {
	*RootOptions
	Anchor string
	// Step is "", "next" or "previous": retrieve the episode, then step.
	Step string
}

// NewRetrieveCommand creates the retrieve command.
func NewRetrieveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RetrieveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "retrieve <episode>",
		Short: "Rebuild a recorded episode",
		Long: `Rebuild a recorded episode under an empty anchor and print it.

With --step next or --step previous the neighbouring episode is printed
instead.

Exit codes:
  0 - Episode printed
  1 - No such episode
  2 - Command error (bad episode number, unreadable database)

Examples:
  epmem retrieve --db ./episodes.db 12
  epmem retrieve --db ./episodes.db 12 --step next --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			episode, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return WrapExitError(ExitCommandError, fmt.Sprintf("invalid episode %q", args[0]), err)
			}
			return runRetrieve(opts, episode, cmd)
		},
	}

	anchorFlag(cmd, &opts.Anchor)
	cmd.Flags().StringVar(&opts.Step, "step", "", "after retrieving, step to the next or previous episode")

	return cmd
}

func runRetrieve(opts *RetrieveOptions, episode int64, cmd *cobra.Command) error {
	switch opts.Step {
	case "", "next", "previous":
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid step %q: must be next or previous", opts.Step))
	}

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

	res := eng.Retrieve(ctx, anchor, episode)
	if res.Err == nil {
		switch opts.Step {
		case "next":
			res = eng.Next(ctx, anchor)
		case "previous":
			res = eng.Previous(ctx, anchor)
		}
	}
	return report(cmd, opts.RootOptions, res, mem, anchor)
}
