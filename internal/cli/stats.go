package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/epmem/internal/engine"
)

// statsOutput is the stats command payload.
type statsOutput struct {
	Stats  engine.Stats        `json:"stats"`
	Tables []engine.TableCount `json:"tables"`
}

// Lines implements lineOutput.
func (o statsOutput) Lines() []string {
	s := o.Stats
	lines := []string{
		fmt.Sprintf("episodes: %d", s.Episodes),
		fmt.Sprintf("next id: %d", s.NextID),
		fmt.Sprintf("long-term identifiers: %d", s.LTIs),
		fmt.Sprintf("hash generation: %d", s.HashGeneration),
		fmt.Sprintf("node rit: offset=%d left_root=%d right_root=%d min_step=%d",
			s.NodeRIT.Offset, s.NodeRIT.LeftRoot, s.NodeRIT.RightRoot, s.NodeRIT.MinStep),
		fmt.Sprintf("edge rit: offset=%d left_root=%d right_root=%d min_step=%d",
			s.EdgeRIT.Offset, s.EdgeRIT.LeftRoot, s.EdgeRIT.RightRoot, s.EdgeRIT.MinStep),
		"tables:",
	}
	for _, t := range o.Tables {
		lines = append(lines, fmt.Sprintf("  %-22s %d", t.Table, t.Rows))
	}
	return lines
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print store counters",
		Long: `Print the episode count, RIT layouts and the row count of every table.

Example:
  epmem stats --db ./episodes.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(rootOpts, cmd)
		},
	}
	return cmd
}

func runStats(opts *RootOptions, cmd *cobra.Command) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	eng, _, err := opts.openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	tables, err := eng.TableCounts(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to count tables", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Success(statsOutput{Stats: eng.Stats(), Tables: tables})
}
