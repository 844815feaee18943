package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/epmem/internal/config"
	"github.com/roach88/epmem/internal/harness"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a scenario and print its transcript",
		Long: `Run a scenario of ticks and commands and print one line per step.

Scenarios run on a fresh in-memory database unless --db names a file, in
which case the episodes are recorded there and remain after the run.

Exit codes:
  0 - Every expectation and assertion held
  1 - The scenario failed
  2 - Command error (unreadable or invalid scenario)

Examples:
  epmem run ./scenarios/basic_store_retrieve.yaml
  epmem run --db ./episodes.db ./scenarios/graph_match.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runScenarioFile(opts *RootOptions, path string, cmd *cobra.Command) error {
	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	slog.Debug("running scenario", "name", scenario.Name, "steps", len(scenario.Steps))
	result, err := harness.Run(ctx, scenario,
		harness.WithLogger(slog.Default()),
		harness.WithConfig(func(c *config.Config) { opts.override(c) }),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to execute scenario", err)
	}

	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		response := CLIResponse{Status: "ok", Data: result}
		if !result.Pass {
			response.Status = "error"
			response.Error = &CLIError{Code: "E_SCENARIO_FAILED", Message: strings.Join(result.Errors, "; ")}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(response); err != nil {
			return err
		}
	} else {
		if _, err := w.Write(harness.Transcript(scenario.Name, result.Trace)); err != nil {
			return err
		}
		for _, e := range result.Errors {
			fmt.Fprintf(w, "✗ %s\n", e)
		}
	}

	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return nil
}
