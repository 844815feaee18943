package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/epmem/internal/engine"
	"github.com/roach88/epmem/internal/wm"
)

// commandOutput is a command result together with the subgraph it installed.
type commandOutput struct {
	engine.Result
	Status string   `json:"status"`
	WM     []string `json:"wm"`
}

func newCommandOutput(res engine.Result, g wm.Graph, anchor wm.Identifier) commandOutput {
	out := commandOutput{Result: res, Status: res.Status.String(), WM: []string{}}
	if res.Err == nil {
		out.WM = wm.RenderLines(g, anchor)
	}
	return out
}

// Lines implements lineOutput.
func (o commandOutput) Lines() []string {
	head := fmt.Sprintf("episode %d: %d wmes", o.Episode, len(o.Installed))
	if o.Orphans > 0 {
		head += fmt.Sprintf(", %d orphans dropped", o.Orphans)
	}
	lines := []string{head}
	if o.Command == engine.CommandQuery {
		lines = append(lines, fmt.Sprintf("cue %d, cardinality %d, score %s, normalized %s, graph match %t",
			o.CueSize, o.MatchCardinality, formatFloat(o.MatchScore), formatFloat(o.NormalizedScore), o.GraphMatch))
	}
	for _, l := range o.WM {
		lines = append(lines, "    "+l)
	}
	return lines
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// report prints a command result and turns failures into exit errors.
func report(cmd *cobra.Command, opts *RootOptions, res engine.Result, g wm.Graph, anchor wm.Identifier) error {
	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if res.Err == nil {
		return f.Success(newCommandOutput(res, g, anchor))
	}

	code := string(engine.Code(res.Err))
	if code == "" {
		code = "STORE"
	}
	if err := f.Error(code, res.Err.Error(), map[string]string{"request_id": res.RequestID}); err != nil {
		return err
	}
	return WrapExitError(exitCodeFor(res.Status), fmt.Sprintf("%s failed", res.Command), res.Err)
}

// anchorFlag adds --anchor to cmd.
func anchorFlag(cmd *cobra.Command, anchor *string) {
	cmd.Flags().StringVar(anchor, "anchor", "R", "letter of the identifier results are installed under")
}

func newAnchor(mem *wm.Memory, name string) (wm.Identifier, error) {
	if name == "" || !isASCIILetter(name[0]) {
		return wm.Identifier{}, NewExitError(ExitCommandError, fmt.Sprintf("anchor %q must start with a letter", name))
	}
	letter := name[0]
	if letter >= 'a' {
		letter -= 'a' - 'A'
	}
	return mem.NewIdentifier(letter), nil
}

func isASCIILetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
