// Command epmem records working-memory snapshots as episodes and retrieves
// them by number or by cue.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/epmem/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "epmem:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
