package harness

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Transcript renders a trace as text: a header line, one line per event,
// and the anchor's working memory indented under every successful install.
//
//	# basic_store_retrieve
//	[1] tick -> success episode=1 nodes=2 edges=1 activated=3 closed=0 reuses=0
//	[2] retrieve req-0001 anchor=R episode=1 -> success episode=1 installed=2
//	    (R1 ^item I1)
//	    (I1 ^color red)
func Transcript(name string, trace []TraceEvent) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s\n", name)
	for _, event := range trace {
		fmt.Fprintf(&buf, "%s\n", event)
		for _, line := range event.WM {
			fmt.Fprintf(&buf, "    %s\n", line)
		}
	}
	return buf.Bytes()
}

// GoldenPath returns the golden file of a scenario file: scenarios in
// <dir>/scenarios/x.yaml have their transcript in <dir>/golden/x.golden.
func GoldenPath(scenarioFile string) string {
	dir := filepath.Dir(filepath.Dir(scenarioFile))
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

// RunWithGolden executes a scenario and compares its transcript against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. A transcript mismatch fails t
// through goldie; failed expectations and assertions are returned as an
// error after the comparison.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) error {
	t.Helper()

	result, err := Run(context.Background(), scenario, opts...)
	if err != nil {
		return err
	}
	AssertGolden(t, scenario.Name, result)

	if !result.Pass {
		return fmt.Errorf("scenario %s failed:\n%s", scenario.Name, strings.Join(result.Errors, "\n"))
	}
	return nil
}

// AssertGolden compares an existing result's transcript against the golden
// file named scenarioName.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, Transcript(scenarioName, result.Trace))
}
