package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/epmem/internal/config"
	"github.com/roach88/epmem/internal/engine"
	"github.com/roach88/epmem/internal/store"
)

func parse(t *testing.T, src string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	return s
}

func run(t *testing.T, s *Scenario, opts ...Option) *Result {
	t.Helper()
	res, err := Run(context.Background(), s, opts...)
	require.NoError(t, err)
	return res
}

func TestScenarios(t *testing.T) {
	scenarios, err := LoadDir("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			require.NoError(t, RunWithGolden(t, s))
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/basic_store_retrieve.yaml")
	require.NoError(t, err)

	first := run(t, s)
	second := run(t, s)
	assert.Equal(t, Transcript(s.Name, first.Trace), Transcript(s.Name, second.Trace))
	assert.Equal(t, "req-0001", first.Trace[2].RequestID, "ids restart for every run")
}

func TestRun_ExpectMismatch(t *testing.T) {
	s := parse(t, `
name: mismatch
description: "wrong expectations are reported, not fatal"
steps:
  - tick: "(S1 ^a 1)"
    expect: { nodes_created: 5 }
  - command: retrieve
    episode: 1
    expect: { episode: 7, wm: ["(R1 ^a 2)"] }
`)
	res := run(t, s)

	assert.False(t, res.Pass)
	require.Len(t, res.Errors, 3)
	assert.Contains(t, res.Errors[0], "step 1 (tick): expected nodes_created 5, got 1")
	assert.Contains(t, res.Errors[1], "expected episode 7, got 1")
	assert.Contains(t, res.Errors[2], "expected wm")
	assert.Len(t, res.Trace, 2, "every step still runs")
}

func TestRun_MalformedTickAborts(t *testing.T) {
	s := parse(t, `
name: malformed
description: "unparseable working memory stops the run"
steps:
  - tick: "(S1 ^a"
`)
	_, err := Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 1")
}

func TestRun_AnchorsAreIndependent(t *testing.T) {
	s := parse(t, `
name: anchors
description: "each anchor keeps its own position"
steps:
  - tick: "(S1 ^a 1)"
  - tick: "(S1 ^a 2)"
  - command: retrieve
    episode: 1
  - command: next
    anchor: T
    expect: { status: failure, code: NO_MEMORY }
  - command: next
    expect: { status: success, episode: 2 }
  - command: retrieve
    anchor: T
    episode: 2
    expect: { wm: ["(T1 ^a 2)"] }
`)
	res := run(t, s)
	assert.True(t, res.Pass, res.Errors)
	assert.Equal(t, "T", res.Trace[3].Anchor)
}

func TestRun_StoreNeedsLongTermIdentifier(t *testing.T) {
	s := parse(t, `
name: short_term_store
description: "store rejects a short-term identifier"
steps:
  - command: store
    lti: L2
    expect: { status: bad-cmd, code: BAD_COMMAND }
  - command: store
    lti: "3"
`)
	_, err := Run(context.Background(), s)
	require.Error(t, err, "a constant is not an identifier at all")

	s.Steps = s.Steps[:1]
	res := run(t, s)
	assert.True(t, res.Pass, res.Errors)
	assert.Empty(t, res.Trace[0].Anchor)
}

func TestRun_WithConfig(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/blinking_identifier.yaml")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "epmem.db")
	res := run(t, s, WithConfig(func(c *config.Config) {
		c.Database.Path = path
		c.Database.Driver = store.DriverPure
	}))
	assert.True(t, res.Pass, res.Errors)
	assert.FileExists(t, path)
}

func TestRun_ReportsStatsAndTables(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/graph_match.yaml")
	require.NoError(t, err)

	res := run(t, s)
	assert.Equal(t, int64(2), res.Stats.Episodes)
	assert.Equal(t, int64(1), res.Stats.Queries)

	rows := make(map[string]int64)
	for _, tc := range res.Tables {
		rows[tc.Table] = tc.Rows
	}
	assert.Equal(t, int64(3), rows["edge_unique"])
	assert.Equal(t, int64(2), rows["times"])
}

func TestRun_FailingAssertion(t *testing.T) {
	s := parse(t, `
name: failing_assertion
description: "assertion failures mark the result failed"
steps:
  - tick: "(S1 ^a 1)"
assertions:
  - type: transcript_count
    command: tick
    count: 2
  - type: stat
    stat: episodes
    value: 1
`)
	res := run(t, s)
	assert.False(t, res.Pass)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "transcript_count")
}

func TestCheckExpect(t *testing.T) {
	ev := TraceEvent{
		Kind:    string(engine.CommandQuery),
		Status:  "success",
		Episode: 3,
		Match:   &Match{Cardinality: 2, GraphMatch: true},
		WM:      []string{"(R1 ^a 1)"},
	}
	two, yes := 2, true
	ep := int64(3)
	assert.Empty(t, checkExpect(ev, &Expect{Status: "success", Episode: &ep, Cardinality: &two, GraphMatch: &yes, WM: []string{"(R1 ^a 1)"}}))
	assert.Empty(t, checkExpect(ev, nil))

	zero := 0
	errs := checkExpect(ev, &Expect{NodesCreated: &zero, Code: "NO_MATCH"})
	require.Len(t, errs, 1, "a missing report reads as zero")
	assert.Contains(t, errs[0], "code")
}
