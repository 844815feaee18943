package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/epmem/internal/engine"
)

func TestTranscript(t *testing.T) {
	trace := []TraceEvent{
		{Step: 1, Kind: KindTick, Status: "success", Episode: 1,
			Report: &engine.EpisodeReport{Episode: 1, NodesCreated: 1, Activated: 1}},
		{Step: 2, Kind: KindTick, Status: "failure", Code: "STORE"},
		{Step: 3, Kind: "retrieve", RequestID: "req-0001", Anchor: "R", Args: "episode=1",
			Status: "success", Episode: 1, Installed: 1, Orphans: 2, WM: []string{"(R1 ^a 1)"}},
		{Step: 4, Kind: "query", RequestID: "req-0002", Anchor: "R", Args: "neg prohibit=1,2",
			Status: "success", Episode: 3, Installed: 0,
			Match: &Match{CueSize: 3, Cardinality: 2, Score: 1.5, Normalized: 0.5}},
		{Step: 5, Kind: "store", RequestID: "req-0003", Args: "lti=@L1", Status: "success", Episode: 4},
		{Step: 6, Kind: "query", RequestID: "req-0004", Anchor: "R", Status: "bad-cmd", Code: "BAD_COMMAND"},
		{Step: 7, Kind: KindRelease, Anchor: "R"},
	}

	want := `# sample
[1] tick -> success episode=1 nodes=1 edges=0 activated=1 closed=0 reuses=0
[2] tick -> failure STORE
[3] retrieve req-0001 anchor=R episode=1 -> success episode=1 installed=1 orphans=2
    (R1 ^a 1)
[4] query req-0002 anchor=R neg prohibit=1,2 -> success episode=3 installed=0 cue=3 cardinality=2 score=1.5 normalized=0.5 graph_match=false
[5] store req-0003 lti=@L1 -> success episode=4
[6] query req-0004 anchor=R -> bad-cmd BAD_COMMAND
[7] release anchor=R
`
	assert.Equal(t, want, string(Transcript("sample", trace)))
}

func TestGoldenPath(t *testing.T) {
	got := GoldenPath(filepath.Join("testdata", "scenarios", "lti_boundary.yaml"))
	assert.Equal(t, filepath.Join("testdata", "golden", "lti_boundary.golden"), got)
}

func TestAssertGolden_FromResult(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/negative_cue.yaml")
	require.NoError(t, err)
	res := run(t, s)
	AssertGolden(t, s.Name, res)
}
