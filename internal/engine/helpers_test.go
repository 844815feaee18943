package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/epmem/internal/config"
	"github.com/roach88/epmem/internal/wm"
)

// fixture is an engine recording an in-memory working memory into a
// temp-dir database.
type fixture struct {
	t   *testing.T
	ctx context.Context
	cfg config.Config
	mem *wm.Memory
	eng *Engine
	obs *recordingObserver
}

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()
	cfg := testConfig(t)
	for _, m := range mutate {
		m(&cfg)
	}
	return openFixture(t, cfg, wm.NewMemory())
}

// testConfig is the default configuration over a file in a temp dir.
func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "epmem.db")
	return cfg
}

// openFixture builds an engine over mem. Reusing the memory of a closed
// fixture simulates a process restart.
func openFixture(t *testing.T, cfg config.Config, mem *wm.Memory, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{t: t, ctx: context.Background(), cfg: cfg, mem: mem, obs: &recordingObserver{}}
	opts = append([]Option{WithObserver(f.obs)}, opts...)
	eng, err := New(f.mem, cfg, opts...)
	require.NoError(t, err)
	f.eng = eng
	t.Cleanup(func() { eng.Close() })
	return f
}

// tick makes working memory equal to text and records an episode.
func (f *fixture) tick(text string) EpisodeReport {
	f.t.Helper()
	f.mem.Sync(wm.MustParse(text))
	rep, err := f.eng.AddEpisode(f.ctx)
	require.NoError(f.t, err)
	return rep
}

// ticks records one episode per text.
func (f *fixture) ticks(texts ...string) {
	f.t.Helper()
	for _, text := range texts {
		f.tick(text)
	}
}

func (f *fixture) anchor() wm.Identifier {
	return f.mem.NewIdentifier('R')
}

// cue asserts a cue outside the recorded graph and returns its root.
func (f *fixture) cue(text string) wm.Identifier {
	f.t.Helper()
	id, err := f.mem.AddText(text)
	require.NoError(f.t, err)
	return id
}

func (f *fixture) render(root wm.Identifier) []string {
	return wm.RenderLines(f.mem, root)
}

func (f *fixture) count(table string) int64 {
	f.t.Helper()
	n, _, err := f.eng.Store().Int64(f.ctx, "SELECT COUNT(*) FROM "+table)
	require.NoError(f.t, err)
	return n
}

func (f *fixture) query(anchor wm.Identifier, req QueryRequest) Result {
	f.t.Helper()
	res := f.eng.Query(f.ctx, anchor, req)
	require.NoError(f.t, res.Err)
	return res
}

func (f *fixture) retrieve(anchor wm.Identifier, episode int64) Result {
	f.t.Helper()
	res := f.eng.Retrieve(f.ctx, anchor, episode)
	require.NoError(f.t, res.Err)
	return res
}

// recordingObserver keeps every event for assertions.
type recordingObserver struct {
	mu        sync.Mutex
	stored    []EpisodeReport
	installed []int64
	orphans   int
	evaluated []int64
	commands  []Result
	failures  []error
}

func (o *recordingObserver) EpisodeStored(r EpisodeReport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stored = append(o.stored, r)
}

func (o *recordingObserver) EpisodeInstalled(_ wm.Identifier, episode int64, _, orphans int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.installed = append(o.installed, episode)
	o.orphans += orphans
}

func (o *recordingObserver) EpisodeEvaluated(episode int64, _ float64, _ int, _ bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.evaluated = append(o.evaluated, episode)
}

func (o *recordingObserver) CommandCompleted(r Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.commands = append(o.commands, r)
}

func (o *recordingObserver) StoreFailed(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, err)
}
