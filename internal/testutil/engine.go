package testutil

import (
	"path/filepath"
	"testing"

	"github.com/roach88/epmem/internal/config"
	"github.com/roach88/epmem/internal/engine"
	"github.com/roach88/epmem/internal/wm"
)

// TempDB returns a database path inside t's temp dir.
func TempDB(t testing.TB) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "epmem.db")
}

// Config returns the default configuration over TempDB, with mutate applied.
func Config(t testing.TB, mutate ...func(*config.Config)) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Path = TempDB(t)
	for _, m := range mutate {
		m(&cfg)
	}
	return cfg
}

// NewEngine builds an engine over a fresh in-memory working memory with
// sequential request ids. The engine is closed when the test ends.
func NewEngine(t testing.TB, cfg config.Config, opts ...engine.Option) (*engine.Engine, *wm.Memory) {
	t.Helper()
	mem := wm.NewMemory()
	opts = append([]engine.Option{
		engine.WithObserver(engine.NopObserver{}),
		engine.WithRequestIDs(NewSequentialIDs("")),
	}, opts...)
	eng, err := engine.New(mem, cfg, opts...)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() { eng.Close() })
	return eng, mem
}
