// Package config loads engine configuration from CUE.
//
// A configuration file is plain CUE data unified with the embedded #Config
// schema, so missing fields take the schema defaults and out-of-range values
// are rejected with a CUE position:
//
//	database: path: "episodes.db"
//	balance: 0.5
//	exclusions: ["epmem", "smem", "io"]
package config

import (
	_ "embed"
	"fmt"
	"os"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/epmem/internal/store"
)

//go:embed schema.cue
var schemaCUE string

// Graph-match orderings.
const (
	OrderingInsertion = "insertion"
	OrderingLexical   = "lexical"
	OrderingMCV       = "mcv"
)

// Config is the resolved engine configuration.
type Config struct {
	Database           Database `json:"database"`
	Exclusions         []string `json:"exclusions"`
	Balance            float64  `json:"balance"`
	GraphMatch         bool     `json:"graph_match"`
	GraphMatchOrdering string   `json:"graph_match_ordering"`
	HashCacheSize      int      `json:"hash_cache_size"`
}

// Database configures the SQLite store.
type Database struct {
	Path         string `json:"path"`
	Driver       string `json:"driver"`
	PageSize     int    `json:"page_size"`
	CacheSize    int    `json:"cache_size"`
	Optimization string `json:"optimization"`
}

// Default returns the configuration an empty file resolves to.
func Default() Config {
	return Config{
		Database: Database{
			Path:         store.MemoryPath,
			Driver:       store.DriverCGO,
			PageSize:     8192,
			CacheSize:    10000,
			Optimization: store.OptimizePerformance,
		},
		Exclusions:         []string{"epmem", "smem"},
		Balance:            1.0,
		GraphMatch:         true,
		GraphMatchOrdering: OrderingInsertion,
		HashCacheSize:      4096,
	}
}

// Load reads and resolves a CUE configuration file.
func Load(path string) (Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(src, path)
}

// Parse resolves CUE source against the schema. filename is used in error
// positions only.
func Parse(src []byte, filename string) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	user := ctx.CompileBytes(src, cue.Filename(filename))
	if err := user.Err(); err != nil {
		return Config{}, fmt.Errorf("compile %s: %w", filename, err)
	}

	v := def.Unify(user)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, fmt.Errorf("validate %s: %w", filename, err)
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode %s: %w", filename, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks a configuration built in Go. Parse applies the same rules
// through the schema.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case store.DriverCGO, store.DriverPure:
	default:
		return fmt.Errorf("config: unknown driver %q", c.Database.Driver)
	}
	switch c.Database.Optimization {
	case store.OptimizePerformance, store.OptimizeSafety:
	default:
		return fmt.Errorf("config: unknown optimization %q", c.Database.Optimization)
	}
	if c.Balance < 0 || c.Balance > 1 {
		return fmt.Errorf("config: balance %v outside [0, 1]", c.Balance)
	}
	if !slices.Contains([]string{OrderingInsertion, OrderingLexical, OrderingMCV}, c.GraphMatchOrdering) {
		return fmt.Errorf("config: unknown graph_match_ordering %q", c.GraphMatchOrdering)
	}
	if c.HashCacheSize <= 0 {
		return fmt.Errorf("config: hash_cache_size must be positive")
	}
	return nil
}

// StoreOptions converts the database section for store.Open.
func (c Config) StoreOptions() store.Options {
	return store.Options{
		Path:         c.Database.Path,
		Driver:       c.Database.Driver,
		PageSize:     c.Database.PageSize,
		CacheSize:    c.Database.CacheSize,
		Optimization: c.Database.Optimization,
	}
}

// Excluded reports whether attribute name is never recorded.
func (c Config) Excluded(name string) bool {
	return slices.Contains(c.Exclusions, name)
}
