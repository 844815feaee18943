package engine

import (
	"context"
	"fmt"

	"github.com/roach88/epmem/internal/rit"
)

// Stats are the engine counters. Session counters start at zero when the
// engine is built; the rest reflect the store.
type Stats struct {
	Episodes       int64  `json:"episodes"`
	NextID         int64  `json:"next_id"`
	LTIs           int    `json:"ltis"`
	BoundIDs       int    `json:"bound_ids"`
	PooledIDs      int    `json:"pooled_ids"`
	HashGeneration uint64 `json:"hash_generation"`

	NodesCreated           int64 `json:"nodes_created"`
	EdgesCreated           int64 `json:"edges_created"`
	PoolReuses             int64 `json:"pool_reuses"`
	OrphansDropped         int64 `json:"orphans_dropped"`
	Queries                int64 `json:"queries"`
	LastConsidered         int64 `json:"last_considered"`
	LastGraphMatchAttempts int64 `json:"last_graph_match_attempts"`

	NodeRIT rit.Layout `json:"node_rit"`
	EdgeRIT rit.Layout `json:"edge_rit"`
}

// Stats returns a snapshot of the counters.
func (e *Engine) Stats() Stats {
	s := e.stats
	s.Episodes = e.clock.Current()
	s.NextID = e.nextID
	s.LTIs = len(e.ltis)
	s.BoundIDs = e.binds.len()
	s.PooledIDs = e.pool.len()
	s.HashGeneration = e.hashes.Generation()
	if e.nodes != nil {
		s.NodeRIT = e.nodes.Layout
		s.EdgeRIT = e.edges.Layout
	}
	return s
}

// countedTables are reported by TableCounts, in order.
var countedTables = []string{
	"times", "temporal_symbol_hash",
	"node_unique", "node_now", "node_point", "node_range",
	"edge_unique", "edge_now", "edge_point", "edge_range",
	"lti",
}

// TableCount is the row count of one store table.
type TableCount struct {
	Table string `json:"table"`
	Rows  int64  `json:"rows"`
}

// TableCounts returns the row count of every persistent table.
func (e *Engine) TableCounts(ctx context.Context) ([]TableCount, error) {
	if err := e.ready(ctx); err != nil {
		return nil, err
	}
	out := make([]TableCount, 0, len(countedTables))
	for _, t := range countedTables {
		n, _, err := e.st.Int64(ctx, "SELECT COUNT(*) FROM "+t)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", t, err)
		}
		out = append(out, TableCount{Table: t, Rows: n})
	}
	return out, nil
}
