// Package store provides the SQLite database behind the episodic engine.
//
// The store is a thin layer over database/sql:
//   - Open applies pragmas, the embedded schema and user_version migrations
//   - a single pinned connection, so TEMP scratch tables and transactions
//     are visible to every statement
//   - statements are prepared once per connection and pooled by SQL text
//   - while a transaction is open every call is routed through it
//   - vars is a small persistent key/value table for engine counters
//
// # Tables
//
//   - temporal_symbol_hash: interned constants
//   - times: one row per episode
//   - node_unique / edge_unique: fact identities, with last = end of the
//     latest occurrence (math.MaxInt64 while current)
//   - *_now, *_point, *_range: when each fact held
//   - rit_left_nodes / rit_right_nodes: RIT query scratch space
//   - lti: long-term identifier promotions
//
// # Drivers
//
// "sqlite3" (github.com/mattn/go-sqlite3, cgo) is the default. "sqlite"
// (modernc.org/sqlite) is a pure Go alternative for cgo-free builds. Both
// speak the same SQL dialect.
//
// The store is not safe for concurrent use. The engine that owns it calls it
// from one goroutine.
package store
