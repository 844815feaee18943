// Package engine implements the episodic memory engine.
//
// The engine records the working-memory graph once per tick and answers
// retrievals against the recorded history.
//
// STORAGE:
//
// Every WME is a fact. A WME with a constant value is a node fact keyed by
// (parent id, attribute hash, value hash); a WME with an identifier value is
// an edge fact keyed by (q0, attribute hash, q1), where q0 and q1 are
// identifier ids. A fact is stored once in node_unique or edge_unique and its
// lifetime is kept as occurrence rows:
//   - now: open interval [start, +inf) while the fact is in working memory
//   - point: a single episode
//   - range: a closed interval, indexed by a relational interval tree (rit)
//
// The writer only touches facts that changed since the previous tick.
//
// RETRIEVAL:
//
// Retrieve, Next and Previous rebuild one episode by its id. Query compiles
// a cue into a DNF literal graph and sweeps backward through time from the
// most recent episode, keeping score and cardinality current as facts start
// and stop holding. The best episode is optionally confirmed by a
// graph-match that binds every cue identifier to a recorded identifier.
//
// Reconstructed WMEs are placed under the anchor identifier of the request
// and retracted before the anchor's next command.
//
// CONCURRENCY:
//
// An Engine is not safe for concurrent use. The caller serializes ticks and
// commands, which is how the host calls it anyway.
package engine
