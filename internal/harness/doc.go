// Package harness runs scripted scenarios against a real engine.
//
// A scenario is a YAML file that drives one working memory and one engine
// over a fresh store:
//
//	name: basic_store_retrieve
//	description: "A retrieved episode is rebuilt under its anchor"
//	config:
//	  graph_match_ordering: mcv
//	steps:
//	  - tick: "(S1 ^name blocks ^item I1)(I1 ^color red)"
//	    expect: { nodes_created: 2, edges_created: 1 }
//	  - command: retrieve
//	    episode: 1
//	    expect:
//	      status: success
//	      wm: ["(R1 ^item I1)", "(R1 ^name blocks)", "(I1 ^color red)"]
//	  - command: query
//	    pos: "(<q> ^item <i>)(<i> ^color red)"
//	    before: 3
//	assertions:
//	  - type: transcript_count
//	    command: query
//	    count: 1
//	  - type: row_count
//	    table: edge_unique
//	    count: 1
//
// A tick replaces the recorded part of working memory with the given
// triples and records an episode. Commands are retrieve, next, previous,
// query, store and release; each names an anchor letter (default R) and
// every anchor gets its own identifier.
//
// # Assertion Types
//
//   - transcript_contains: some event has the given command, status, code
//     and episode
//   - transcript_order: the commands appear in this order
//   - transcript_count: the command appears exactly count times
//   - final_state: exactly one row of table matches where, and it carries
//     the expected columns
//   - row_count: table has count rows matching where
//   - stat: an engine counter, by its JSON name, has the given value
//
// # Deterministic Testing
//
// Request ids come from testutil.SequentialIDs and the store defaults to an
// in-memory database, so running a scenario twice produces byte-identical
// transcripts. Transcript renders the trace as text for golden comparison.
package harness
