// Package wm models the working-memory graph the episodic engine records.
//
// Values form a closed sum type (Int, Float, Sym, Identifier). The engine
// depends only on the Graph interface; Memory is the in-process
// implementation used by the harness, the CLI and tests. Parse and Render
// convert between graphs and the (S1 ^attr value) text form.
//
// This package imports nothing internal.
package wm
