package rit

import (
	"context"
	"fmt"

	"github.com/roach88/epmem/internal/store"
)

// Axis names the persistent state of one RIT: its range table and the vars
// that mirror its Layout.
type Axis struct {
	Name      string
	Table     string
	Offset    store.VarKey
	LeftRoot  store.VarKey
	RightRoot store.VarKey
	MinStep   store.VarKey
}

// NodeAxis indexes constant-valued facts.
var NodeAxis = Axis{
	Name:      "node",
	Table:     "node_range",
	Offset:    store.VarNodeRITOffset,
	LeftRoot:  store.VarNodeRITLeftRoot,
	RightRoot: store.VarNodeRITRightRoot,
	MinStep:   store.VarNodeRITMinStep,
}

// EdgeAxis indexes identifier-valued facts.
var EdgeAxis = Axis{
	Name:      "edge",
	Table:     "edge_range",
	Offset:    store.VarEdgeRITOffset,
	LeftRoot:  store.VarEdgeRITLeftRoot,
	RightRoot: store.VarEdgeRITRightRoot,
	MinStep:   store.VarEdgeRITMinStep,
}

const (
	clearLeftSQL   = `DELETE FROM rit_left_nodes`
	clearRightSQL  = `DELETE FROM rit_right_nodes`
	insertLeftSQL  = `INSERT INTO rit_left_nodes (min, max) VALUES (?, ?)`
	insertRightSQL = `INSERT INTO rit_right_nodes (node) VALUES (?)`
)

// Tree is a Layout persisted in a store.
type Tree struct {
	st   *store.Store
	axis Axis
	Layout
}

// New returns a tree with an empty layout. Call Load to pick up persisted
// state.
func New(st *store.Store, axis Axis) *Tree {
	return &Tree{st: st, axis: axis, Layout: NewLayout()}
}

// Load reads the layout from vars, keeping defaults for unset keys.
func (t *Tree) Load(ctx context.Context) error {
	def := NewLayout()
	fields := []struct {
		key store.VarKey
		dst *int64
		def int64
	}{
		{t.axis.Offset, &t.Offset, def.Offset},
		{t.axis.LeftRoot, &t.LeftRoot, def.LeftRoot},
		{t.axis.RightRoot, &t.RightRoot, def.RightRoot},
		{t.axis.MinStep, &t.MinStep, def.MinStep},
	}
	for _, f := range fields {
		v, err := t.st.VarOr(ctx, f.key, f.def)
		if err != nil {
			return fmt.Errorf("load %s rit: %w", t.axis.Name, err)
		}
		*f.dst = v
	}
	return nil
}

// InsertInterval stores fact id as having held over [lower, upper] and
// persists any layout change.
func (t *Tree) InsertInterval(ctx context.Context, lower, upper, id int64) error {
	before := t.Layout
	node, err := t.Place(lower, upper)
	if err != nil {
		return err
	}
	if err := t.save(ctx, before); err != nil {
		return err
	}
	q := fmt.Sprintf(`INSERT INTO %s (rit_id, start_episode_id, end_episode_id, id) VALUES (?, ?, ?, ?)`, t.axis.Table)
	if _, err := t.st.Exec(ctx, q, node, lower, upper, id); err != nil {
		return fmt.Errorf("insert %s range: %w", t.axis.Name, err)
	}
	return nil
}

func (t *Tree) save(ctx context.Context, before Layout) error {
	changes := []struct {
		key      store.VarKey
		old, cur int64
	}{
		{t.axis.Offset, before.Offset, t.Offset},
		{t.axis.LeftRoot, before.LeftRoot, t.LeftRoot},
		{t.axis.RightRoot, before.RightRoot, t.RightRoot},
		{t.axis.MinStep, before.MinStep, t.MinStep},
	}
	for _, c := range changes {
		if c.old == c.cur {
			continue
		}
		if err := t.st.SetVar(ctx, c.key, c.cur); err != nil {
			return err
		}
	}
	return nil
}

// PrepLeftRight fills the scratch tables for the window [lower, upper].
// Call ClearLeftRight when the query that reads them is done.
func (t *Tree) PrepLeftRight(ctx context.Context, lower, upper int64) error {
	left, right := t.Cover(lower, upper)
	for _, s := range left {
		if _, err := t.st.Exec(ctx, insertLeftSQL, s.Min, s.Max); err != nil {
			return fmt.Errorf("prep %s left: %w", t.axis.Name, err)
		}
	}
	for _, n := range right {
		if _, err := t.st.Exec(ctx, insertRightSQL, n); err != nil {
			return fmt.Errorf("prep %s right: %w", t.axis.Name, err)
		}
	}
	return nil
}

// ClearLeftRight empties the scratch tables shared by both axes.
func ClearLeftRight(ctx context.Context, st *store.Store) error {
	if _, err := st.Exec(ctx, clearLeftSQL); err != nil {
		return fmt.Errorf("clear rit left: %w", err)
	}
	if _, err := st.Exec(ctx, clearRightSQL); err != nil {
		return fmt.Errorf("clear rit right: %w", err)
	}
	return nil
}
