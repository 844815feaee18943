package store

import (
	"context"
	"fmt"
)

// VarKey identifies a row of the vars table. Values are persisted; append
// new keys at the end.
type VarKey int64

const (
	VarNodeRITOffset VarKey = iota
	VarNodeRITLeftRoot
	VarNodeRITRightRoot
	VarNodeRITMinStep
	VarEdgeRITOffset
	VarEdgeRITLeftRoot
	VarEdgeRITRightRoot
	VarEdgeRITMinStep
	VarNextID
)

func (k VarKey) String() string {
	switch k {
	case VarNodeRITOffset:
		return "rit_offset_node"
	case VarNodeRITLeftRoot:
		return "rit_leftroot_node"
	case VarNodeRITRightRoot:
		return "rit_rightroot_node"
	case VarNodeRITMinStep:
		return "rit_minstep_node"
	case VarEdgeRITOffset:
		return "rit_offset_edge"
	case VarEdgeRITLeftRoot:
		return "rit_leftroot_edge"
	case VarEdgeRITRightRoot:
		return "rit_rightroot_edge"
	case VarEdgeRITMinStep:
		return "rit_minstep_edge"
	case VarNextID:
		return "next_id"
	default:
		return fmt.Sprintf("var(%d)", int64(k))
	}
}

const (
	getVarSQL = `SELECT value FROM vars WHERE id = ?`
	setVarSQL = `INSERT INTO vars (id, value) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET value = excluded.value`
)

// Var reads a variable. ok is false when it has never been set.
func (s *Store) Var(ctx context.Context, key VarKey) (value int64, ok bool, err error) {
	value, ok, err = s.Int64(ctx, getVarSQL, int64(key))
	if err != nil {
		return 0, false, fmt.Errorf("get var %s: %w", key, err)
	}
	return value, ok, nil
}

// VarOr reads a variable, returning def when it has never been set.
func (s *Store) VarOr(ctx context.Context, key VarKey, def int64) (int64, error) {
	v, ok, err := s.Var(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

// SetVar writes a variable.
func (s *Store) SetVar(ctx context.Context, key VarKey, value int64) error {
	if _, err := s.Exec(ctx, setVarSQL, int64(key), value); err != nil {
		return fmt.Errorf("set var %s: %w", key, err)
	}
	return nil
}
