package rit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/epmem/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), store.Options{Path: filepath.Join(t.TempDir(), "rit.db")})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestTreeLoadRestoresLayout(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	tree := New(st, EdgeAxis)
	require.NoError(t, tree.Load(ctx))
	require.NoError(t, tree.InsertInterval(ctx, 50, 60, 1))
	require.NoError(t, tree.InsertInterval(ctx, 10, 20, 2))
	require.NoError(t, tree.InsertInterval(ctx, 100, 130, 3))

	again := New(st, EdgeAxis)
	require.NoError(t, again.Load(ctx))
	assert.Equal(t, tree.Layout, again.Layout)

	// The node axis is independent.
	node := New(st, NodeAxis)
	require.NoError(t, node.Load(ctx))
	assert.Equal(t, NewLayout(), node.Layout)
}
