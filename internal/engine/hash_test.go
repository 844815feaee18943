package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/epmem/internal/store"
	"github.com/roach88/epmem/internal/wm"
)

func connectedFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)
	require.NoError(t, f.eng.Connect(f.ctx))
	return f
}

func TestHashKindsAreDistinct(t *testing.T) {
	f := connectedFixture(t)
	h := f.eng.hashes

	values := []wm.Value{wm.Int(1), wm.Float(1), wm.Sym("1"), wm.Sym("one")}
	seen := make(map[int64]wm.Value)
	for _, v := range values {
		id, err := h.Hash(f.ctx, v, true)
		require.NoError(t, err)
		assert.Greater(t, id, HashAcceptable, "%s", v)
		if prev, dup := seen[id]; dup {
			t.Fatalf("%s and %s share hash %d", prev, v, id)
		}
		seen[id] = v

		again, err := h.Hash(f.ctx, v, false)
		require.NoError(t, err)
		assert.Equal(t, id, again)
	}
}

func TestHashMissWithoutAdd(t *testing.T) {
	f := connectedFixture(t)

	id, err := f.eng.hashes.Hash(f.ctx, wm.Sym("absent"), false)
	require.NoError(t, err)
	assert.Equal(t, HashNone, id)
	assert.Equal(t, int64(1), f.count("temporal_symbol_hash"), "only the acceptable sentinel")
}

func TestHashNormalizesSymbols(t *testing.T) {
	f := connectedFixture(t)
	h := f.eng.hashes

	composed, err := h.Hash(f.ctx, wm.Sym("caf\u00e9"), true)
	require.NoError(t, err)
	decomposed, err := h.Hash(f.ctx, wm.Sym("cafe\u0301"), false)
	require.NoError(t, err)
	assert.Equal(t, composed, decomposed)
}

func TestHashRejectsIdentifiers(t *testing.T) {
	f := connectedFixture(t)

	_, err := f.eng.hashes.Hash(f.ctx, wm.Identifier{Letter: 'S', Number: 1}, true)
	assert.ErrorIs(t, err, ErrIdentifierHash)
}

func TestHashValueRoundTrip(t *testing.T) {
	f := connectedFixture(t)
	h := f.eng.hashes

	for _, v := range []wm.Value{wm.Int(-3), wm.Float(2.5), wm.Float(4), wm.Sym("two words"), wm.Sym("7")} {
		id, err := h.Hash(f.ctx, v, true)
		require.NoError(t, err)

		h.invalidate()
		got, err := h.Value(f.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}

	_, err := h.Value(f.ctx, 9999)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHashInvalidateDropsCachedIDs(t *testing.T) {
	f := connectedFixture(t)
	h := f.eng.hashes

	require.NoError(t, f.eng.Store().Begin(f.ctx))
	id, err := h.Hash(f.ctx, wm.Sym("rolled-back"), true)
	require.NoError(t, err)
	require.NoError(t, f.eng.Store().Rollback())

	h.invalidate()
	again, err := h.Hash(f.ctx, wm.Sym("rolled-back"), false)
	require.NoError(t, err)
	assert.Equal(t, HashNone, again, "id %d vanished with the transaction", id)
}

func TestHashNaNIsOneConstant(t *testing.T) {
	f := connectedFixture(t)
	h := f.eng.hashes

	id, err := h.Hash(f.ctx, wm.Float(math.NaN()), true)
	require.NoError(t, err)
	rows := f.count("temporal_symbol_hash")

	h.invalidate()
	again, err := h.Hash(f.ctx, wm.Float(math.NaN()), true)
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, rows, f.count("temporal_symbol_hash"))

	sym, err := h.Hash(f.ctx, wm.Sym("NaN"), true)
	require.NoError(t, err)
	assert.NotEqual(t, id, sym, "the symbol NaN is not the float")

	h.invalidate()
	v, err := h.Value(f.ctx, id)
	require.NoError(t, err)
	fv, ok := v.(wm.Float)
	require.True(t, ok, "got %T", v)
	assert.True(t, math.IsNaN(float64(fv)))
}
