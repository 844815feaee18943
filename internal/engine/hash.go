package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/epmem/internal/store"
	"github.com/roach88/epmem/internal/wm"
)

// Reserved hash ids.
const (
	// HashNone is returned for a constant that was never interned.
	HashNone int64 = 0
	// HashAcceptable stands in for the attribute of an acceptable-preference
	// WME.
	HashAcceptable int64 = 1
)

const (
	hashGetSQL     = `SELECT id FROM temporal_symbol_hash WHERE sym_type = ? AND sym_const = ?`
	hashAddSQL     = `INSERT INTO temporal_symbol_hash (sym_type, sym_const) VALUES (?, ?)`
	hashValueSQL   = `SELECT sym_type, sym_const FROM temporal_symbol_hash WHERE id = ?`
	hashReserveSQL = `INSERT OR IGNORE INTO temporal_symbol_hash (id, sym_type, sym_const) VALUES (?, ?, NULL)`
)

// nanConst is the stored form of a NaN float. SQLite binds NaN as NULL,
// which never compares equal.
const nanConst = "NaN"

// reservedHashType marks sentinel rows; it is not a wm.Kind.
const reservedHashType = -1

// hashKey is the canonical form of a constant.
type hashKey struct {
	kind wm.Kind
	i    int64
	f    float64
	s    string
}

type hashEntry struct {
	id  int64
	gen uint64
}

type valueEntry struct {
	value wm.Value
	gen   uint64
}

// hasher interns constants in temporal_symbol_hash.
//
// Both directions are cached. Entries carry the generation they were read
// under; bumping the generation invalidates every entry at once, which is
// how a reconnect or a rolled-back tick drops ids the store no longer has.
type hasher struct {
	st  *store.Store
	gen uint64
	ids *lru.Cache[hashKey, hashEntry]
	val *lru.Cache[int64, valueEntry]
}

func newHasher(size int) (*hasher, error) {
	ids, err := lru.New[hashKey, hashEntry](size)
	if err != nil {
		return nil, fmt.Errorf("hash cache: %w", err)
	}
	val, err := lru.New[int64, valueEntry](size)
	if err != nil {
		return nil, fmt.Errorf("hash cache: %w", err)
	}
	return &hasher{ids: ids, val: val}, nil
}

// attach points the hasher at a freshly opened store, reserves the sentinel
// rows and starts a new generation.
func (h *hasher) attach(ctx context.Context, st *store.Store) error {
	h.st = st
	h.invalidate()
	if _, err := st.Exec(ctx, hashReserveSQL, HashAcceptable, reservedHashType); err != nil {
		return fmt.Errorf("reserve acceptable hash: %w", err)
	}
	return nil
}

func (h *hasher) invalidate() {
	h.gen++
	h.ids.Purge()
	h.val.Purge()
}

// Generation returns the current cache generation.
func (h *hasher) Generation() uint64 {
	return h.gen
}

func canonical(v wm.Value) (hashKey, any, error) {
	switch c := v.(type) {
	case wm.Int:
		return hashKey{kind: wm.KindInt, i: int64(c)}, int64(c), nil
	case wm.Float:
		if math.IsNaN(float64(c)) {
			return hashKey{kind: wm.KindFloat, s: nanConst}, nanConst, nil
		}
		return hashKey{kind: wm.KindFloat, f: float64(c)}, float64(c), nil
	case wm.Sym:
		s := norm.NFC.String(string(c))
		return hashKey{kind: wm.KindSym, s: s}, s, nil
	case wm.Identifier:
		return hashKey{}, nil, ErrIdentifierHash
	default:
		return hashKey{}, nil, fmt.Errorf("hash: unknown value type %T", v)
	}
}

// Hash returns the id of constant v. On a miss it interns v when add is
// true and returns HashNone otherwise.
func (h *hasher) Hash(ctx context.Context, v wm.Value, add bool) (int64, error) {
	key, arg, err := canonical(v)
	if err != nil {
		return HashNone, err
	}
	if e, ok := h.ids.Get(key); ok && e.gen == h.gen {
		return e.id, nil
	}

	id, ok, err := h.st.Int64(ctx, hashGetSQL, int(key.kind), arg)
	if err != nil {
		return HashNone, fmt.Errorf("hash %s: %w", v, err)
	}
	if !ok {
		if !add {
			return HashNone, nil
		}
		res, err := h.st.Exec(ctx, hashAddSQL, int(key.kind), arg)
		if err != nil {
			return HashNone, fmt.Errorf("intern %s: %w", v, err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return HashNone, fmt.Errorf("intern %s: %w", v, err)
		}
	}
	h.ids.Add(key, hashEntry{id: id, gen: h.gen})
	return id, nil
}

// Value returns the constant interned under id.
func (h *hasher) Value(ctx context.Context, id int64) (wm.Value, error) {
	if e, ok := h.val.Get(id); ok && e.gen == h.gen {
		return e.value, nil
	}

	var (
		kind int
		raw  any
	)
	err := h.st.QueryRow(ctx, hashValueSQL, id).Scan(&kind, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("hash id %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("hash id %d: %w", id, err)
	}

	v, err := decodeConstant(wm.Kind(kind), raw)
	if err != nil {
		return nil, fmt.Errorf("hash id %d: %w", id, err)
	}
	h.val.Add(id, valueEntry{value: v, gen: h.gen})
	return v, nil
}

func decodeConstant(kind wm.Kind, raw any) (wm.Value, error) {
	switch kind {
	case wm.KindInt:
		if n, ok := raw.(int64); ok {
			return wm.Int(n), nil
		}
	case wm.KindFloat:
		switch f := raw.(type) {
		case float64:
			return wm.Float(f), nil
		case int64:
			return wm.Float(float64(f)), nil
		case string:
			if f == nanConst {
				return wm.Float(math.NaN()), nil
			}
		case []byte:
			if string(f) == nanConst {
				return wm.Float(math.NaN()), nil
			}
		}
	case wm.KindSym:
		switch s := raw.(type) {
		case string:
			return wm.Sym(s), nil
		case []byte:
			return wm.Sym(s), nil
		}
	}
	return nil, fmt.Errorf("unexpected %T for %s constant", raw, kind)
}
