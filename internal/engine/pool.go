package engine

import (
	"slices"

	"github.com/roach88/epmem/internal/wm"
)

// Reserved identifier ids.
const (
	// RootID is the id of the working-memory root and of the anchor a
	// retrieval is installed under.
	RootID int64 = 0
	// BadID marks an unknown id. As a literal target it matches any q1.
	BadID int64 = -1
)

// bindings maps live working-memory identifiers to identifier ids.
// The root is bound to RootID for the life of the engine.
type bindings struct {
	byID map[wm.Identifier]int64
	byQ  map[int64]wm.Identifier
}

func newBindings(root wm.Identifier) *bindings {
	b := &bindings{
		byID: make(map[wm.Identifier]int64),
		byQ:  make(map[int64]wm.Identifier),
	}
	b.bind(root, RootID)
	return b
}

func (b *bindings) bind(id wm.Identifier, q int64) {
	b.byID[id] = q
	b.byQ[q] = id
}

func (b *bindings) lookup(id wm.Identifier) (int64, bool) {
	q, ok := b.byID[id]
	return q, ok
}

func (b *bindings) bound(q int64) bool {
	_, ok := b.byQ[q]
	return ok
}

// unbind forgets the identifier bound to q. The root is never unbound.
func (b *bindings) unbind(q int64) {
	if q == RootID {
		return
	}
	if id, ok := b.byQ[q]; ok {
		delete(b.byID, id)
		delete(b.byQ, q)
	}
}

func (b *bindings) len() int {
	return len(b.byQ)
}

// poolKey is the structural position an identifier id was freed from.
type poolKey struct {
	q0 int64
	w  int64
}

// poolEntry is a freed identifier id with the edge that last led to it.
type poolEntry struct {
	q1   int64
	edge int64
}

// idPool keeps identifier ids that left working memory, so a new identifier
// appearing at the same (q0, w) position is stored as the old one.
// Entries are reused first-in first-out.
type idPool struct {
	free map[poolKey][]poolEntry
}

func newIDPool() *idPool {
	return &idPool{free: make(map[poolKey][]poolEntry)}
}

func (p *idPool) put(k poolKey, e poolEntry) {
	if slices.Contains(p.free[k], e) {
		return
	}
	p.free[k] = append(p.free[k], e)
}

// take removes and returns the oldest entry under k that usable accepts.
// Entries it rejects stay in the pool.
func (p *idPool) take(k poolKey, usable func(q1 int64) bool) (poolEntry, bool) {
	entries := p.free[k]
	for i, e := range entries {
		if !usable(e.q1) {
			continue
		}
		entries = slices.Delete(entries, i, i+1)
		if len(entries) == 0 {
			delete(p.free, k)
		} else {
			p.free[k] = entries
		}
		return e, true
	}
	return poolEntry{}, false
}

func (p *idPool) len() int {
	n := 0
	for _, es := range p.free {
		n += len(es)
	}
	return n
}
