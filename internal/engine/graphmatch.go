package engine

import (
	"cmp"
	"slices"

	"github.com/roach88/epmem/internal/config"
	"github.com/roach88/epmem/internal/wm"
)

// graphMatch looks for one consistent assignment of cue identifiers to
// recorded identifiers over the current matches of the positive literals.
// Every identifier symbol maps to one node and no two symbols share a node.
func (s *sweep) graphMatch() (map[wm.Identifier]int64, bool) {
	var lits []*literal
	for _, l := range s.cue.literals {
		if l.negated {
			continue
		}
		if len(l.matches) == 0 {
			return nil, false
		}
		lits = append(lits, l)
	}
	orderLiterals(lits, s.e.cfg.GraphMatchOrdering)

	m := &matcher{
		lits:  lits,
		cands: make([][]nodePair, len(lits)),
		bind:  map[wm.Identifier]int64{s.cue.pos: RootID},
		owner: map[int64]wm.Identifier{RootID: s.cue.pos},
	}
	for i, l := range lits {
		pairs := make([]nodePair, 0, len(l.matches))
		for p := range l.matches {
			pairs = append(pairs, p)
		}
		slices.SortFunc(pairs, func(a, b nodePair) int {
			if c := cmp.Compare(a.parent, b.parent); c != 0 {
				return c
			}
			return cmp.Compare(a.child, b.child)
		})
		m.cands[i] = pairs
	}
	if !m.solve(0) {
		return nil, false
	}
	delete(m.bind, s.cue.pos)
	return m.bind, true
}

func orderLiterals(lits []*literal, ordering string) {
	switch ordering {
	case config.OrderingLexical:
		slices.SortStableFunc(lits, func(a, b *literal) int {
			return cmp.Compare(a.wme.Triple().String(), b.wme.Triple().String())
		})
	case config.OrderingMCV:
		slices.SortStableFunc(lits, func(a, b *literal) int {
			return cmp.Compare(len(a.matches), len(b.matches))
		})
	default:
		slices.SortStableFunc(lits, func(a, b *literal) int {
			return cmp.Compare(a.order, b.order)
		})
	}
}

type matcher struct {
	lits  []*literal
	cands [][]nodePair
	bind  map[wm.Identifier]int64
	owner map[int64]wm.Identifier
}

// take binds sym to node. It reports whether the binding holds and whether
// it is new and must be undone on backtrack.
func (m *matcher) take(sym wm.Identifier, node int64) (ok, fresh bool) {
	if b, bound := m.bind[sym]; bound {
		return b == node, false
	}
	if _, owned := m.owner[node]; owned {
		return false, false
	}
	m.bind[sym] = node
	m.owner[node] = sym
	return true, true
}

func (m *matcher) undo(sym wm.Identifier) {
	node := m.bind[sym]
	delete(m.bind, sym)
	delete(m.owner, node)
}

func (m *matcher) solve(i int) bool {
	if i == len(m.lits) {
		return true
	}
	l := m.lits[i]
	child, childIsID := l.valueSym.(wm.Identifier)
	for _, pair := range m.cands[i] {
		ok, freshParent := m.take(l.idSym, pair.parent)
		if !ok {
			continue
		}
		freshChild := false
		if childIsID {
			if ok, freshChild = m.take(child, pair.child); !ok {
				if freshParent {
					m.undo(l.idSym)
				}
				continue
			}
		}
		if m.solve(i + 1) {
			return true
		}
		if freshChild {
			m.undo(child)
		}
		if freshParent {
			m.undo(l.idSym)
		}
	}
	return false
}
