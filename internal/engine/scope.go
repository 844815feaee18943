package engine

// refTable counts live references to identifier ids.
//
// References are taken through a refScope: one scope per tick holds every
// identifier id the tick saw in working memory. The writer releases the
// previous tick's scope only after the current one is complete, so an id
// that is still referenced never drops to zero in between.
type refTable struct {
	counts map[int64]int
}

func newRefTable() *refTable {
	return &refTable{counts: make(map[int64]int)}
}

// Scope opens an empty scope.
func (t *refTable) Scope() *refScope {
	return &refScope{table: t, held: make(map[int64]struct{})}
}

// refScope is a set of holds on a refTable. Holding the same id twice in one
// scope counts once.
type refScope struct {
	table *refTable
	held  map[int64]struct{}
}

// Hold takes a reference to q for the life of the scope.
func (s *refScope) Hold(q int64) {
	if _, ok := s.held[q]; ok {
		return
	}
	s.held[q] = struct{}{}
	s.table.counts[q]++
}

// Release drops every hold and returns the ids whose count reached zero.
// The scope is empty afterwards and may be reused.
func (s *refScope) Release() []int64 {
	var freed []int64
	for q := range s.held {
		s.table.counts[q]--
		if s.table.counts[q] <= 0 {
			delete(s.table.counts, q)
			freed = append(freed, q)
		}
	}
	clear(s.held)
	return freed
}
