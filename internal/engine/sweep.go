package engine

import (
	"cmp"
	"container/heap"
	"context"
	"fmt"
	"slices"

	"github.com/roach88/epmem/internal/wm"
)

// pedgeKey is a fact pattern: every fact of one kind under (q0, w) whose
// value is q1, or any value when q1 is BadID.
type pedgeKey struct {
	isEdge bool
	q0     int64
	w      int64
	q1     int64
}

func (k pedgeKey) less(o pedgeKey) bool {
	if k.isEdge != o.isEdge {
		return !k.isEdge
	}
	if c := cmp.Compare(k.q0, o.q0); c != 0 {
		return c < 0
	}
	if c := cmp.Compare(k.w, o.w); c != 0 {
		return c < 0
	}
	return k.q1 < o.q1
}

// pedge is a pattern edge: the literals waiting on a fact pattern and a
// cursor over the facts that match it, newest first.
type pedge struct {
	key      pedgeKey
	literals []*literal
	rows     [][]int64 // id, value, last
	pos      int
	found    []*uedge
	t0       int64
}

func (p *pedge) priority() int64 {
	return min(p.rows[p.pos][2], p.t0)
}

type uedgeKey struct {
	isEdge bool
	id     int64
}

func (k uedgeKey) less(o uedgeKey) bool {
	if k.isEdge != o.isEdge {
		return !k.isEdge
	}
	return k.id < o.id
}

// uedge is a discovered fact and the literals it can satisfy.
type uedge struct {
	key      uedgeKey
	q0       int64
	w        int64
	q1       int64
	literals []*literal
	// active counts the open intervals of the fact at the sweep position.
	active int
}

func (u *uedge) has(l *literal) bool {
	return slices.Contains(u.literals, l)
}

// event is an interval endpoint in sweep time. Walking backward, a fact
// becomes active at the end of an interval and inactive just before its
// start.
type event struct {
	at   int64
	open bool
}

// endpoints is the cursor over one fact's interval events.
type endpoints struct {
	u      *uedge
	events []event
	pos    int
}

func (ep *endpoints) next() event {
	return ep.events[ep.pos]
}

type parentKey struct {
	isEdge bool
	q0     int64
	w      int64
}

type symNode struct {
	sym  wm.Identifier
	node int64
}

// candidate is the best episode found so far.
type candidate struct {
	episode      int64
	score        float64
	cardinality  int
	graphMatched bool
	bindings     map[wm.Identifier]int64
}

// sweep is the state of one query. It is discarded when the query returns.
type sweep struct {
	e          *Engine
	cue        *cue
	t0         int64
	after      int64
	prohibited map[int64]bool

	frontier  frontierQueue
	intervals endpointQueue
	pedges    map[pedgeKey]*pedge
	uedges    map[uedgeKey]*uedge
	byParent  map[parentKey][]*uedge
	nodeCount map[symNode]int

	score       float64
	cardinality int
	changed     bool

	best       *candidate
	done       bool
	considered int
	gmAttempts int
}

func (e *Engine) newSweep(q *cue, t0, after int64, prohibit []int64) *sweep {
	s := &sweep{
		e:          e,
		cue:        q,
		t0:         t0,
		after:      after,
		prohibited: make(map[int64]bool, len(prohibit)),
		pedges:     make(map[pedgeKey]*pedge),
		uedges:     make(map[uedgeKey]*uedge),
		byParent:   make(map[parentKey][]*uedge),
		nodeCount:  make(map[symNode]int),
	}
	for _, p := range prohibit {
		s.prohibited[p] = true
	}
	s.nodeCount[symNode{sym: q.pos, node: RootID}] = 1
	if q.hasNeg {
		s.nodeCount[symNode{sym: q.neg, node: RootID}] = 1
	}
	return s
}

// run sweeps from t0 down to after and returns the best episode, or nil.
func (s *sweep) run(ctx context.Context) (*candidate, error) {
	if s.t0 <= s.after {
		return nil, nil
	}
	for _, l := range s.cue.top {
		if err := s.register(ctx, l, RootID); err != nil {
			return nil, err
		}
	}

	current := s.t0
	for {
		for s.frontier.Len() > 0 && s.frontier.top() >= current {
			p := heap.Pop(&s.frontier).(*pedge)
			row := p.rows[p.pos]
			p.pos++
			if p.pos < len(p.rows) {
				heap.Push(&s.frontier, p)
			}
			if err := s.discover(ctx, p, row); err != nil {
				return nil, err
			}
		}
		for s.intervals.Len() > 0 && s.intervals.top() >= current {
			ep := heap.Pop(&s.intervals).(*endpoints)
			ev := ep.next()
			ep.pos++
			if ep.pos < len(ep.events) {
				heap.Push(&s.intervals, ep)
			}
			if ev.open {
				s.activate(ep.u)
			} else {
				s.deactivate(ep.u)
			}
		}

		next := s.after
		if s.frontier.Len() > 0 {
			next = max(next, s.frontier.top())
		}
		if s.intervals.Len() > 0 {
			next = max(next, s.intervals.top())
		}

		// Nothing changes in (next, current]; its most recent allowed
		// episode stands for all of it.
		if s.changed {
			episode := current
			for episode > next && s.prohibited[episode] {
				episode--
			}
			if episode > next {
				s.changed = false
				s.evaluate(episode)
			}
		}

		if s.done || next <= s.after {
			return s.best, nil
		}
		current = next
	}
}

// register attaches literal l to the pattern it matches under q0, creating
// the pattern and its cursor on first use.
func (s *sweep) register(ctx context.Context, l *literal, q0 int64) error {
	if l.unmatchable {
		return nil
	}
	key := pedgeKey{isEdge: l.isEdge, q0: q0, w: l.w, q1: l.q1}
	p, ok := s.pedges[key]
	if !ok {
		rows, err := s.e.patternRows(ctx, key, s.after)
		if err != nil {
			return err
		}
		p = &pedge{key: key, rows: rows, t0: s.t0}
		s.pedges[key] = p
		if len(rows) > 0 {
			heap.Push(&s.frontier, p)
		}
	}
	if slices.Contains(p.literals, l) {
		return nil
	}
	p.literals = append(p.literals, l)
	for _, u := range p.found {
		if err := s.attach(ctx, u, l); err != nil {
			return err
		}
	}
	return nil
}

// discover handles the next fact of pattern p.
func (s *sweep) discover(ctx context.Context, p *pedge, row []int64) error {
	key := uedgeKey{isEdge: p.key.isEdge, id: row[0]}
	u, ok := s.uedges[key]
	if !ok {
		u = &uedge{key: key, q0: p.key.q0, w: p.key.w, q1: row[1]}
		s.uedges[key] = u
		pk := parentKey{isEdge: key.isEdge, q0: u.q0, w: u.w}
		s.byParent[pk] = append(s.byParent[pk], u)

		events, err := s.e.factEvents(ctx, u, s.t0, s.after)
		if err != nil {
			return err
		}
		if len(events) > 0 {
			heap.Push(&s.intervals, &endpoints{u: u, events: events})
		}
	}
	p.found = append(p.found, u)
	for _, l := range p.literals {
		if err := s.attach(ctx, u, l); err != nil {
			return err
		}
	}
	return nil
}

// attach records that fact u can satisfy literal l. Children of an edge
// literal start waiting on the facts under u's target.
func (s *sweep) attach(ctx context.Context, u *uedge, l *literal) error {
	if u.has(l) {
		return nil
	}
	u.literals = append(u.literals, l)
	if l.isEdge && !l.leaf {
		for _, c := range l.children {
			if err := s.register(ctx, c, u.q1); err != nil {
				return err
			}
		}
	}
	if u.active > 0 {
		s.satisfy(l, u.q0, u.q1)
	}
	return nil
}

func (s *sweep) activate(u *uedge) {
	u.active++
	if u.active != 1 {
		return
	}
	for _, l := range u.literals {
		s.satisfy(l, u.q0, u.q1)
	}
}

func (s *sweep) deactivate(u *uedge) {
	u.active--
	if u.active != 0 {
		return
	}
	for _, l := range u.literals {
		s.unsatisfy(l, u.q0, u.q1)
	}
}

// bound reports whether every literal leading to sym is matched at node.
func (s *sweep) bound(sym wm.Identifier, node int64) bool {
	return s.nodeCount[symNode{sym: sym, node: node}] == s.cue.incoming[sym]
}

// satisfy adds the match (p, c) to l if l's identifier is bound at p, and
// propagates to l's children when l's value becomes bound at c.
func (s *sweep) satisfy(l *literal, p, c int64) {
	if !s.bound(l.idSym, p) {
		return
	}
	pair := nodePair{parent: p, child: c}
	if l.matches[pair] {
		return
	}
	l.matches[pair] = true
	s.changed = true
	l.values[c]++
	if l.values[c] > 1 {
		return
	}

	if l.leaf {
		if len(l.values) == 1 {
			s.score += l.weight
			s.cardinality += l.sign()
		}
		return
	}

	sym := l.valueSym.(wm.Identifier)
	key := symNode{sym: sym, node: c}
	s.nodeCount[key]++
	if s.nodeCount[key] != s.cue.incoming[sym] {
		return
	}
	s.eachChildFact(l, c, s.satisfy)
}

// unsatisfy removes the match (p, c) from l and withdraws what it bound.
func (s *sweep) unsatisfy(l *literal, p, c int64) {
	pair := nodePair{parent: p, child: c}
	if !l.matches[pair] {
		return
	}
	delete(l.matches, pair)
	s.changed = true
	l.values[c]--
	if l.values[c] > 0 {
		return
	}
	delete(l.values, c)

	if l.leaf {
		if len(l.values) == 0 {
			s.score -= l.weight
			s.cardinality -= l.sign()
		}
		return
	}

	sym := l.valueSym.(wm.Identifier)
	key := symNode{sym: sym, node: c}
	wasBound := s.nodeCount[key] == s.cue.incoming[sym]
	if s.nodeCount[key]--; s.nodeCount[key] <= 0 {
		delete(s.nodeCount, key)
	}
	if wasBound {
		s.eachChildFact(l, c, s.unsatisfy)
	}
}

// eachChildFact calls fn for every active fact under node c that can
// satisfy a child of l.
func (s *sweep) eachChildFact(l *literal, c int64, fn func(l *literal, p, c int64)) {
	for _, child := range l.children {
		pk := parentKey{isEdge: child.isEdge, q0: c, w: child.w}
		for _, u := range s.byParent[pk] {
			if u.active == 0 || !u.has(child) {
				continue
			}
			fn(child, c, u.q1)
		}
	}
}

// evaluate scores the current state as episode and keeps it if it beats the
// best so far.
func (s *sweep) evaluate(episode int64) {
	balance := s.e.cfg.Balance
	score := balance*float64(s.cardinality) + (1-balance)*s.score
	perfect := s.cardinality == s.cue.perfectCardinality
	gm := s.e.cfg.GraphMatch

	s.considered++
	better := s.best == nil || score > s.best.score
	upgrade := !better && score == s.best.score && !s.best.graphMatched && gm && perfect
	if !better && !upgrade {
		s.e.observer.EpisodeEvaluated(episode, score, s.cardinality, false)
		return
	}

	var (
		matched  bool
		bindings map[wm.Identifier]int64
	)
	if gm && perfect {
		s.gmAttempts++
		bindings, matched = s.graphMatch()
	}
	s.e.observer.EpisodeEvaluated(episode, score, s.cardinality, matched)
	if upgrade && !matched {
		return
	}

	s.best = &candidate{
		episode:      episode,
		score:        score,
		cardinality:  s.cardinality,
		graphMatched: matched,
		bindings:     bindings,
	}
	if perfect && (!gm || matched) {
		s.done = true
	}
}

// patternRows loads the frontier cursor of a pattern.
func (e *Engine) patternRows(ctx context.Context, k pedgeKey, after int64) ([][]int64, error) {
	f := nodeSQL
	if k.isEdge {
		f = edgeSQL
	}
	var (
		rows [][]int64
		err  error
	)
	if k.q1 == BadID {
		rows, err = e.st.Int64s(ctx, 3, f.rowsAny, k.q0, k.w, after)
	} else {
		rows, err = e.st.Int64s(ctx, 3, f.rows, k.q0, k.w, k.q1, after)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s pattern (%d, %d, %d): %w", f.tables.kind, k.q0, k.w, k.q1, err)
	}
	return rows, nil
}

// factEvents loads the intervals of fact u that overlap (after, t0] and
// returns their endpoints in sweep order.
func (e *Engine) factEvents(ctx context.Context, u *uedge, t0, after int64) ([]event, error) {
	f := nodeSQL
	if u.key.isEdge {
		f = edgeSQL
	}
	id := u.key.id
	spans, err := e.st.Int64s(ctx, 2, f.spans, id, t0, after, id, t0, after, id, t0)
	if err != nil {
		return nil, fmt.Errorf("load %s %d intervals: %w", f.tables.kind, id, err)
	}

	slices.SortFunc(spans, func(a, b []int64) int { return cmp.Compare(b[1], a[1]) })
	events := make([]event, 0, 2*len(spans))
	for _, sp := range spans {
		events = append(events,
			event{at: min(sp[1], t0), open: true},
			event{at: sp[0] - 1, open: false},
		)
	}
	return events, nil
}
