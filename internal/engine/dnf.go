package engine

import (
	"context"

	"github.com/roach88/epmem/internal/wm"
)

// perfectBalance is the balance at and above which scoring is pure
// cardinality.
const perfectBalance = 1 - 1e-8

// nodePair is one match of a literal: the ids its identifier and value
// symbols are bound to.
type nodePair struct {
	parent int64
	child  int64
}

// literal is one cue WME in the DNF literal graph.
type literal struct {
	wme      wm.WME
	idSym    wm.Identifier
	valueSym wm.Value

	// w is the attribute hash. q1 is the value hash of a node literal, the
	// identifier id of a long-term identifier value, or BadID for any
	// short-term identifier.
	w  int64
	q1 int64

	isEdge      bool
	negated     bool
	leaf        bool
	unmatchable bool
	weight      float64
	order       int

	parents  []*literal
	children []*literal

	matches map[nodePair]bool
	// values counts matches per child id.
	values map[int64]int
}

func (l *literal) sign() int {
	if l.negated {
		return -1
	}
	return 1
}

// cue is a compiled query: the literal graph under the positive and
// negative cue roots.
type cue struct {
	pos    wm.Identifier
	neg    wm.Identifier
	hasNeg bool

	// top holds the literals hanging off either root.
	top      []*literal
	literals []*literal
	leaves   []*literal

	// incoming counts the non-leaf literals whose value is each identifier.
	incoming map[wm.Identifier]int

	perfectCardinality int
	perfectScore       float64
}

type cueCompiler struct {
	e        *Engine
	balance  float64
	memo     map[wm.Identifier][]*literal
	byTag    map[uint64]*literal
	visiting map[wm.Identifier]bool
	cue      *cue
}

// compileCue builds the literal graph for pos and, when hasNeg, neg.
func (e *Engine) compileCue(ctx context.Context, pos wm.Identifier, neg wm.Identifier, hasNeg bool) (*cue, error) {
	c := &cueCompiler{
		e:        e,
		balance:  e.cfg.Balance,
		memo:     make(map[wm.Identifier][]*literal),
		byTag:    make(map[uint64]*literal),
		visiting: make(map[wm.Identifier]bool),
		cue: &cue{
			pos:      pos,
			neg:      neg,
			hasNeg:   hasNeg,
			incoming: make(map[wm.Identifier]int),
		},
	}

	top, err := c.children(ctx, pos, false)
	if err != nil {
		return nil, err
	}
	if len(top) == 0 {
		return nil, badCommand("positive cue %s has no WMEs", pos)
	}
	c.cue.top = append(c.cue.top, top...)
	if hasNeg {
		if neg == pos {
			return nil, badCommand("negative cue is the positive cue %s", pos)
		}
		top, err := c.children(ctx, neg, true)
		if err != nil {
			return nil, err
		}
		c.cue.top = append(c.cue.top, top...)
	}

	q := c.cue
	for _, l := range q.literals {
		if l.leaf {
			q.leaves = append(q.leaves, l)
			if !l.negated {
				q.perfectCardinality++
				q.perfectScore += l.weight
			}
			continue
		}
		if v, ok := l.valueSym.(wm.Identifier); ok {
			q.incoming[v]++
		}
	}
	if q.perfectCardinality == 0 {
		return nil, badCommand("positive cue %s has no leaf WMEs", pos)
	}
	q.perfectScore = c.balance*float64(q.perfectCardinality) + (1-c.balance)*q.perfectScore
	// The roots are bound to RootID by construction.
	q.incoming[pos] = 1
	if hasNeg {
		q.incoming[neg] = 1
	}
	return q, nil
}

// children returns the literals for the WMEs under id, compiling each
// identifier once.
func (c *cueCompiler) children(ctx context.Context, id wm.Identifier, negated bool) ([]*literal, error) {
	if lits, ok := c.memo[id]; ok {
		return lits, nil
	}
	c.visiting[id] = true
	defer delete(c.visiting, id)

	var out []*literal
	for _, w := range c.e.graph.Children(id) {
		l, ok, err := c.literal(ctx, w, negated)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, l)
		}
	}
	c.memo[id] = out
	return out, nil
}

// literal compiles one cue WME. ok is false for WMEs that cannot take part
// in a match: identifier attributes and edges that close a cycle.
func (c *cueCompiler) literal(ctx context.Context, w wm.WME, negated bool) (*literal, bool, error) {
	if l, ok := c.byTag[w.Timetag]; ok {
		return l, true, nil
	}
	if wm.IsIdentifier(w.Attr) {
		return nil, false, nil
	}
	v, isID := w.Value.(wm.Identifier)
	if isID && c.visiting[v] {
		return nil, false, nil
	}

	l := &literal{
		wme:      w,
		idSym:    w.ID,
		valueSym: w.Value,
		negated:  negated,
		order:    len(c.cue.literals),
		matches:  make(map[nodePair]bool),
		values:   make(map[int64]int),
	}
	l.weight = float64(l.sign()) * c.factor(w)
	c.byTag[w.Timetag] = l
	c.cue.literals = append(c.cue.literals, l)

	if w.Acceptable {
		l.w = HashAcceptable
	} else {
		h, err := c.e.hashes.Hash(ctx, w.Attr, false)
		if err != nil {
			return nil, false, err
		}
		l.w = h
		l.unmatchable = h == HashNone
	}

	switch {
	case !isID:
		h, err := c.e.hashes.Hash(ctx, w.Value, false)
		if err != nil {
			return nil, false, err
		}
		l.q1 = h
		l.unmatchable = l.unmatchable || h == HashNone
		l.leaf = true
	case v.LongTerm:
		l.isEdge = true
		l.leaf = true
		if q, ok := c.e.ltiID(v); ok {
			l.q1 = q
		} else {
			l.unmatchable = true
		}
	default:
		l.isEdge = true
		l.q1 = BadID
		kids, err := c.children(ctx, v, negated)
		if err != nil {
			return nil, false, err
		}
		l.children = kids
		l.leaf = len(kids) == 0
		for _, k := range kids {
			k.parents = append(k.parents, l)
		}
	}
	return l, true, nil
}

func (c *cueCompiler) factor(w wm.WME) float64 {
	if c.balance >= perfectBalance {
		return 1
	}
	return c.e.activation.Activation(w)
}
