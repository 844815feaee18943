package engine

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/roach88/epmem/internal/rit"
	"github.com/roach88/epmem/internal/store"
	"github.com/roach88/epmem/internal/wm"
)

// nodeRef is a node fact as resolved for one WME.
type nodeRef struct {
	id int64
	q0 int64
}

// edgeRef is an edge fact as resolved for one WME.
type edgeRef struct {
	id int64
	q0 int64
	w  int64
	q1 int64
}

// edgeNow is an edge fact with an open now interval.
type edgeNow struct {
	start int64
	ref   edgeRef
}

// tick is the scratch state of one AddEpisode call.
type tick struct {
	time  int64
	scope *refScope

	nodes    map[int64]bool
	edges    map[int64]bool
	newNodes []int64
	newEdges []edgeRef

	nodeTags map[uint64]nodeRef
	edgeTags map[uint64]edgeRef

	report EpisodeReport
}

func newTick(time int64, scope *refScope) *tick {
	return &tick{
		time:     time,
		scope:    scope,
		nodes:    make(map[int64]bool),
		edges:    make(map[int64]bool),
		nodeTags: make(map[uint64]nodeRef),
		edgeTags: make(map[uint64]edgeRef),
		report:   EpisodeReport{Episode: time},
	}
}

// AddEpisode records working memory as the next episode.
//
// The tick runs in one transaction. On any store error the transaction is
// rolled back, the engine enters StatusProblem and nothing is recorded.
func (e *Engine) AddEpisode(ctx context.Context) (EpisodeReport, error) {
	if err := e.ready(ctx); err != nil {
		return EpisodeReport{}, err
	}
	time := e.clock.Pending()

	if err := e.st.Begin(ctx); err != nil {
		e.fail(err)
		return EpisodeReport{}, fmt.Errorf("record episode %d: %w", time, err)
	}
	tk, err := e.record(ctx, time)
	if err == nil {
		err = e.st.Commit()
	} else {
		_ = e.st.Rollback()
	}
	if err != nil {
		e.hashes.invalidate()
		e.fail(err)
		return EpisodeReport{}, fmt.Errorf("record episode %d: %w", time, err)
	}

	e.clock.Next()
	e.stats.NodesCreated += int64(tk.report.NodesCreated)
	e.stats.EdgesCreated += int64(tk.report.EdgesCreated)
	e.stats.PoolReuses += int64(tk.report.PoolReuses)
	e.observer.EpisodeStored(tk.report)
	return tk.report, nil
}

func (e *Engine) record(ctx context.Context, time int64) (*tick, error) {
	tk := newTick(time, e.refs.Scope())
	startID := e.nextID

	if err := e.walk(ctx, tk); err != nil {
		return nil, err
	}

	var closed []edgeRef
	for _, id := range untouched(e.nodeNow, tk.nodes) {
		if err := e.closeFact(ctx, nodeSQL, e.nodes, id, e.nodeNow[id], time-1); err != nil {
			return nil, err
		}
		delete(e.nodeNow, id)
		tk.report.Closed++
	}
	for _, id := range untouched(e.edgeNow, tk.edges) {
		now := e.edgeNow[id]
		if err := e.closeFact(ctx, edgeSQL, e.edges, id, now.start, time-1); err != nil {
			return nil, err
		}
		delete(e.edgeNow, id)
		closed = append(closed, now.ref)
		tk.report.Closed++
	}

	for _, id := range tk.newNodes {
		if err := e.openFact(ctx, nodeSQL, id, time); err != nil {
			return nil, err
		}
		e.nodeNow[id] = time
	}
	for _, ref := range tk.newEdges {
		if err := e.openFact(ctx, edgeSQL, ref.id, time); err != nil {
			return nil, err
		}
		e.edgeNow[ref.id] = edgeNow{start: time, ref: ref}
	}
	tk.report.Activated = len(tk.newNodes) + len(tk.newEdges)

	if _, err := e.st.Exec(ctx, addTimeSQL, time); err != nil {
		return nil, fmt.Errorf("add time: %w", err)
	}
	if e.nextID != startID {
		if err := e.st.SetVar(ctx, store.VarNextID, e.nextID); err != nil {
			return nil, err
		}
	}

	// Release last tick's holds now that this tick's are in place; whatever
	// drops to zero has left working memory.
	for _, q := range e.live.Release() {
		e.binds.unbind(q)
	}
	e.live = tk.scope
	for _, ref := range closed {
		if _, lti := e.ltis[ref.q1]; lti || e.binds.bound(ref.q1) {
			continue
		}
		e.pool.put(poolKey{q0: ref.q0, w: ref.w}, poolEntry{q1: ref.q1, edge: ref.id})
	}

	e.nodeTags = tk.nodeTags
	e.edgeTags = tk.edgeTags
	return tk, nil
}

// walk visits working memory breadth-first from the root and resolves every
// recorded WME to a fact.
func (e *Engine) walk(ctx context.Context, tk *tick) error {
	root := e.graph.Root()
	visited := map[wm.Identifier]bool{root: true}
	queue := []wm.Identifier{root}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		q0, ok := e.binds.lookup(id)
		if !ok {
			return fmt.Errorf("walk: %s reached without an id", id)
		}

		for _, w := range e.graph.Children(id) {
			if e.skip(w) {
				continue
			}
			v, isID := w.Value.(wm.Identifier)
			if !isID {
				ref, err := e.recordNode(ctx, tk, w, q0)
				if err != nil {
					return err
				}
				if !tk.nodes[ref.id] {
					tk.nodes[ref.id] = true
					if _, open := e.nodeNow[ref.id]; !open {
						tk.newNodes = append(tk.newNodes, ref.id)
					}
				}
				continue
			}

			ref, err := e.recordEdge(ctx, tk, w, q0, v)
			if err != nil {
				return err
			}
			if !tk.edges[ref.id] {
				tk.edges[ref.id] = true
				if _, open := e.edgeNow[ref.id]; !open {
					tk.newEdges = append(tk.newEdges, ref)
				}
			}
			if v.LongTerm {
				continue
			}
			tk.scope.Hold(ref.q1)
			if !visited[v] {
				visited[v] = true
				queue = append(queue, v)
			}
		}
	}
	return nil
}

// skip reports whether w is never recorded: excluded attributes, and WMEs
// whose attribute is itself an identifier.
func (e *Engine) skip(w wm.WME) bool {
	switch a := w.Attr.(type) {
	case wm.Identifier:
		return true
	case wm.Sym:
		return e.cfg.Excluded(string(a))
	}
	return false
}

func (e *Engine) attrHash(ctx context.Context, w wm.WME) (int64, error) {
	if w.Acceptable {
		return HashAcceptable, nil
	}
	return e.hashes.Hash(ctx, w.Attr, true)
}

func (e *Engine) recordNode(ctx context.Context, tk *tick, w wm.WME, q0 int64) (nodeRef, error) {
	if ref, ok := e.nodeTags[w.Timetag]; ok && ref.q0 == q0 {
		tk.nodeTags[w.Timetag] = ref
		return ref, nil
	}

	attr, err := e.attrHash(ctx, w)
	if err != nil {
		return nodeRef{}, err
	}
	val, err := e.hashes.Hash(ctx, w.Value, true)
	if err != nil {
		return nodeRef{}, err
	}
	id, created, err := e.findOrAdd(ctx, nodeSQL, q0, attr, val)
	if err != nil {
		return nodeRef{}, err
	}
	if created {
		tk.report.NodesCreated++
	}
	ref := nodeRef{id: id, q0: q0}
	tk.nodeTags[w.Timetag] = ref
	return ref, nil
}

// recordEdge resolves the edge for w, whose value is v. A short-term value
// that is not bound yet takes an id freed from the same (q0, w) position
// when one is available, and a fresh id otherwise.
func (e *Engine) recordEdge(ctx context.Context, tk *tick, w wm.WME, q0 int64, v wm.Identifier) (edgeRef, error) {
	if ref, ok := e.edgeTags[w.Timetag]; ok && ref.q0 == q0 {
		if q1, ok := e.valueID(v); ok && q1 == ref.q1 {
			tk.edgeTags[w.Timetag] = ref
			return ref, nil
		}
	}

	attr, err := e.attrHash(ctx, w)
	if err != nil {
		return edgeRef{}, err
	}

	var q1 int64
	switch bound, ok := e.binds.lookup(v); {
	case v.LongTerm:
		if q1, err = e.promote(ctx, v, tk.time); err != nil {
			return edgeRef{}, err
		}
	case ok:
		q1 = bound
	default:
		key := poolKey{q0: q0, w: attr}
		if ent, ok := e.pool.take(key, func(q int64) bool { return !e.binds.bound(q) }); ok {
			e.binds.bind(v, ent.q1)
			tk.report.PoolReuses++
			ref := edgeRef{id: ent.edge, q0: q0, w: attr, q1: ent.q1}
			tk.edgeTags[w.Timetag] = ref
			return ref, nil
		}
		q1 = e.nextID
		e.nextID++
		e.binds.bind(v, q1)
	}

	id, created, err := e.findOrAdd(ctx, edgeSQL, q0, attr, q1)
	if err != nil {
		return edgeRef{}, err
	}
	if created {
		tk.report.EdgesCreated++
	}
	ref := edgeRef{id: id, q0: q0, w: attr, q1: q1}
	tk.edgeTags[w.Timetag] = ref
	return ref, nil
}

// valueID returns the identifier id v currently has.
func (e *Engine) valueID(v wm.Identifier) (int64, bool) {
	if v.LongTerm {
		return e.ltiID(v)
	}
	return e.binds.lookup(v)
}

func (e *Engine) findOrAdd(ctx context.Context, f factSQL, parent, attr, value int64) (id int64, created bool, err error) {
	id, ok, err := e.st.Int64(ctx, f.find, parent, attr, value)
	if err != nil {
		return 0, false, fmt.Errorf("find %s: %w", f.tables.kind, err)
	}
	if ok {
		return id, false, nil
	}
	res, err := e.st.Exec(ctx, f.add, parent, attr, value, int64(math.MaxInt64))
	if err != nil {
		return 0, false, fmt.Errorf("add %s: %w", f.tables.kind, err)
	}
	if id, err = res.LastInsertId(); err != nil {
		return 0, false, fmt.Errorf("add %s: %w", f.tables.kind, err)
	}
	return id, true, nil
}

// openFact gives fact id a now interval starting at time.
func (e *Engine) openFact(ctx context.Context, f factSQL, id, time int64) error {
	if _, err := e.st.Exec(ctx, f.addNow, id, time); err != nil {
		return fmt.Errorf("open %s %d: %w", f.tables.kind, id, err)
	}
	if _, err := e.st.Exec(ctx, f.setLast, int64(math.MaxInt64), id); err != nil {
		return fmt.Errorf("open %s %d: %w", f.tables.kind, id, err)
	}
	return nil
}

// closeFact replaces the now interval of fact id with [start, end].
func (e *Engine) closeFact(ctx context.Context, f factSQL, tree *rit.Tree, id, start, end int64) error {
	if _, err := e.st.Exec(ctx, f.delNow, id); err != nil {
		return fmt.Errorf("close %s %d: %w", f.tables.kind, id, err)
	}
	if start == end {
		if _, err := e.st.Exec(ctx, f.addPoint, id, start); err != nil {
			return fmt.Errorf("close %s %d: %w", f.tables.kind, id, err)
		}
	} else if err := tree.InsertInterval(ctx, start, end, id); err != nil {
		return fmt.Errorf("close %s %d: %w", f.tables.kind, id, err)
	}
	if _, err := e.st.Exec(ctx, f.setLast, end, id); err != nil {
		return fmt.Errorf("close %s %d: %w", f.tables.kind, id, err)
	}
	return nil
}

// closeOpenIntervals ends every now interval at episode last. It runs when
// the store is opened, before any tick, so a restart never extends a fact
// across episodes that were not recorded.
func (e *Engine) closeOpenIntervals(ctx context.Context, last int64) error {
	if err := e.st.Begin(ctx); err != nil {
		return err
	}
	err := func() error {
		for _, ax := range []struct {
			f    factSQL
			tree *rit.Tree
		}{{nodeSQL, e.nodes}, {edgeSQL, e.edges}} {
			rows, err := e.st.Int64s(ctx, 2, ax.f.allNow)
			if err != nil {
				return fmt.Errorf("load open %s intervals: %w", ax.f.tables.kind, err)
			}
			for _, r := range rows {
				if err := e.closeFact(ctx, ax.f, ax.tree, r[0], r[1], last); err != nil {
					return err
				}
			}
		}
		return nil
	}()
	if err != nil {
		_ = e.st.Rollback()
		return err
	}
	return e.st.Commit()
}

// untouched returns the keys of open that are not in touched, ascending.
func untouched[V any](open map[int64]V, touched map[int64]bool) []int64 {
	var ids []int64
	for id := range open {
		if !touched[id] {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}
