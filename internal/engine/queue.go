package engine

import "container/heap"

// frontierQueue is a max-heap of pattern edges by the last-seen time of
// their next unread fact. Equal times pop in key order so a sweep is
// deterministic.
type frontierQueue []*pedge

func (q frontierQueue) Len() int { return len(q) }

func (q frontierQueue) Less(i, j int) bool {
	pi, pj := q[i].priority(), q[j].priority()
	if pi != pj {
		return pi > pj
	}
	return q[i].key.less(q[j].key)
}

func (q frontierQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *frontierQueue) Push(x any) { *q = append(*q, x.(*pedge)) }

func (q *frontierQueue) Pop() any {
	old := *q
	n := len(old)
	p := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return p
}

func (q frontierQueue) top() int64 { return q[0].priority() }

// endpointQueue is a max-heap of interval cursors by their next endpoint.
// At equal times the end of an older interval (a deactivation) pops before
// the start of a newer one.
type endpointQueue []*endpoints

func (q endpointQueue) Len() int { return len(q) }

func (q endpointQueue) Less(i, j int) bool {
	ei, ej := q[i].next(), q[j].next()
	if ei.at != ej.at {
		return ei.at > ej.at
	}
	if ei.open != ej.open {
		return !ei.open
	}
	return q[i].u.key.less(q[j].u.key)
}

func (q endpointQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *endpointQueue) Push(x any) { *q = append(*q, x.(*endpoints)) }

func (q *endpointQueue) Pop() any {
	old := *q
	n := len(old)
	p := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return p
}

func (q endpointQueue) top() int64 { return q[0].next().at }

var (
	_ heap.Interface = (*frontierQueue)(nil)
	_ heap.Interface = (*endpointQueue)(nil)
)
