package wm

import "fmt"

// Memory is an in-memory Graph. It backs the harness, the CLI and tests.
type Memory struct {
	root     Identifier
	children map[Identifier][]WME
	nextTag  uint64
	counters map[byte]uint64
	// inbound counts WMEs that use an identifier as their value.
	inbound map[Identifier]int
	// synced holds the timetags owned by the last Sync call.
	synced map[uint64]struct{}
}

// NewMemory creates a graph whose root is S1.
func NewMemory() *Memory {
	m := &Memory{
		root:     Identifier{Letter: 'S', Number: 1},
		children: make(map[Identifier][]WME),
		counters: make(map[byte]uint64),
		inbound:  make(map[Identifier]int),
		synced:   make(map[uint64]struct{}),
	}
	m.observe(m.root)
	return m
}

// Root implements Graph.
func (m *Memory) Root() Identifier {
	return m.root
}

// Children implements Graph. The returned slice is a copy.
func (m *Memory) Children(id Identifier) []WME {
	kids := m.children[id]
	if len(kids) == 0 {
		return nil
	}
	out := make([]WME, len(kids))
	copy(out, kids)
	return out
}

// Add implements Graph.
func (m *Memory) Add(id Identifier, attr, value Value, acceptable bool) WME {
	m.nextTag++
	w := WME{Timetag: m.nextTag, ID: id, Attr: attr, Value: value, Acceptable: acceptable}
	m.children[id] = append(m.children[id], w)
	m.observe(id)
	if v, ok := value.(Identifier); ok {
		m.observe(v)
		m.inbound[v]++
	}
	return w
}

// Remove implements Graph.
func (m *Memory) Remove(w WME) bool {
	kids := m.children[w.ID]
	for i, k := range kids {
		if k.Timetag != w.Timetag {
			continue
		}
		kids = append(kids[:i:i], kids[i+1:]...)
		if len(kids) == 0 {
			delete(m.children, w.ID)
		} else {
			m.children[w.ID] = kids
		}
		if v, ok := k.Value.(Identifier); ok {
			if m.inbound[v]--; m.inbound[v] <= 0 {
				delete(m.inbound, v)
			}
		}
		delete(m.synced, w.Timetag)
		return true
	}
	return false
}

// NewIdentifier implements Graph.
func (m *Memory) NewIdentifier(letter byte) Identifier {
	m.counters[letter]++
	return Identifier{Letter: letter, Number: m.counters[letter]}
}

// LongTermIdentifier implements Graph.
func (m *Memory) LongTermIdentifier(letter byte, number uint64) (Identifier, bool) {
	id := Identifier{Letter: letter, Number: number, LongTerm: true}
	_, hasKids := m.children[id]
	return id, hasKids || m.inbound[id] > 0
}

// Find returns the first WME matching t.
func (m *Memory) Find(t Triple) (WME, bool) {
	for _, w := range m.children[t.ID] {
		if w.Triple() == t {
			return w, true
		}
	}
	return WME{}, false
}

// Len returns the number of WMEs in the graph.
func (m *Memory) Len() int {
	n := 0
	for _, kids := range m.children {
		n += len(kids)
	}
	return n
}

// Sync makes the set of WMEs owned by previous Sync calls equal to triples.
// WMEs that are unchanged keep their timetags, so the engine sees no change
// for them. WMEs asserted through Add are never touched.
func (m *Memory) Sync(triples []Triple) {
	want := make(map[Triple]int, len(triples))
	for _, t := range triples {
		want[t]++
	}
	var stale []WME
	for _, kids := range m.children {
		for _, w := range kids {
			if _, ok := m.synced[w.Timetag]; !ok {
				continue
			}
			t := w.Triple()
			if want[t] > 0 {
				want[t]--
				continue
			}
			stale = append(stale, w)
		}
	}
	for _, w := range stale {
		m.Remove(w)
	}
	// Preserve input order for additions so timetags are deterministic.
	for _, t := range triples {
		if want[t] == 0 {
			continue
		}
		want[t]--
		w := m.Add(t.ID, t.Attr, t.Value, t.Acceptable)
		m.synced[w.Timetag] = struct{}{}
	}
}

// AddText parses text and asserts every triple. Variables such as <x> are
// bound to fresh identifiers; the binding is shared across the whole text.
// It returns the ID of the first triple.
func (m *Memory) AddText(text string) (Identifier, error) {
	vars := make(map[string]Identifier)
	triples, err := ParseWith(text, func(name string) Identifier {
		if id, ok := vars[name]; ok {
			return id
		}
		id := m.NewIdentifier(IdentifierLetter(Sym(name)))
		vars[name] = id
		return id
	})
	if err != nil {
		return Identifier{}, err
	}
	if len(triples) == 0 {
		return Identifier{}, fmt.Errorf("wm: no triples in %q", text)
	}
	for _, t := range triples {
		m.Add(t.ID, t.Attr, t.Value, t.Acceptable)
	}
	return triples[0].ID, nil
}

// observe keeps NewIdentifier from handing out numbers already in use.
func (m *Memory) observe(id Identifier) {
	if id.LongTerm {
		return
	}
	if id.Number > m.counters[id.Letter] {
		m.counters[id.Letter] = id.Number
	}
}
