package wm

import (
	"fmt"
	"slices"
	"strings"
)

// Render prints the subgraph reachable from root, one WME per line, with
// short-term identifiers renamed in breadth-first order (per letter, from 1).
// Siblings are ordered by attribute, then constants before identifiers, then
// value; ties keep graph order. Two structurally equal graphs built in the
// same order render identically even when their identifier numbers differ.
func Render(g Graph, root Identifier) string {
	var b strings.Builder
	for _, line := range RenderLines(g, root) {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// RenderLines is Render split into lines.
func RenderLines(g Graph, root Identifier) []string {
	names := make(map[Identifier]string)
	counters := make(map[byte]int)
	name := func(id Identifier) string {
		if id.LongTerm {
			return id.String()
		}
		if n, ok := names[id]; ok {
			return n
		}
		counters[id.Letter]++
		n := fmt.Sprintf("%c%d", id.Letter, counters[id.Letter])
		names[id] = n
		return n
	}

	var lines []string
	queue := []Identifier{root}
	name(root)
	seen := map[Identifier]bool{root: true}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		kids := g.Children(id)
		slices.SortStableFunc(kids, compareSiblings)
		for _, w := range kids {
			val := w.Value.String()
			if v, ok := w.Value.(Identifier); ok {
				val = name(v)
				if !seen[v] && !v.LongTerm {
					seen[v] = true
					queue = append(queue, v)
				}
			}
			line := "(" + name(id) + " ^" + w.Attr.String() + " " + val
			if w.Acceptable {
				line += " +"
			}
			lines = append(lines, line+")")
		}
	}
	return lines
}

func compareSiblings(a, b WME) int {
	if c := strings.Compare(a.Attr.String(), b.Attr.String()); c != 0 {
		return c
	}
	aID, bID := IsIdentifier(a.Value), IsIdentifier(b.Value)
	switch {
	case aID && !bID:
		return 1
	case !aID && bID:
		return -1
	case !aID:
		if c := strings.Compare(a.Value.String(), b.Value.String()); c != 0 {
			return c
		}
	}
	switch {
	case a.Acceptable && !b.Acceptable:
		return 1
	case !a.Acceptable && b.Acceptable:
		return -1
	}
	return 0
}
