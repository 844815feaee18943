package wm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderRenamesIdentifiers(t *testing.T) {
	m := NewMemory()
	anchor := Identifier{Letter: 'R', Number: 7}
	item := Identifier{Letter: 'I', Number: 9}
	m.Add(anchor, Sym("item"), item, false)
	m.Add(item, Sym("color"), Sym("red"), false)
	m.Add(anchor, Sym("foo"), Sym("bar"), false)

	want := "(R1 ^foo bar)\n(R1 ^item I1)\n(I1 ^color red)\n"
	assert.Equal(t, want, Render(m, anchor))
}

func TestRenderStructurallyEqualGraphs(t *testing.T) {
	build := func(m *Memory, root Identifier) {
		a := m.NewIdentifier('A')
		m.Add(root, Sym("x"), a, false)
		m.Add(a, Sym("v"), Int(1), false)
		m.Add(a, Sym("back"), root, false)
		m.Add(root, Sym("op"), a, true)
	}
	m1 := NewMemory()
	build(m1, m1.Root())
	m2 := NewMemory()
	m2.NewIdentifier('A')
	m2.NewIdentifier('A')
	build(m2, m2.Root())

	assert.Equal(t, Render(m1, m1.Root()), Render(m2, m2.Root()))
	assert.Equal(t, []string{
		"(S1 ^op A1 +)",
		"(S1 ^x A1)",
		"(A1 ^back S1)",
		"(A1 ^v 1)",
	}, RenderLines(m1, m1.Root()))
}
