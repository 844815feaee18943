package wm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	triples, err := Parse("(S1 ^name blocks ^count 3 ^ratio 0.5 ^item I2)(I2 ^color |dark red|) (S1 ^operator O1 +) (S1 ^memory @L4)")
	require.NoError(t, err)

	s1 := Identifier{Letter: 'S', Number: 1}
	i2 := Identifier{Letter: 'I', Number: 2}
	want := []Triple{
		{ID: s1, Attr: Sym("name"), Value: Sym("blocks")},
		{ID: s1, Attr: Sym("count"), Value: Int(3)},
		{ID: s1, Attr: Sym("ratio"), Value: Float(0.5)},
		{ID: s1, Attr: Sym("item"), Value: i2},
		{ID: i2, Attr: Sym("color"), Value: Sym("dark red")},
		{ID: s1, Attr: Sym("operator"), Value: Identifier{Letter: 'O', Number: 1}, Acceptable: true},
		{ID: s1, Attr: Sym("memory"), Value: Identifier{Letter: 'L', Number: 4, LongTerm: true}},
	}
	assert.Equal(t, want, triples)
}

func TestParseNumbers(t *testing.T) {
	tests := []struct {
		text string
		want Value
	}{
		{"3", Int(3)},
		{"-4", Int(-4)},
		{"2.5", Float(2.5)},
		{"1e3", Float(1000)},
		{"-0.25", Float(-0.25)},
		{"nan", Sym("nan")},
		{"NaN", Sym("NaN")},
		{"inf", Sym("inf")},
		{"-Inf", Sym("-Inf")},
		{"Infinity", Sym("Infinity")},
		{"0x10", Sym("0x10")},
		{"-", Sym("-")},
		{"1e999", Sym("1e999")},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			v, err := ParseValue(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"missing paren", "S1 ^a b"},
		{"constant head", "(foo ^a b)"},
		{"missing caret", "(S1 a b)"},
		{"truncated", "(S1 ^a"},
		{"variable", "(S1 ^a <x>)"},
		{"bad lti", "(S1 ^a @x)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			assert.Error(t, err)
		})
	}
}

func TestParseWithVariables(t *testing.T) {
	x := Identifier{Letter: 'X', Number: 9}
	triples, err := ParseWith("(Q1 ^item <x>)(<x> ^color red)", func(name string) Identifier {
		assert.Equal(t, "x", name)
		return x
	})
	require.NoError(t, err)
	require.Len(t, triples, 2)
	assert.Equal(t, x, triples[0].Value)
	assert.Equal(t, x, triples[1].ID)
}

func TestParseRoundTripsRender(t *testing.T) {
	for _, v := range []Value{Int(7), Float(2), Sym("big red"), Sym("12"), Sym("S3")} {
		triples, err := Parse("(S1 ^v " + v.String() + ")")
		require.NoError(t, err)
		require.Len(t, triples, 1)
		assert.Equal(t, v, triples[0].Value, "value %s", v)
	}
}

func TestParseValue(t *testing.T) {
	v, err := ParseValue("@L7")
	require.NoError(t, err)
	assert.Equal(t, Identifier{Letter: 'L', Number: 7, LongTerm: true}, v)

	v, err = ParseValue("|two words|")
	require.NoError(t, err)
	assert.Equal(t, Sym("two words"), v)

	v, err = ParseValue("2.5")
	require.NoError(t, err)
	assert.Equal(t, Float(2.5), v)

	_, err = ParseValue("a b")
	assert.Error(t, err)
	_, err = ParseValue("")
	assert.Error(t, err)
}
