package wm

import (
	"fmt"
	"strconv"
)

// Value is a sealed interface over the symbol kinds that can appear as a
// WME attribute or value. Only Int, Float, Sym and Identifier implement it.
type Value interface {
	wmValue() // Sealed - only these types implement it
	String() string
}

// Int is an integer constant.
type Int int64

func (Int) wmValue() {}

func (v Int) String() string { return strconv.FormatInt(int64(v), 10) }

// Float is a floating point constant.
type Float float64

func (Float) wmValue() {}

// String renders the float so that it never reads back as an Int.
func (v Float) String() string {
	s := strconv.FormatFloat(float64(v), 'g', -1, 64)
	for _, c := range s {
		if c == '.' || c == 'e' || c == 'E' || c == 'N' || c == 'I' {
			return s
		}
	}
	return s + ".0"
}

// Sym is a string constant.
type Sym string

func (Sym) wmValue() {}

// String quotes the symbol with vertical bars when it would not parse back
// as a bare symbol.
func (v Sym) String() string {
	s := string(v)
	if s == "" || needsQuoting(s) {
		return "|" + s + "|"
	}
	return s
}

// Identifier names a node of the working-memory graph. Identifiers compare
// by value: two Identifiers with the same letter, number and long-term flag
// are the same node.
type Identifier struct {
	Letter byte
	Number uint64
	// LongTerm marks identifiers that live in long-term memory. They are
	// written as @L12.
	LongTerm bool
}

func (Identifier) wmValue() {}

func (id Identifier) String() string {
	if id.LongTerm {
		return fmt.Sprintf("@%c%d", id.Letter, id.Number)
	}
	return fmt.Sprintf("%c%d", id.Letter, id.Number)
}

// IsZero reports whether id is the zero Identifier.
func (id Identifier) IsZero() bool {
	return id == Identifier{}
}

// Kind enumerates the Value variants. The numeric values are persisted by the
// temporal hash and must not change.
type Kind int

const (
	KindIdentifier Kind = 0
	KindSym        Kind = 2
	KindInt        Kind = 3
	KindFloat      Kind = 4
)

func (k Kind) String() string {
	switch k {
	case KindIdentifier:
		return "identifier"
	case KindSym:
		return "sym"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// KindOf returns the variant tag of v.
func KindOf(v Value) Kind {
	switch v.(type) {
	case Identifier:
		return KindIdentifier
	case Sym:
		return KindSym
	case Int:
		return KindInt
	case Float:
		return KindFloat
	default:
		panic(fmt.Sprintf("wm: unknown value type %T", v))
	}
}

// IsIdentifier reports whether v is an Identifier.
func IsIdentifier(v Value) bool {
	_, ok := v.(Identifier)
	return ok
}

// IdentifierLetter picks the letter used for an identifier created under
// attribute attr: the upper-cased first letter of a symbol attribute, or 'I'.
func IdentifierLetter(attr Value) byte {
	if s, ok := attr.(Sym); ok && len(s) > 0 {
		c := s[0]
		switch {
		case c >= 'a' && c <= 'z':
			return c - 'a' + 'A'
		case c >= 'A' && c <= 'Z':
			return c
		}
	}
	return 'I'
}

func needsQuoting(s string) bool {
	for _, c := range s {
		switch c {
		case ' ', '\t', '\n', '(', ')', '^', '|', '"':
			return true
		}
	}
	// Bare text that would parse as a number or identifier must be quoted.
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return true
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return true
	}
	if _, ok := parseIdentifier(s); ok {
		return true
	}
	return s[0] == '<' || s[0] == '@' || s == "+"
}
