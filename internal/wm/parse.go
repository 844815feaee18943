package wm

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse reads WME triples written as
//
//	(S1 ^name blocks ^count 3 ^item I2)(I2 ^color red)(S1 ^operator O1 +)
//
// Identifiers are an upper-case letter followed by digits, long-term
// identifiers are prefixed with @, |bar quoted| text is a Sym. Variables
// (<x>) are rejected; use ParseWith to bind them.
func Parse(text string) ([]Triple, error) {
	return ParseWith(text, nil)
}

// ParseWith is Parse with a resolver for <variable> tokens.
func ParseWith(text string, vars func(name string) Identifier) ([]Triple, error) {
	p := &parser{toks: tokenize(text), vars: vars}
	var out []Triple
	for !p.done() {
		ts, err := p.clause()
		if err != nil {
			return nil, err
		}
		out = append(out, ts...)
	}
	return out, nil
}

// MustParse is Parse for tests and fixtures; it panics on error.
func MustParse(text string) []Triple {
	ts, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return ts
}

// ParseValue reads a single value such as 3, 2.5, |two words|, I2 or @L7.
func ParseValue(text string) (Value, error) {
	toks := tokenize(text)
	if len(toks) != 1 {
		return nil, fmt.Errorf("wm: expected one value, got %q", text)
	}
	p := &parser{toks: toks}
	return p.value(toks[0])
}

type token struct {
	text   string
	quoted bool
}

func tokenize(s string) []token {
	var toks []token
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(' || c == ')' || c == '^':
			toks = append(toks, token{text: string(c)})
			i++
		case c == '|':
			j := strings.IndexByte(s[i+1:], '|')
			if j < 0 {
				toks = append(toks, token{text: s[i+1:], quoted: true})
				return toks
			}
			toks = append(toks, token{text: s[i+1 : i+1+j], quoted: true})
			i += j + 2
		default:
			j := i
			for j < len(s) && !strings.ContainsRune(" \t\n\r()^|", rune(s[j])) {
				j++
			}
			toks = append(toks, token{text: s[i:j]})
			i = j
		}
	}
	return toks
}

type parser struct {
	toks []token
	pos  int
	vars func(string) Identifier
}

func (p *parser) done() bool { return p.pos >= len(p.toks) }

func (p *parser) next() (token, error) {
	if p.done() {
		return token{}, fmt.Errorf("wm: unexpected end of input")
	}
	t := p.toks[p.pos]
	p.pos++
	return t, nil
}

func (p *parser) peek() (token, bool) {
	if p.done() {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) expect(s string) error {
	t, err := p.next()
	if err != nil {
		return err
	}
	if t.quoted || t.text != s {
		return fmt.Errorf("wm: expected %q, got %q", s, t.text)
	}
	return nil
}

func (p *parser) clause() ([]Triple, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	t, err := p.next()
	if err != nil {
		return nil, err
	}
	v, err := p.value(t)
	if err != nil {
		return nil, err
	}
	id, ok := v.(Identifier)
	if !ok {
		return nil, fmt.Errorf("wm: clause must start with an identifier, got %q", t.text)
	}

	var out []Triple
	for {
		t, err := p.next()
		if err != nil {
			return nil, err
		}
		if !t.quoted && t.text == ")" {
			return out, nil
		}
		if t.quoted || t.text != "^" {
			return nil, fmt.Errorf("wm: expected ^ or ), got %q", t.text)
		}
		at, err := p.next()
		if err != nil {
			return nil, err
		}
		attr, err := p.value(at)
		if err != nil {
			return nil, err
		}
		vt, err := p.next()
		if err != nil {
			return nil, err
		}
		val, err := p.value(vt)
		if err != nil {
			return nil, err
		}
		tr := Triple{ID: id, Attr: attr, Value: val}
		if nt, ok := p.peek(); ok && !nt.quoted && nt.text == "+" {
			p.pos++
			tr.Acceptable = true
		}
		out = append(out, tr)
	}
}

func (p *parser) value(t token) (Value, error) {
	if t.quoted {
		return Sym(t.text), nil
	}
	s := t.text
	switch s {
	case "(", ")", "^":
		return nil, fmt.Errorf("wm: unexpected %q", s)
	}
	if strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">") && len(s) > 2 {
		if p.vars == nil {
			return nil, fmt.Errorf("wm: variable %s not allowed here", s)
		}
		return p.vars(s[1 : len(s)-1]), nil
	}
	if strings.HasPrefix(s, "@") {
		id, ok := parseIdentifier(s[1:])
		if !ok {
			return nil, fmt.Errorf("wm: bad long-term identifier %q", s)
		}
		id.LongTerm = true
		return id, nil
	}
	if id, ok := parseIdentifier(s); ok {
		return id, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(n), nil
	}
	if isDecimal(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return Float(f), nil
		}
	}
	return Sym(s), nil
}

// isDecimal reports whether s is written in decimal float syntax. Words such
// as nan and inf stay symbols.
func isDecimal(s string) bool {
	digits := false
	for _, c := range s {
		switch {
		case '0' <= c && c <= '9':
			digits = true
		case c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-':
		default:
			return false
		}
	}
	return digits
}

func parseIdentifier(s string) (Identifier, bool) {
	if len(s) < 2 || s[0] < 'A' || s[0] > 'Z' {
		return Identifier{}, false
	}
	n, err := strconv.ParseUint(s[1:], 10, 64)
	if err != nil || n == 0 || s[1] == '+' {
		return Identifier{}, false
	}
	return Identifier{Letter: s[0], Number: n}, true
}
