package form

import (
	"fmt"
	"slices"
	"strings"
)

// Selector is a parsed, comma-separated list of compound selectors.
//
// Supported syntax per compound: an optional tag name or "*", then any
// number of "#id", ".class" and "[attr]" / "[attr<op>value]" parts where
// <op> is one of = *= ^= $= ~=. A compound may be preceded by one ancestor
// compound separated by whitespace; the ancestor is matched against the
// field's container.
type Selector struct {
	raw    string
	groups []group
}

type group struct {
	ancestor *compound
	subject  compound
}

type compound struct {
	tag     string
	ids     []string
	classes []string
	attrs   []attrMatch
}

type attrMatch struct {
	name  string
	op    string
	value string
}

// SelectorError reports a malformed selector.
type SelectorError struct {
	Selector string
	Pos      int
	Message  string
}

func (e *SelectorError) Error() string {
	return fmt.Sprintf("selector %q col %d: %s", e.Selector, e.Pos+1, e.Message)
}

// ParseSelector parses a selector string.
func ParseSelector(s string) (*Selector, error) {
	p := &selectorParser{input: s}
	sel := &Selector{raw: s}
	for {
		p.skipSpace()
		if p.atEnd() {
			return nil, p.errorf("expected selector")
		}
		g, err := p.parseGroup()
		if err != nil {
			return nil, err
		}
		sel.groups = append(sel.groups, g)
		p.skipSpace()
		if p.atEnd() {
			return sel, nil
		}
		if p.peek() != ',' {
			return nil, p.errorf("unexpected %q", p.peek())
		}
		p.pos++
	}
}

// String returns the source text.
func (s *Selector) String() string { return s.raw }

// Match reports whether f matches any group.
func (s *Selector) Match(f *Field) bool {
	for _, g := range s.groups {
		if !g.subject.matchField(f) {
			continue
		}
		if g.ancestor != nil && (f.Container == nil || !g.ancestor.matchContainer(f.Container)) {
			continue
		}
		return true
	}
	return false
}

// MatchContainer reports whether c matches any group's subject.
func (s *Selector) MatchContainer(c *Container) bool {
	for _, g := range s.groups {
		if g.ancestor == nil && g.subject.matchContainer(c) {
			return true
		}
	}
	return false
}

func (c *compound) matchField(f *Field) bool {
	if c.tag != "" && c.tag != "*" && c.tag != f.Tag() {
		return false
	}
	for _, id := range c.ids {
		if f.ID != id {
			return false
		}
	}
	for _, cl := range c.classes {
		if !f.HasClass(cl) {
			return false
		}
	}
	for _, a := range c.attrs {
		v, ok := f.Attr(a.name)
		if !ok || !a.match(v) {
			return false
		}
	}
	return true
}

func (c *compound) matchContainer(ct *Container) bool {
	if c.tag != "" && c.tag != "*" {
		return false
	}
	for _, id := range c.ids {
		if ct.ID != id {
			return false
		}
	}
	for _, cl := range c.classes {
		if !slices.Contains(ct.Classes, cl) {
			return false
		}
	}
	for _, a := range c.attrs {
		if a.name != "id" || !a.match(ct.ID) {
			return false
		}
	}
	return true
}

func (a attrMatch) match(v string) bool {
	switch a.op {
	case "":
		return true
	case "=":
		return v == a.value
	case "*=":
		return a.value != "" && strings.Contains(v, a.value)
	case "^=":
		return a.value != "" && strings.HasPrefix(v, a.value)
	case "$=":
		return a.value != "" && strings.HasSuffix(v, a.value)
	case "~=":
		return slices.Contains(strings.Fields(v), a.value)
	}
	return false
}

// ── parsing ─────────────────────────────────────────────────────────────────

type selectorParser struct {
	input string
	pos   int
}

func (p *selectorParser) atEnd() bool { return p.pos >= len(p.input) }

func (p *selectorParser) peek() byte {
	if p.atEnd() {
		return 0
	}
	return p.input[p.pos]
}

func (p *selectorParser) skipSpace() {
	for !p.atEnd() && isSpace(p.peek()) {
		p.pos++
	}
}

func (p *selectorParser) errorf(format string, args ...any) *SelectorError {
	return &SelectorError{Selector: p.input, Pos: p.pos, Message: fmt.Sprintf(format, args...)}
}

func (p *selectorParser) parseGroup() (group, error) {
	first, err := p.parseCompound()
	if err != nil {
		return group{}, err
	}
	if p.atEnd() || !isSpace(p.peek()) {
		return group{subject: first}, nil
	}
	p.skipSpace()
	if p.atEnd() || p.peek() == ',' {
		return group{subject: first}, nil
	}
	second, err := p.parseCompound()
	if err != nil {
		return group{}, err
	}
	if !p.atEnd() && isSpace(p.peek()) {
		save := p.pos
		p.skipSpace()
		if !p.atEnd() && p.peek() != ',' {
			return group{}, p.errorf("only one ancestor level is supported")
		}
		p.pos = save
	}
	return group{ancestor: &first, subject: second}, nil
}

func (p *selectorParser) parseCompound() (compound, error) {
	var c compound
	start := p.pos
	if p.peek() == '*' {
		c.tag = "*"
		p.pos++
	} else if isIdentByte(p.peek()) {
		c.tag = strings.ToLower(p.ident())
	}
	for !p.atEnd() {
		switch p.peek() {
		case '#':
			p.pos++
			id := p.ident()
			if id == "" {
				return c, p.errorf("expected id after '#'")
			}
			c.ids = append(c.ids, id)
		case '.':
			p.pos++
			cl := p.ident()
			if cl == "" {
				return c, p.errorf("expected class after '.'")
			}
			c.classes = append(c.classes, cl)
		case '[':
			a, err := p.parseAttr()
			if err != nil {
				return c, err
			}
			c.attrs = append(c.attrs, a)
		default:
			if p.pos == start {
				return c, p.errorf("unexpected %q", p.peek())
			}
			return c, nil
		}
	}
	return c, nil
}

func (p *selectorParser) parseAttr() (attrMatch, error) {
	p.pos++ // '['
	p.skipSpace()
	var a attrMatch
	a.name = p.ident()
	if a.name == "" {
		return a, p.errorf("expected attribute name")
	}
	p.skipSpace()
	switch {
	case p.peek() == ']':
		p.pos++
		return a, nil
	case p.peek() == '=':
		a.op = "="
		p.pos++
	case strings.ContainsRune("*^$~", rune(p.peek())) && p.pos+1 < len(p.input) && p.input[p.pos+1] == '=':
		a.op = p.input[p.pos : p.pos+2]
		p.pos += 2
	default:
		return a, p.errorf("expected ']' or operator in attribute selector")
	}
	p.skipSpace()
	if q := p.peek(); q == '"' || q == '\'' {
		p.pos++
		end := strings.IndexByte(p.input[p.pos:], q)
		if end < 0 {
			return a, p.errorf("unterminated attribute value")
		}
		a.value = p.input[p.pos : p.pos+end]
		p.pos += end + 1
	} else {
		start := p.pos
		for !p.atEnd() && p.peek() != ']' && !isSpace(p.peek()) {
			p.pos++
		}
		a.value = p.input[start:p.pos]
	}
	p.skipSpace()
	if p.peek() != ']' {
		return a, p.errorf("expected ']'")
	}
	p.pos++
	return a, nil
}

func (p *selectorParser) ident() string {
	start := p.pos
	for !p.atEnd() && isIdentByte(p.peek()) {
		p.pos++
	}
	return p.input[start:p.pos]
}

func isIdentByte(b byte) bool {
	return b == '-' || b == '_' || b >= 0x80 ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
