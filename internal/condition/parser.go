package condition

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// checkedTokens are offered as suggestions for misspelled checked tokens.
var checkedTokens = []string{":checked", ":all_checked", ":any_checked", ":none_checked"}

// Parse parses a governing attribute value. The literals "true" and "false"
// yield a static rule; anything else must contain an if:(...) condition.
// A string that does not match the grammar returns a *ParseError and the
// caller is expected to leave the field alone.
func Parse(raw string) (Rule, error) {
	switch raw {
	case "true":
		return Rule{Static: true, Value: true}, nil
	case "false":
		return Rule{Static: true, Value: false}, nil
	}

	p := &parser{input: raw}
	start := strings.Index(raw, "if:(")
	if start < 0 {
		p.pos = 0
		return Rule{}, p.errorf("expected 'if:(' or a literal true/false")
	}
	p.pos = start + len("if:(")

	cond, err := p.parseCondition()
	if err != nil {
		return Rule{}, err
	}
	return Rule{Condition: cond}, nil
}

// MustParse is Parse for tests and static tables; it panics on error.
func MustParse(raw string) Rule {
	r, err := Parse(raw)
	if err != nil {
		panic(fmt.Sprintf("condition: %q: %v", raw, err))
	}
	return r
}

type parser struct {
	input string
	pos   int
}

func (p *parser) atEnd() bool { return p.pos >= len(p.input) }

func (p *parser) peek() byte {
	if p.atEnd() {
		return 0
	}
	return p.input[p.pos]
}

func (p *parser) rest() string { return p.input[p.pos:] }

func (p *parser) errorf(format string, args ...any) *ParseError {
	return &ParseError{Input: p.input, Pos: p.pos, Message: fmt.Sprintf(format, args...)}
}

// optionalSpace consumes at most one space, as the grammar allows.
func (p *parser) optionalSpace() {
	if p.peek() == ' ' {
		p.pos++
	}
}

func (p *parser) parseCondition() (*Condition, error) {
	sel, err := p.quoted()
	if err != nil {
		return nil, err
	}
	sel = strings.TrimSuffix(sel, "[]")

	p.optionalSpace()
	op := p.operator()
	p.optionalSpace()

	cmp, err := p.comparison(op)
	if err != nil {
		return nil, err
	}
	if p.peek() != ')' {
		return nil, p.errorf("expected ')' to close condition")
	}
	p.pos++

	return &Condition{Selector: sel, Operator: op, Comparison: cmp}, nil
}

// quoted reads a non-empty '...' or "..." string and returns its contents.
func (p *parser) quoted() (string, error) {
	q := p.peek()
	if q != '\'' && q != '"' {
		return "", p.errorf("expected quoted selector or value")
	}
	end := strings.IndexByte(p.input[p.pos+1:], q)
	if end < 0 {
		return "", p.errorf("unterminated string")
	}
	if end == 0 {
		return "", p.errorf("empty string")
	}
	s := p.input[p.pos+1 : p.pos+1+end]
	p.pos += end + 2
	return s, nil
}

func (p *parser) operator() Operator {
	r := p.rest()
	for _, op := range []Operator{OpEqual, OpNotEqual, OpGreater, OpLess, OpContains} {
		if strings.HasPrefix(r, string(op)) {
			p.pos += len(op)
			return op
		}
	}
	return OpNone
}

func (p *parser) comparison(op Operator) (Comparison, error) {
	start := p.pos
	switch c := p.peek(); {
	case c == '\'' || c == '"':
		raw, err := p.quoted()
		if err != nil {
			return Comparison{}, err
		}
		return classify(raw, op, start, p.input)

	case c == '!' || c == '/':
		raw, ok := p.regexToken()
		if !ok {
			return Comparison{}, p.errorf("malformed regular expression, expected /pattern/ or !/pattern/")
		}
		if op == OpContains {
			return Comparison{Raw: raw, Kind: KindLiteral}, nil
		}
		return compileRegex(raw, start, p.input)

	case strings.HasPrefix(p.rest(), "callback:"):
		// The name runs to the last ')' in the input.
		last := strings.LastIndexByte(p.input, ')')
		nameStart := p.pos + len("callback:")
		if last < nameStart+1 {
			return Comparison{}, p.errorf("expected callback name")
		}
		raw := p.input[p.pos:last]
		p.pos = last
		if op == OpContains {
			return Comparison{Raw: raw, Kind: KindLiteral}, nil
		}
		return Comparison{Raw: raw, Kind: KindCallback, Callback: p.input[nameStart:last]}, nil

	case c == ':':
		end := strings.IndexByte(p.rest(), ')')
		if end < 0 {
			end = len(p.rest())
		}
		raw := p.rest()[:end]
		cmp, ok := parseChecked(raw)
		if !ok {
			err := p.errorf("unknown checked-state token %q", raw)
			err.Suggestion = SuggestFrom(raw, checkedTokens, 3)
			return Comparison{}, err
		}
		p.pos += end
		if op == OpContains {
			return Comparison{Raw: raw, Kind: KindLiteral}, nil
		}
		return cmp, nil
	}
	return Comparison{}, p.errorf("expected comparison value")
}

// regexToken reads !?/[^/]+/ and returns it verbatim.
func (p *parser) regexToken() (string, bool) {
	start := p.pos
	i := p.pos
	if i < len(p.input) && p.input[i] == '!' {
		i++
	}
	if i >= len(p.input) || p.input[i] != '/' {
		return "", false
	}
	end := strings.IndexByte(p.input[i+1:], '/')
	if end <= 0 {
		return "", false
	}
	p.pos = i + 1 + end + 1
	return p.input[start:p.pos], true
}

// classify types a quoted comparison the way the unquoted forms are typed:
// a quoted value shaped like a regex or a checked token behaves as one.
func classify(raw string, op Operator, pos int, input string) (Comparison, error) {
	if op == OpContains {
		return Comparison{Raw: raw, Kind: KindLiteral}, nil
	}
	switch {
	case isRegexShape(raw):
		return compileRegex(raw, pos, input)
	case strings.HasPrefix(raw, ":"):
		if cmp, ok := parseChecked(raw); ok {
			return cmp, nil
		}
		return Comparison{Raw: raw, Kind: KindUnknown}, nil
	case strings.HasPrefix(raw, "!"), strings.HasPrefix(raw, "/"), strings.Contains(raw, "callback:"):
		return Comparison{Raw: raw, Kind: KindUnknown}, nil
	}
	return Comparison{Raw: raw, Kind: KindLiteral}, nil
}

func isRegexShape(s string) bool {
	s = strings.TrimPrefix(s, "!")
	return len(s) >= 3 && s[0] == '/' && s[len(s)-1] == '/'
}

func compileRegex(raw string, pos int, input string) (Comparison, error) {
	negated := strings.HasPrefix(raw, "!")
	pattern := strings.TrimPrefix(raw, "!")
	pattern = pattern[1 : len(pattern)-1]
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Comparison{}, &ParseError{Input: input, Pos: pos, Message: fmt.Sprintf("invalid regular expression: %v", err)}
	}
	return Comparison{Raw: raw, Kind: KindRegex, Regex: re, Negated: negated}, nil
}

// parseChecked recognises :checked, :(all|any|none)_checked and
// :N_checked, :N+_checked, :N-_checked.
func parseChecked(raw string) (Comparison, bool) {
	body, ok := strings.CutPrefix(raw, ":")
	if !ok {
		return Comparison{}, false
	}
	cmp := Comparison{Raw: raw, Kind: KindChecked}
	if body == "checked" {
		cmp.Quantifier = QuantAll
		return cmp, true
	}
	q, ok := strings.CutSuffix(body, "_checked")
	if !ok || q == "" {
		return Comparison{}, false
	}
	switch q {
	case "all":
		cmp.Quantifier = QuantAll
		return cmp, true
	case "any":
		cmp.Quantifier = QuantAny
		return cmp, true
	case "none":
		cmp.Quantifier = QuantNone
		return cmp, true
	}

	cmp.Quantifier = QuantExactly
	switch q[len(q)-1] {
	case '+':
		cmp.Quantifier = QuantAtLeast
		q = q[:len(q)-1]
	case '-':
		cmp.Quantifier = QuantAtMost
		q = q[:len(q)-1]
	}
	if q == "" || strings.TrimLeft(q, "0123456789") != "" {
		return Comparison{}, false
	}
	n, err := strconv.Atoi(q)
	if err != nil {
		return Comparison{}, false
	}
	cmp.Count = n
	return cmp, true
}
