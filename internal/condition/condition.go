// Package condition implements the parser and typed representation for
// field-state conditions of the form
//
//	if:('<selector>' <operator> <comparison>)
//
// where the comparison is a quoted literal, a /regex/ (optionally negated
// with a leading !), a callback:<name> reference, or a checked-state token.
package condition

import (
	"fmt"
	"regexp"
	"strings"
)

// Operator is the comparison operator of a condition.
type Operator string

const (
	OpNone     Operator = ""
	OpEqual    Operator = "=="
	OpNotEqual Operator = "!="
	OpGreater  Operator = ">"
	OpLess     Operator = "<"
	OpContains Operator = "~" // value appears among the per-field values
)

// Kind classifies the comparison value.
type Kind int

const (
	KindLiteral  Kind = iota
	KindRegex         // /pattern/ or !/pattern/
	KindCallback      // callback:<name>
	KindChecked       // :checked, :any_checked, :2+_checked, ...
	KindUnknown       // shaped like a token but matches none; never satisfied
)

// String returns a readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindLiteral:
		return "literal"
	case KindRegex:
		return "regex"
	case KindCallback:
		return "callback"
	case KindChecked:
		return "checked"
	default:
		return "unknown"
	}
}

// Quantifier is the checked-state test a KindChecked comparison applies.
type Quantifier int

const (
	QuantAll     Quantifier = iota // :checked, :all_checked
	QuantAny                       // :any_checked
	QuantNone                      // :none_checked
	QuantExactly                   // :N_checked
	QuantAtLeast                   // :N+_checked
	QuantAtMost                    // :N-_checked
)

// Comparison is the right-hand side of a condition.
type Comparison struct {
	Raw  string // unquoted source text
	Kind Kind

	Regex   *regexp.Regexp
	Negated bool // !/pattern/

	Callback string

	Quantifier Quantifier
	Count      int
}

// Condition is a parsed, immutable rule.
type Condition struct {
	Selector   string
	Operator   Operator
	Comparison Comparison
}

// String formats the condition back into the attribute grammar.
func (c *Condition) String() string {
	var b strings.Builder
	b.WriteString("if:(")
	b.WriteString(quote(c.Selector))
	if c.Operator != OpNone {
		b.WriteByte(' ')
		b.WriteString(string(c.Operator))
	}
	b.WriteByte(' ')
	switch c.Comparison.Kind {
	case KindLiteral, KindUnknown:
		b.WriteString(quote(c.Comparison.Raw))
	default:
		b.WriteString(c.Comparison.Raw)
	}
	b.WriteByte(')')
	return b.String()
}

func quote(s string) string {
	if strings.Contains(s, "'") {
		return `"` + s + `"`
	}
	return "'" + s + "'"
}

// Rule is what a governing attribute parses to: either a literal
// true/false, or a condition to evaluate.
type Rule struct {
	Static    bool
	Value     bool // meaningful when Static
	Condition *Condition
}

// String returns the attribute text for the rule.
func (r Rule) String() string {
	if r.Static {
		return fmt.Sprint(r.Value)
	}
	if r.Condition == nil {
		return ""
	}
	return r.Condition.String()
}
