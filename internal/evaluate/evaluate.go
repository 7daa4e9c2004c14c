// Package evaluate decides parsed conditions against live field values.
package evaluate

import (
	"slices"
	"strings"

	"github.com/matthewbaird/fieldstate/internal/callback"
	"github.com/matthewbaird/fieldstate/internal/condition"
	"github.com/matthewbaird/fieldstate/internal/form"
	"github.com/matthewbaird/fieldstate/internal/resolve"
)

// Evaluator evaluates conditions. It holds no state besides the callback
// registry it consults.
type Evaluator struct {
	callbacks *callback.Registry
}

// New returns an Evaluator backed by callbacks. A nil registry behaves as an
// empty one.
func New(callbacks *callback.Registry) *Evaluator {
	if callbacks == nil {
		callbacks = callback.NewRegistry()
	}
	return &Evaluator{callbacks: callbacks}
}

// Evaluate decides cond for the field self against the contingent fields.
// defined is false when the condition produced no result (an unsupported
// operator, an unknown token, or an unregistered callback); callers treat
// that as not satisfied.
func (e *Evaluator) Evaluate(self *form.Field, cond *condition.Condition, contingent []*form.Field) (satisfied, defined bool) {
	if cond == nil {
		return false, false
	}
	v := resolve.Resolve(contingent)
	if v.Excluded {
		return false, true
	}

	cmp := cond.Comparison
	switch {
	case cmp.Kind == condition.KindLiteral && cond.Operator != condition.OpContains:
		return compare(v.Joined, cond.Operator, cmp.Raw)

	case cond.Operator == condition.OpContains:
		return slices.Contains(v.List, cmp.Raw), true

	case cmp.Kind == condition.KindRegex:
		return cmp.Regex.MatchString(v.Joined) != cmp.Negated, true

	case cmp.Kind == condition.KindCallback:
		p, ok := e.callbacks.Lookup(cmp.Callback)
		if !ok {
			return false, false
		}
		return p(self, contingent, v.List), true

	case cmp.Kind == condition.KindChecked:
		return checked(v.Checked, cmp), true
	}
	return false, false
}

func compare(value string, op condition.Operator, literal string) (bool, bool) {
	switch op {
	case condition.OpEqual:
		return value == literal, true
	case condition.OpNotEqual:
		return value != literal, true
	case condition.OpGreater:
		return value > literal, true
	case condition.OpLess:
		return value < literal, true
	}
	return false, false
}

func checked(bits string, cmp condition.Comparison) bool {
	n := strings.Count(bits, "1")
	switch cmp.Quantifier {
	case condition.QuantAll:
		return bits != "" && !strings.Contains(bits, "0")
	case condition.QuantAny:
		return n > 0
	case condition.QuantNone:
		return n == 0
	case condition.QuantExactly:
		return n == cmp.Count
	case condition.QuantAtLeast:
		return n >= cmp.Count
	case condition.QuantAtMost:
		return n <= cmp.Count
	}
	return false
}
