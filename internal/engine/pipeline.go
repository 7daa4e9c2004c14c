package engine

import (
	"fmt"
	"slices"
	"strings"

	"github.com/matthewbaird/fieldstate/internal/condition"
	"github.com/matthewbaird/fieldstate/internal/form"
	"github.com/matthewbaird/fieldstate/internal/logging"
)

// minBudget is the smallest number of checks one drain may perform.
const minBudget = 1024

// inheritedAttrs are copied from the field named by data-fieldstate="as:<selector>".
var inheritedAttrs = []string{
	form.AttrRequired,
	form.AttrAvailable,
	form.AttrUnrequiredState,
	form.AttrUnavailableState,
}

// run executes fn and drains the queue before returning. Nested calls,
// from signals dispatched while draining or from listeners, only enqueue;
// the outermost call drains.
func (e *Engine) run(fn func()) {
	if e.draining {
		fn()
		return
	}
	e.draining = true
	defer func() { e.draining = false }()
	fn()
	e.drain()
}

func (e *Engine) drain() {
	budget := max(minBudget, 64*len(e.reg.Fields()))
	for n := 0; len(e.queue) > 0; n++ {
		if n == budget {
			err := fmt.Errorf("%w: %d checks, %d fields still queued", ErrPropagationLimit, n, len(e.queue))
			e.log.Error("propagation stopped", "error", err)
			e.diagnose(err)
			clear(e.queued)
			e.queue = e.queue[:0]
			return
		}
		f := e.queue[0]
		e.queue = e.queue[1:]
		delete(e.queued, f)
		e.check(f)
	}
}

// enqueue schedules f for evaluation. A field already waiting is not
// queued twice.
func (e *Engine) enqueue(f *form.Field) {
	if e.queued[f] {
		return
	}
	e.queued[f] = true
	e.queue = append(e.queue, f)
}

// enqueueAuto is enqueue for automatic re-evaluation, which skips fields
// under manual override.
func (e *Engine) enqueueAuto(f *form.Field) {
	if rec, ok := e.records[f]; ok && rec.overridden {
		return
	}
	e.enqueue(f)
}

// check runs the full pipeline for f: parse its rules, resolve and
// evaluate each, wire its contingent fields and render the result.
func (e *Engine) check(f *form.Field) {
	rules := e.rules(f)
	if rules[Required] == nil && rules[Available] == nil {
		return
	}
	rec := e.record(f)
	if rec.overridden {
		return
	}
	for _, d := range dimensions {
		r := rules[d]
		if r == nil {
			rec.outcomes[d] = outcome{}
			continue
		}
		rec.outcomes[d] = outcome{set: true, satisfied: e.decide(f, d, r)}
	}
	e.render(f, rec, rules, false)
}

func (e *Engine) decide(f *form.Field, d Dimension, r *condition.Rule) bool {
	if r.Static {
		return r.Value
	}
	contingent, err := e.reg.QueryErr(r.Condition.Selector, "")
	if err != nil {
		e.log.Debug("condition selector invalid", logging.FieldKey, fieldRef(f), "selector", r.Condition.Selector, "error", err)
	}
	e.wire(f, contingent)
	satisfied, defined := e.eval.Evaluate(f, r.Condition, contingent)
	if !defined {
		e.log.Debug("condition undefined", logging.FieldKey, fieldRef(f), "dimension", d.String(), "condition", r.Condition.String())
	}
	return satisfied
}

// rules returns f's parsed rule per dimension; nil where the attribute is
// absent or unparseable.
func (e *Engine) rules(f *form.Field) [2]*condition.Rule {
	var out [2]*condition.Rule
	for _, d := range dimensions {
		raw := e.attr(f, d.attr())
		if raw == "" {
			continue
		}
		if r, ok := e.parse(f, raw); ok {
			out[d] = &r
		}
	}
	return out
}

func (e *Engine) parse(f *form.Field, raw string) (condition.Rule, bool) {
	p, ok := e.parses[raw]
	if !ok {
		r, err := condition.Parse(raw)
		p = parsed{rule: r, err: err}
		e.parses[raw] = p
		if err != nil {
			err = fmt.Errorf("field %s: %q: %w", fieldRef(f), raw, err)
			e.log.Debug("condition ignored", logging.FieldKey, fieldRef(f), "error", err)
			e.diagnose(err)
		}
	}
	return p.rule, p.err == nil
}

// attr reads a rule attribute, honouring data-fieldstate="as:<selector>".
// An inheriting field takes the other field's attributes wholesale.
func (e *Engine) attr(f *form.Field, name string) string {
	if set := e.inherited(f); set != nil {
		return set[name]
	}
	v, _ := f.Attr(name)
	return v
}

// inherited returns the attribute set f inherits, or nil. The set is
// resolved once per selector for the engine's lifetime.
func (e *Engine) inherited(f *form.Field) map[string]string {
	raw, ok := f.Attr(form.AttrInherit)
	if !ok || raw == "" {
		return nil
	}
	sel := strings.TrimPrefix(raw, "as:")
	if set, ok := e.inherit[sel]; ok {
		return set
	}
	set := make(map[string]string, len(inheritedAttrs))
	fields, err := e.reg.QueryErr(sel, "")
	if err != nil {
		e.log.Debug("inherit: bad selector", logging.FieldKey, fieldRef(f), "selector", sel, "error", err)
	}
	if len(fields) > 0 && fields[0] != f {
		for _, name := range inheritedAttrs {
			if v, ok := fields[0].Attr(name); ok {
				set[name] = v
			}
		}
	}
	e.inherit[sel] = set
	return set
}

func (e *Engine) referencesCallback(f *form.Field, name string) bool {
	for _, r := range e.rules(f) {
		if r != nil && r.Condition != nil &&
			r.Condition.Comparison.Kind == condition.KindCallback &&
			r.Condition.Comparison.Callback == name {
			return true
		}
	}
	return false
}

// wire records an edge from each contingent field to dependent and
// subscribes the contingent field's change signal once. An edge that
// would close a cycle is refused.
func (e *Engine) wire(dependent *form.Field, contingent []*form.Field) {
	for _, c := range contingent {
		if _, ok := e.edges[c][dependent]; ok {
			continue
		}
		if path := e.path(dependent, c); path != nil {
			key := [2]*form.Field{c, dependent}
			if !e.refused[key] {
				e.refused[key] = true
				err := &CycleError{
					Field:      fieldRef(dependent),
					Contingent: fieldRef(c),
					Path:       append([]string{fieldRef(c)}, refs(path)...),
				}
				e.log.Error("dependency refused", logging.FieldKey, fieldRef(dependent), "error", err)
				e.diagnose(err)
			}
			continue
		}
		if e.edges[c] == nil {
			e.edges[c] = make(map[*form.Field]struct{})
		}
		e.edges[c][dependent] = struct{}{}
		if !e.subscribed[c] {
			e.subscribed[c] = true
			e.reg.Subscribe(c, form.SignalFor(c), e.onSignal)
		}
	}
}

// path returns the fields on an edge path from -> ... -> to, or nil when
// to is unreachable. A field reaches itself trivially.
func (e *Engine) path(from, to *form.Field) []*form.Field {
	if from == to {
		return []*form.Field{from}
	}
	prev := map[*form.Field]*form.Field{from: nil}
	frontier := []*form.Field{from}
	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		// Document order keeps reported paths stable.
		for _, next := range e.dependents(cur) {
			if _, seen := prev[next]; seen {
				continue
			}
			prev[next] = cur
			if next == to {
				var out []*form.Field
				for n := next; n != nil; n = prev[n] {
					out = append(out, n)
				}
				slices.Reverse(out)
				return out
			}
			frontier = append(frontier, next)
		}
	}
	return nil
}

// dependents returns the fields wired to c in document order.
func (e *Engine) dependents(c *form.Field) []*form.Field {
	deps := e.edges[c]
	if len(deps) == 0 {
		return nil
	}
	out := make([]*form.Field, 0, len(deps))
	for _, f := range e.reg.Fields() {
		if _, ok := deps[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// onSignal re-evaluates the dependents of the field that changed.
func (e *Engine) onSignal(evt form.Event) {
	e.run(func() {
		for _, dep := range e.dependents(evt.Field) {
			e.enqueueAuto(dep)
		}
	})
}

// installRadioHook re-scans the document whenever a radio is changed by
// an edit. Deselecting a radio emits no signal of its own, so dependents
// of the deselected button are only reached this way.
func (e *Engine) installRadioHook() {
	if e.radioHook {
		return
	}
	e.radioHook = true
	e.reg.SubscribeAll(form.SignalChange, func(evt form.Event) {
		if evt.Synthetic || evt.Field.Kind != form.KindRadio {
			return
		}
		e.run(func() {
			for _, f := range e.reg.Fields() {
				e.enqueueAuto(f)
			}
		})
	})
}

// signal dispatches a synthetic change signal for f. Buttons never
// signal.
func (e *Engine) signal(f *form.Field) {
	if f.IsButton() {
		return
	}
	e.reg.Dispatch(f, form.SignalFor(f), true)
}

func refs(fields []*form.Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = fieldRef(f)
	}
	return out
}
