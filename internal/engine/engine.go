// Package engine derives the rendered state of form fields from conditions
// on other fields and keeps it current as those fields change.
//
// An Engine owns a side table of per-field records (original value,
// override flag, last outcomes, listeners) and a dependency graph from
// contingent fields to the fields whose conditions read them. Signals on a
// contingent field enqueue its dependents; the queue is drained before any
// public operation returns, so every call completes synchronously.
//
// An Engine is not safe for concurrent use. Callers serialise access the
// way a single UI thread would.
package engine

import (
	"log/slog"
	"slices"

	"github.com/matthewbaird/fieldstate/internal/callback"
	"github.com/matthewbaird/fieldstate/internal/condition"
	"github.com/matthewbaird/fieldstate/internal/evaluate"
	"github.com/matthewbaird/fieldstate/internal/event"
	"github.com/matthewbaird/fieldstate/internal/form"
	"github.com/matthewbaird/fieldstate/internal/logging"
)

// outcome is the last result of one dimension's rule.
type outcome struct {
	set       bool
	satisfied bool
}

// record is the engine's side-table entry for one field.
type record struct {
	original   form.Snapshot
	overridden bool
	state      form.State
	outcomes   [2]outcome
	listeners  []Listener
}

type parsed struct {
	rule condition.Rule
	err  error
}

// Engine evaluates and renders field states for one document.
type Engine struct {
	reg       Registry
	eval      *evaluate.Evaluator
	callbacks *callback.Registry
	publisher event.Publisher
	onDiag    func(error)
	log       *slog.Logger
	scope     string
	fallbacks [2]form.State

	records map[*form.Field]*record
	parses  map[string]parsed
	inherit map[string]map[string]string

	// edges maps a contingent field to the fields whose conditions read it.
	edges      map[*form.Field]map[*form.Field]struct{}
	subscribed map[*form.Field]bool
	refused    map[[2]*form.Field]bool
	radioHook  bool

	queue    []*form.Field
	queued   map[*form.Field]bool
	draining bool

	diagnostics []error
}

// New creates an engine over reg.
func New(reg Registry, cfg Config) *Engine {
	cfg.setDefaults()
	return &Engine{
		reg:        reg,
		eval:       evaluate.New(cfg.Callbacks),
		callbacks:  cfg.Callbacks,
		publisher:  cfg.Publisher,
		onDiag:     cfg.OnDiagnostic,
		log:        logging.WithComponent(cfg.Logger, "engine"),
		scope:      cfg.Scope,
		fallbacks:  [2]form.State{cfg.Unrequired, cfg.Unavailable},
		records:    make(map[*form.Field]*record),
		parses:     make(map[string]parsed),
		inherit:    make(map[string]map[string]string),
		edges:      make(map[*form.Field]map[*form.Field]struct{}),
		subscribed: make(map[*form.Field]bool),
		refused:    make(map[[2]*form.Field]bool),
		queued:     make(map[*form.Field]bool),
	}
}

// Callbacks returns the registry the engine evaluates callbacks against.
func (e *Engine) Callbacks() *callback.Registry { return e.callbacks }

// Initialise runs the evaluate-and-wire pipeline over the fields matching
// selector inside context. An empty selector means every field. Matched
// fields lose any manual override.
func (e *Engine) Initialise(selector, context string) {
	fields, err := e.reg.QueryErr(selector, context)
	if err != nil {
		e.log.Debug("initialise: bad selector", "selector", selector, "context", context, "error", err)
		return
	}
	e.InitialiseFields(fields...)
}

// InitialiseFields is Initialise for explicit fields.
func (e *Engine) InitialiseFields(fields ...*form.Field) {
	e.installRadioHook()
	e.run(func() {
		for _, f := range fields {
			e.record(f).overridden = false
			e.enqueue(f)
		}
	})
}

// RegisterCallback adds or replaces a named predicate and re-evaluates
// every field whose rules reference it. A blank name or nil predicate is
// ignored.
func (e *Engine) RegisterCallback(name string, p callback.Predicate) {
	if !e.callbacks.Register(name, p) {
		e.log.Debug("register callback: ignored", "name", name)
		return
	}
	e.run(func() {
		for _, f := range e.reg.Fields() {
			if e.referencesCallback(f, name) {
				e.enqueueAuto(f)
			}
		}
	})
}

// SetManualState forces the first field matching selector to the given
// outcome of its governing dimension (required when it has a required
// rule, else available) and suspends automatic re-evaluation for it.
// Fields without rules and an empty selector are ignored.
func (e *Engine) SetManualState(selector string, satisfied bool) {
	if selector == "" {
		e.log.Debug("set manual state: empty selector")
		return
	}
	fields, err := e.reg.QueryErr(selector, "")
	if err != nil || len(fields) == 0 {
		e.log.Debug("set manual state: no match", "selector", selector)
		return
	}
	e.SetManualStateField(fields[0], satisfied)
}

// SetManualStateField is SetManualState for an explicit field.
func (e *Engine) SetManualStateField(f *form.Field, satisfied bool) {
	rules := e.rules(f)
	dim := Required
	switch {
	case rules[Required] != nil:
	case rules[Available] != nil:
		dim = Available
	default:
		e.log.Debug("set manual state: field has no rules", logging.FieldKey, fieldRef(f))
		return
	}
	e.run(func() {
		rec := e.record(f)
		rec.overridden = true
		// The forced dimension alone decides the rendered state.
		rec.outcomes = [2]outcome{}
		rec.outcomes[dim] = outcome{set: true, satisfied: satisfied}
		e.render(f, rec, rules, true)
	})
}

// OnStateChange registers l for every future transition of the fields
// matching selector. The pipeline is run for those fields before l is
// attached, so l only sees transitions caused by later changes.
func (e *Engine) OnStateChange(selector string, l Listener) {
	if l == nil || selector == "" {
		e.log.Debug("on state change: ignored", "selector", selector)
		return
	}
	fields, err := e.reg.QueryErr(selector, "")
	if err != nil {
		e.log.Debug("on state change: bad selector", "selector", selector, "error", err)
		return
	}
	e.run(func() {
		for _, f := range fields {
			e.enqueueAuto(f)
		}
	})
	for _, f := range fields {
		rec := e.record(f)
		rec.listeners = append(rec.listeners, l)
	}
}

// SetDefaultFallback sets the engine-wide fallback for the given
// dimensions, or both when none are given, then re-evaluates the whole
// document. States other than hidden and disabled are ignored.
func (e *Engine) SetDefaultFallback(state form.State, dims ...Dimension) {
	if !state.IsFallback() {
		e.log.Debug("set default fallback: ignored", logging.StateKey, string(state))
		return
	}
	if len(dims) == 0 {
		dims = dimensions[:]
	}
	for _, d := range dims {
		e.fallbacks[d] = state
	}
	e.run(func() {
		for _, f := range e.reg.Fields() {
			e.enqueueAuto(f)
		}
	})
}

// DefaultFallback returns the engine-wide fallback for d.
func (e *Engine) DefaultFallback(d Dimension) form.State { return e.fallbacks[d] }

// Reset restores the fields matching selector inside context to their
// originally captured values, clears hidden and disabled rendering and
// re-evaluates them. Like Initialise, it clears manual overrides.
func (e *Engine) Reset(selector, context string) {
	fields, err := e.reg.QueryErr(selector, context)
	if err != nil {
		e.log.Debug("reset: bad selector", "selector", selector, "context", context, "error", err)
		return
	}
	e.ResetFields(fields...)
}

// ResetFields is Reset for explicit fields.
func (e *Engine) ResetFields(fields ...*form.Field) {
	e.installRadioHook()
	e.run(func() {
		for _, f := range fields {
			rec := e.record(f)
			before := f.Snapshot()
			f.Restore(rec.original)
			f.RemoveClass(form.StateHidden.Class())
			f.RemoveClass(form.StateDisabled.Class())
			f.Hidden, f.Disabled = false, false
			if f.Label != nil {
				f.Label.Hidden = false
				f.Label.RemoveClass(form.StateDisabled.Class())
			}
			rec.state = form.StateNone
			rec.overridden = false
			rec.outcomes = [2]outcome{}
			if !snapshotEqual(before, f.Snapshot()) {
				e.signal(f)
			}
			e.enqueue(f)
		}
	})
}

// SetFieldValue sets the value of the first field matching selector inside
// context and emits its change signal so dependents re-evaluate. An empty
// selector is ignored.
func (e *Engine) SetFieldValue(selector, value, context string) {
	if selector == "" {
		e.log.Debug("set field value: empty selector")
		return
	}
	fields, err := e.reg.QueryErr(selector, context)
	if err != nil || len(fields) == 0 {
		e.log.Debug("set field value: no match", "selector", selector, "context", context)
		return
	}
	e.SetValue(fields[0], value)
}

// SetValue is SetFieldValue for an explicit field. The signal is
// dispatched as a user edit would be.
func (e *Engine) SetValue(f *form.Field, value string) {
	e.run(func() {
		e.reg.SetValue(f, value)
		e.reg.Dispatch(f, form.SignalFor(f), false)
	})
}

// State returns the last state the engine rendered for f.
func (e *Engine) State(f *form.Field) form.State {
	if rec, ok := e.records[f]; ok {
		return rec.state
	}
	return form.StateNone
}

// Overridden reports whether f is under manual override.
func (e *Engine) Overridden(f *form.Field) bool {
	rec, ok := e.records[f]
	return ok && rec.overridden
}

// Diagnostics returns the parse errors, refused dependencies and
// propagation failures recorded so far.
func (e *Engine) Diagnostics() []error {
	out := make([]error, len(e.diagnostics))
	copy(out, e.diagnostics)
	return out
}

func (e *Engine) diagnose(err error) {
	e.diagnostics = append(e.diagnostics, err)
	if e.onDiag != nil {
		e.onDiag(err)
	}
}

// record returns f's side-table entry, capturing its original value on
// first encounter.
func (e *Engine) record(f *form.Field) *record {
	rec, ok := e.records[f]
	if !ok {
		rec = &record{original: f.Snapshot(), state: f.RenderedState()}
		e.records[f] = rec
	}
	return rec
}

func snapshotEqual(a, b form.Snapshot) bool {
	return a.Value == b.Value && a.Checked == b.Checked && slices.Equal(a.Selected, b.Selected)
}

// fieldRef names f in logs and diagnostics.
func fieldRef(f *form.Field) string {
	switch {
	case f.ID != "":
		return f.ID
	case f.Name != "":
		return "[name=" + f.Name + "]"
	}
	return "<" + f.Tag() + ">"
}
