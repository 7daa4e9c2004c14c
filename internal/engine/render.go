package engine

import (
	"context"

	"github.com/matthewbaird/fieldstate/internal/condition"
	"github.com/matthewbaird/fieldstate/internal/event"
	"github.com/matthewbaird/fieldstate/internal/form"
	"github.com/matthewbaird/fieldstate/internal/logging"
)

// resolveState folds the two dimension outcomes into one rendered state.
// Precedence: unavailable fallback, required, available, unrequired
// fallback.
func (e *Engine) resolveState(f *form.Field, rec *record) form.State {
	req, avail := rec.outcomes[Required], rec.outcomes[Available]
	switch {
	case avail.set && !avail.satisfied:
		return e.fallback(f, Available)
	case req.set && req.satisfied:
		return form.StateRequired
	case avail.set && avail.satisfied:
		return form.StateAvailable
	case req.set && !req.satisfied:
		return e.fallback(f, Required)
	}
	return form.StateNone
}

// fallback returns the not-satisfied state for d: the field's own
// data-un*-state attribute when valid, else the engine default.
func (e *Engine) fallback(f *form.Field, d Dimension) form.State {
	if s, ok := form.ParseState(e.attr(f, d.fallbackAttr())); ok {
		return s
	}
	return e.fallbacks[d]
}

// render applies the resolved state to f and its label and container, then
// signals, notifies and publishes if anything observable changed.
func (e *Engine) render(f *form.Field, rec *record, rules [2]*condition.Rule, manual bool) {
	state := e.resolveState(f, rec)
	prev := rec.state
	before := f.Snapshot()

	apply(f, state)
	if f.Label != nil && rules[Required] != nil {
		f.Label.Marker = state == form.StateRequired
	}
	rec.state = state

	if prev == state && snapshotEqual(before, f.Snapshot()) {
		return
	}
	e.log.Debug("transition", logging.FieldKey, fieldRef(f), logging.StateKey, string(state), "previous", string(prev), "manual", manual)

	e.signal(f)
	for _, l := range rec.listeners {
		l(f, f.Label, state)
	}
	if e.publisher != nil {
		e.publisher.Publish(context.Background(), event.NewTransition(event.TransitionPayload{
			Scope:     e.scope,
			FieldID:   f.ID,
			FieldName: f.Name,
			State:     string(state),
			Previous:  string(prev),
			Manual:    manual,
		}))
	}
}

// apply sets the visual and behavioural markers for state. It is
// idempotent.
func apply(f *form.Field, state form.State) {
	label := f.Label
	switch state {
	case form.StateRequired, form.StateAvailable:
		f.Hidden, f.Disabled = false, false
		f.RemoveClass(form.StateDisabled.Class())
		if label != nil {
			label.Hidden = false
			label.RemoveClass(form.StateDisabled.Class())
		}
		setContainerHidden(f, false)

	case form.StateHidden:
		f.Hidden, f.Disabled = true, false
		if label != nil {
			label.Hidden = true
			label.RemoveClass(form.StateDisabled.Class())
		}
		setContainerHidden(f, true)

	case form.StateDisabled:
		f.Hidden, f.Disabled = false, true
		if f.IsTextLike() {
			f.Value = ""
		}
		if label != nil {
			label.Hidden = false
			label.AddClass(form.StateDisabled.Class())
		}
		setContainerHidden(f, false)
	}
	f.SetStateClass(state)
	f.Required = state == form.StateRequired
}

// setContainerHidden toggles the field's container when the field links
// it with data-and-cntr (any value but "false").
func setContainerHidden(f *form.Field, hidden bool) {
	v, ok := f.Attr(form.AttrAndContainer)
	if !ok || v == "false" || f.Container == nil {
		return
	}
	f.Container.Hidden = hidden
}
