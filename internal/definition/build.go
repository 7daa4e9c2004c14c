package definition

import (
	"fmt"
	"slices"

	"github.com/matthewbaird/fieldstate/internal/callback"
	"github.com/matthewbaird/fieldstate/internal/condition"
	"github.com/matthewbaird/fieldstate/internal/engine"
	"github.com/matthewbaird/fieldstate/internal/form"
)

// Form is a built definition: the document, its callbacks and its default
// fallbacks.
type Form struct {
	Name        string
	Document    *form.Document
	Callbacks   *callback.Registry
	Unrequired  form.State
	Unavailable form.State
}

// Build creates a fresh document from d. Each call returns an independent
// form, so one definition can back many sessions.
func (d *Definition) Build() (*Form, error) {
	out := &Form{
		Name:      d.Name,
		Document:  form.NewDocument(),
		Callbacks: callback.NewRegistry(),
	}
	out.Unrequired, _ = form.ParseState(d.Defaults.Unrequired)
	out.Unavailable, _ = form.ParseState(d.Defaults.Unavailable)

	names := make([]string, 0, len(d.Callbacks))
	for name := range d.Callbacks {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		p, err := callback.Expr(d.Callbacks[name])
		if err != nil {
			return nil, fmt.Errorf("callback %q: %w", name, err)
		}
		out.Callbacks.Register(name, p)
	}

	for _, c := range d.Containers {
		out.Document.AddContainer(&form.Container{ID: c.ID, Classes: slices.Clone(c.Classes)})
	}
	for _, fd := range d.Fields {
		f, err := buildField(fd, out.Document)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", fd.ID, err)
		}
		if err := out.Document.AddField(f); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func buildField(fd Field, doc *form.Document) (*form.Field, error) {
	f := &form.Field{
		ID:      fd.ID,
		Name:    fd.Name,
		Kind:    form.Kind(fd.Kind),
		Value:   fd.Value,
		Checked: fd.Checked,
		Classes: slices.Clone(fd.Classes),
	}
	if f.Kind == "" {
		f.Kind = form.KindText
	}
	for _, o := range fd.Options {
		f.Options = append(f.Options, form.Option{Value: o.Value, Label: o.Label, Selected: o.Selected})
	}
	for k, v := range fd.Attrs {
		f.SetAttr(k, v)
	}
	if fd.Label != "" {
		f.Label = &form.Label{Text: fd.Label}
	}
	if fd.Container != "" {
		f.Container = doc.Container(fd.Container)
		if f.Container == nil {
			return nil, fmt.Errorf("unknown container %q", fd.Container)
		}
	}

	req, err := rule(fd.Required, fd.RequiredWhen)
	if err != nil {
		return nil, fmt.Errorf("required: %w", err)
	}
	avail, err := rule(fd.Available, fd.AvailableWhen)
	if err != nil {
		return nil, fmt.Errorf("available: %w", err)
	}
	setNonEmpty(f, form.AttrRequired, req)
	setNonEmpty(f, form.AttrAvailable, avail)
	setNonEmpty(f, form.AttrUnrequiredState, fd.UnrequiredState)
	setNonEmpty(f, form.AttrUnavailableState, fd.UnavailableState)
	if fd.AndContainer {
		f.SetAttr(form.AttrAndContainer, "true")
	}
	if fd.As != "" {
		f.SetAttr(form.AttrInherit, "as:"+fd.As)
	}
	return f, nil
}

func setNonEmpty(f *form.Field, name, value string) {
	if value != "" {
		f.SetAttr(name, value)
	}
}

// Engine creates an engine over the form. Fallbacks and callbacks left
// unset in cfg come from the definition.
func (f *Form) Engine(cfg engine.Config) *engine.Engine {
	if cfg.Unrequired == form.StateNone {
		cfg.Unrequired = f.Unrequired
	}
	if cfg.Unavailable == form.StateNone {
		cfg.Unavailable = f.Unavailable
	}
	if cfg.Callbacks == nil {
		cfg.Callbacks = f.Callbacks
	}
	return engine.New(f.Document, cfg)
}

// Lint reports rules the engine would silently ignore: unparseable
// conditions, malformed selectors, selectors that match nothing and
// unregistered callbacks.
func (f *Form) Lint() []error {
	var problems []error
	for _, fld := range f.Document.Fields() {
		for _, attr := range []string{form.AttrRequired, form.AttrAvailable} {
			raw, ok := fld.Attr(attr)
			if !ok || raw == "" {
				continue
			}
			r, err := condition.Parse(raw)
			if err != nil {
				problems = append(problems, fmt.Errorf("field %q %s: %w", fld.ID, attr, err))
				continue
			}
			if r.Static {
				continue
			}
			problems = append(problems, f.lintCondition(fld, attr, r.Condition)...)
		}
		for _, attr := range []string{form.AttrUnrequiredState, form.AttrUnavailableState} {
			if raw, ok := fld.Attr(attr); ok {
				if _, valid := form.ParseState(raw); !valid {
					problems = append(problems, fmt.Errorf("field %q %s: %q is not hidden or disabled", fld.ID, attr, raw))
				}
			}
		}
	}
	return problems
}

func (f *Form) lintCondition(fld *form.Field, attr string, c *condition.Condition) []error {
	var problems []error
	matched, err := f.Document.QueryErr(c.Selector, "")
	switch {
	case err != nil:
		problems = append(problems, fmt.Errorf("field %q %s: selector: %w", fld.ID, attr, err))
	case len(matched) == 0:
		problems = append(problems, fmt.Errorf("field %q %s: selector %q matches no field", fld.ID, attr, c.Selector))
	}
	if c.Comparison.Kind == condition.KindCallback {
		if _, ok := f.Callbacks.Lookup(c.Comparison.Callback); !ok {
			problems = append(problems, fmt.Errorf("field %q %s: callback %q is not registered", fld.ID, attr, c.Comparison.Callback))
		}
	}
	if c.Comparison.Kind == condition.KindUnknown {
		problems = append(problems, fmt.Errorf("field %q %s: %q is never satisfied", fld.ID, attr, c.Comparison.Raw))
	}
	return problems
}
