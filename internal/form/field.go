// Package form models the document a field-state engine operates on: fields,
// their labels and containers, selector queries, and change signals.
package form

import (
	"slices"
	"strconv"
	"strings"
)

// Kind identifies the control type of a field. Unknown input types
// ("email", "number", "hidden", ...) are carried through as-is.
type Kind string

const (
	KindText           Kind = "text"
	KindPassword       Kind = "password"
	KindTextarea       Kind = "textarea"
	KindCheckbox       Kind = "checkbox"
	KindRadio          Kind = "radio"
	KindSelect         Kind = "select"
	KindSelectMultiple Kind = "select-multiple"
	KindButton         Kind = "button"
	KindSubmit         Kind = "submit"
)

// Well-known attribute names read by the engine.
const (
	AttrRequired         = "data-req"
	AttrAvailable        = "data-avail"
	AttrUnrequiredState  = "data-unreq-state"
	AttrUnavailableState = "data-unavail-state"
	AttrAndContainer     = "data-and-cntr"
	AttrInherit          = "data-fieldstate"
)

// State is the rendered state of a field.
type State string

const (
	StateNone      State = ""
	StateRequired  State = "required"
	StateAvailable State = "available"
	StateHidden    State = "hidden"
	StateDisabled  State = "disabled"
)

// IsFallback reports whether s may be used as a not-satisfied fallback.
func (s State) IsFallback() bool {
	return s == StateHidden || s == StateDisabled
}

// Class returns the marker class recorded on a field in this state.
func (s State) Class() string {
	if s == StateNone {
		return ""
	}
	return "fs-" + string(s)
}

// ParseState converts a fallback name; ok is false for anything other than
// "hidden" or "disabled".
func ParseState(s string) (State, bool) {
	st := State(strings.ToLower(strings.TrimSpace(s)))
	return st, st.IsFallback()
}

// stateClasses are the markers owned by the engine.
var stateClasses = []string{"fs-required", "fs-available", "fs-hidden", "fs-disabled"}

// Option is one entry of a select control.
type Option struct {
	Value    string
	Label    string
	Selected bool
}

// Label is the caption shown next to a field.
type Label struct {
	Text    string
	Hidden  bool
	Marker  bool // trailing "*" required marker
	Classes []string
}

// Render returns the caption as displayed, including the required marker.
func (l *Label) Render() string {
	if l.Marker {
		return l.Text + " *"
	}
	return l.Text
}

// HasClass reports whether the label carries class c.
func (l *Label) HasClass(c string) bool { return slices.Contains(l.Classes, c) }

// AddClass adds c once.
func (l *Label) AddClass(c string) {
	if !l.HasClass(c) {
		l.Classes = append(l.Classes, c)
	}
}

// RemoveClass drops every occurrence of c.
func (l *Label) RemoveClass(c string) {
	l.Classes = slices.DeleteFunc(l.Classes, func(x string) bool { return x == c })
}

// Container is an element wrapping one or more fields.
type Container struct {
	ID      string
	Classes []string
	Hidden  bool
}

// Field is one form control.
type Field struct {
	ID       string
	Name     string
	Kind     Kind
	Value    string
	Checked  bool
	Options  []Option
	Classes  []string
	Attrs    map[string]string
	Disabled bool
	Hidden   bool
	Required bool // HTML-level required flag

	Label     *Label
	Container *Container
}

// Tag returns the element name the field would render as.
func (f *Field) Tag() string {
	switch f.Kind {
	case KindSelect, KindSelectMultiple:
		return "select"
	case KindTextarea:
		return "textarea"
	case KindButton:
		return "button"
	default:
		return "input"
	}
}

// Type returns the field's type attribute.
func (f *Field) Type() string {
	switch f.Kind {
	case "":
		return string(KindText)
	case KindSelect:
		return "select-one"
	default:
		return string(f.Kind)
	}
}

// IsCheckable reports whether the field's value is its checked state.
func (f *Field) IsCheckable() bool {
	return f.Kind == KindCheckbox || f.Kind == KindRadio
}

// IsTextLike reports whether disabling the field clears its value.
func (f *Field) IsTextLike() bool {
	return f.Kind == KindText || f.Kind == KindPassword || f.Kind == KindTextarea || f.Kind == ""
}

// IsButton reports whether the field is a button or submit control.
func (f *Field) IsButton() bool {
	return f.Kind == KindButton || f.Kind == KindSubmit
}

// Attr returns the named attribute. The virtual attributes id, name, type,
// class and value reflect the corresponding properties.
func (f *Field) Attr(name string) (string, bool) {
	switch name {
	case "id":
		return f.ID, f.ID != ""
	case "name":
		return f.Name, f.Name != ""
	case "type":
		return f.Type(), true
	case "class":
		return strings.Join(f.Classes, " "), len(f.Classes) > 0
	case "value":
		return f.Value, true
	case "multiple":
		return "", f.Kind == KindSelectMultiple
	case "required":
		return "", f.Required
	case "disabled":
		return "", f.Disabled
	}
	v, ok := f.Attrs[name]
	return v, ok
}

// SetAttr sets an attribute in the free-form attribute map.
func (f *Field) SetAttr(name, value string) {
	if f.Attrs == nil {
		f.Attrs = make(map[string]string)
	}
	f.Attrs[name] = value
}

// RemoveAttr deletes an attribute from the free-form attribute map.
func (f *Field) RemoveAttr(name string) {
	delete(f.Attrs, name)
}

// HasClass reports whether the field carries class c.
func (f *Field) HasClass(c string) bool { return slices.Contains(f.Classes, c) }

// AddClass adds c once.
func (f *Field) AddClass(c string) {
	if !f.HasClass(c) {
		f.Classes = append(f.Classes, c)
	}
}

// RemoveClass drops every occurrence of c.
func (f *Field) RemoveClass(c string) {
	f.Classes = slices.DeleteFunc(f.Classes, func(x string) bool { return x == c })
}

// SetStateClass replaces any engine marker class with the one for s.
func (f *Field) SetStateClass(s State) {
	f.Classes = slices.DeleteFunc(f.Classes, func(x string) bool {
		return slices.Contains(stateClasses, x)
	})
	if c := s.Class(); c != "" {
		f.Classes = append(f.Classes, c)
	}
}

// RenderedState reads the state marker class back from the field.
func (f *Field) RenderedState() State {
	for _, c := range f.Classes {
		if slices.Contains(stateClasses, c) {
			return State(strings.TrimPrefix(c, "fs-"))
		}
	}
	return StateNone
}

// SelectedValues returns the values of the selected options in order. A
// single select with nothing explicitly selected reports its first option.
func (f *Field) SelectedValues() []string {
	var out []string
	for _, o := range f.Options {
		if o.Selected {
			out = append(out, o.Value)
		}
	}
	if f.Kind == KindSelect {
		if len(out) > 0 {
			return out[:1]
		}
		if len(f.Options) > 0 {
			return []string{f.Options[0].Value}
		}
	}
	return out
}

// setValue applies a value in the way the control would. Checkables accept
// a boolean string; multi-selects accept a comma-separated list.
func (f *Field) setValue(v string) {
	switch {
	case f.IsCheckable():
		b, err := strconv.ParseBool(v)
		if err != nil {
			b = v != ""
		}
		f.Checked = b
	case f.Kind == KindSelect:
		found := false
		for i := range f.Options {
			f.Options[i].Selected = !found && f.Options[i].Value == v
			found = found || f.Options[i].Selected
		}
	case f.Kind == KindSelectMultiple:
		want := strings.Split(v, ",")
		for i := range f.Options {
			f.Options[i].Selected = slices.Contains(want, f.Options[i].Value)
		}
	default:
		f.Value = v
	}
}

// Snapshot captures everything a reset restores.
type Snapshot struct {
	Value    string
	Checked  bool
	Selected []bool
}

// Snapshot returns the field's current value state.
func (f *Field) Snapshot() Snapshot {
	s := Snapshot{Value: f.Value, Checked: f.Checked}
	if len(f.Options) > 0 {
		s.Selected = make([]bool, len(f.Options))
		for i, o := range f.Options {
			s.Selected[i] = o.Selected
		}
	}
	return s
}

// Restore puts back a previously captured snapshot.
func (f *Field) Restore(s Snapshot) {
	f.Value = s.Value
	f.Checked = s.Checked
	for i := range f.Options {
		f.Options[i].Selected = i < len(s.Selected) && s.Selected[i]
	}
}
