package engine

import (
	"strings"

	"github.com/matthewbaird/fieldstate/internal/form"
	"github.com/matthewbaird/fieldstate/internal/resolve"
)

// FieldState is a reporting view of one field.
type FieldState struct {
	ID         string     `json:"id,omitempty"`
	Name       string     `json:"name,omitempty"`
	Kind       form.Kind  `json:"kind"`
	State      form.State `json:"state"`
	Value      string     `json:"value"`
	Checked    bool       `json:"checked,omitempty"`
	Required   bool       `json:"required,omitempty"`
	Hidden     bool       `json:"hidden,omitempty"`
	Disabled   bool       `json:"disabled,omitempty"`
	Overridden bool       `json:"overridden,omitempty"`
	Label      string     `json:"label,omitempty"`
}

// Snapshot reports every field in document order.
func (e *Engine) Snapshot() []FieldState {
	fields := e.reg.Fields()
	out := make([]FieldState, 0, len(fields))
	for _, f := range fields {
		out = append(out, e.FieldState(f))
	}
	return out
}

// FieldState reports one field.
func (e *Engine) FieldState(f *form.Field) FieldState {
	fs := FieldState{
		ID:         f.ID,
		Name:       f.Name,
		Kind:       f.Kind,
		State:      e.State(f),
		Value:      strings.Join(resolve.FieldValues(f), ","),
		Checked:    f.Checked,
		Required:   f.Required,
		Hidden:     f.Hidden,
		Disabled:   f.Disabled,
		Overridden: e.Overridden(f),
	}
	if f.IsCheckable() {
		fs.Value = f.Value
	}
	if f.Label != nil {
		fs.Label = f.Label.Render()
	}
	return fs
}
