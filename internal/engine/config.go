package engine

import (
	"log/slog"

	"github.com/matthewbaird/fieldstate/internal/callback"
	"github.com/matthewbaird/fieldstate/internal/event"
	"github.com/matthewbaird/fieldstate/internal/form"
)

// Dimension is one of the two independent state axes of a field.
type Dimension int

const (
	Required Dimension = iota
	Available
)

var dimensions = [...]Dimension{Required, Available}

func (d Dimension) String() string {
	if d == Required {
		return "required"
	}
	return "available"
}

// attr is the attribute holding the dimension's rule.
func (d Dimension) attr() string {
	if d == Required {
		return form.AttrRequired
	}
	return form.AttrAvailable
}

// fallbackAttr is the per-field fallback override for the dimension.
func (d Dimension) fallbackAttr() string {
	if d == Required {
		return form.AttrUnrequiredState
	}
	return form.AttrUnavailableState
}

// ParseDimension accepts "required"/"req" and "available"/"avail".
func ParseDimension(s string) (Dimension, bool) {
	switch s {
	case "required", "req":
		return Required, true
	case "available", "avail":
		return Available, true
	}
	return 0, false
}

// Listener is notified after a field transitions. label is nil when the
// field has none.
type Listener func(f *form.Field, label *form.Label, state form.State)

// Registry is the document the engine operates on. *form.Document
// implements it.
type Registry interface {
	Fields() []*form.Field
	QueryErr(selector, context string) ([]*form.Field, error)
	Subscribe(f *form.Field, signal form.Signal, l form.Listener)
	SubscribeAll(signal form.Signal, l form.Listener)
	Dispatch(f *form.Field, signal form.Signal, synthetic bool)
	SetValue(f *form.Field, v string)
}

// Config configures an Engine. The zero value is usable.
type Config struct {
	// Unrequired is the default state for a false required outcome.
	// Default: hidden.
	Unrequired form.State
	// Unavailable is the default state for a false available outcome.
	// Default: hidden.
	Unavailable form.State

	// Callbacks is consulted for callback:<name> conditions. A fresh
	// registry is created when nil.
	Callbacks *callback.Registry

	// Publisher receives every transition. Optional.
	Publisher event.Publisher

	// OnDiagnostic is called for every parse error, refused dependency
	// and exhausted propagation. Optional.
	OnDiagnostic func(error)

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// Scope is stamped on published transitions.
	Scope string
}

func (c *Config) setDefaults() {
	if !c.Unrequired.IsFallback() {
		c.Unrequired = form.StateHidden
	}
	if !c.Unavailable.IsFallback() {
		c.Unavailable = form.StateHidden
	}
	if c.Callbacks == nil {
		c.Callbacks = callback.NewRegistry()
	}
}
