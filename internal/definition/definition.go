// Package definition loads declarative form definitions from YAML, JSON or
// CUE, validates them against an embedded CUE schema and builds the
// document and callbacks an engine runs on.
package definition

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/matthewbaird/fieldstate/internal/condition"
)

// ErrUnsupportedFormat is returned for files that are not YAML, JSON or CUE.
var ErrUnsupportedFormat = errors.New("unsupported definition format")

// Definition is a complete form definition.
type Definition struct {
	Name       string            `json:"name,omitempty" yaml:"name,omitempty"`
	Defaults   Defaults          `json:"defaults" yaml:"defaults,omitempty"`
	Callbacks  map[string]string `json:"callbacks,omitempty" yaml:"callbacks,omitempty"`
	Containers []Container       `json:"containers,omitempty" yaml:"containers,omitempty"`
	Fields     []Field           `json:"fields" yaml:"fields"`
}

// Defaults are the engine-wide fallback states.
type Defaults struct {
	Unrequired  string `json:"unrequired,omitempty" yaml:"unrequired,omitempty"`
	Unavailable string `json:"unavailable,omitempty" yaml:"unavailable,omitempty"`
}

// Container is an element wrapping fields.
type Container struct {
	ID      string   `json:"id" yaml:"id"`
	Classes []string `json:"classes,omitempty" yaml:"classes,omitempty"`
}

// Option is one select option.
type Option struct {
	Value    string `json:"value" yaml:"value"`
	Label    string `json:"label,omitempty" yaml:"label,omitempty"`
	Selected bool   `json:"selected,omitempty" yaml:"selected,omitempty"`
}

// Field describes one control and its rules.
type Field struct {
	ID           string            `json:"id" yaml:"id"`
	Name         string            `json:"name,omitempty" yaml:"name,omitempty"`
	Kind         string            `json:"kind,omitempty" yaml:"kind,omitempty"`
	Label        string            `json:"label,omitempty" yaml:"label,omitempty"`
	Value        string            `json:"value,omitempty" yaml:"value,omitempty"`
	Checked      bool              `json:"checked,omitempty" yaml:"checked,omitempty"`
	Options      []Option          `json:"options,omitempty" yaml:"options,omitempty"`
	Classes      []string          `json:"classes,omitempty" yaml:"classes,omitempty"`
	Attrs        map[string]string `json:"attrs,omitempty" yaml:"attrs,omitempty"`
	Container    string            `json:"container,omitempty" yaml:"container,omitempty"`
	AndContainer bool              `json:"and_container,omitempty" yaml:"and_container,omitempty"`

	Required      RuleText `json:"required,omitempty" yaml:"required,omitempty"`
	Available     RuleText `json:"available,omitempty" yaml:"available,omitempty"`
	RequiredWhen  *When    `json:"required_when,omitempty" yaml:"required_when,omitempty"`
	AvailableWhen *When    `json:"available_when,omitempty" yaml:"available_when,omitempty"`

	UnrequiredState  string `json:"unrequired_state,omitempty" yaml:"unrequired_state,omitempty"`
	UnavailableState string `json:"unavailable_state,omitempty" yaml:"unavailable_state,omitempty"`

	As string `json:"as,omitempty" yaml:"as,omitempty"`
}

// RuleText is a raw governing attribute. It decodes from a string or a
// bool.
type RuleText string

func (r *RuleText) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case nil:
		*r = ""
	case bool:
		*r = RuleText(strconv.FormatBool(x))
	case string:
		*r = RuleText(x)
	default:
		return fmt.Errorf("rule must be a string or bool, got %s", b)
	}
	return nil
}

// When is a structured condition.
type When struct {
	Selector string `json:"selector" yaml:"selector"`
	Operator string `json:"operator,omitempty" yaml:"operator,omitempty"`
	Value    string `json:"value" yaml:"value"`
}

// Rule formats w into the attribute grammar and checks that it parses.
func (w When) Rule() (string, error) {
	c := &condition.Condition{
		Selector: w.Selector,
		Operator: condition.Operator(w.Operator),
		Comparison: condition.Comparison{
			Raw:  w.Value,
			Kind: valueKind(w.Value),
		},
	}
	raw := c.String()
	if _, err := condition.Parse(raw); err != nil {
		return "", fmt.Errorf("condition %s: %w", raw, err)
	}
	return raw, nil
}

// valueKind decides whether a structured value is written bare (a token)
// or quoted (a literal).
func valueKind(v string) condition.Kind {
	switch {
	case strings.HasPrefix(v, ":"):
		return condition.KindChecked
	case strings.HasPrefix(v, "callback:"):
		return condition.KindCallback
	case len(v) > 1 && (strings.HasPrefix(v, "/") || strings.HasPrefix(v, "!/")) && strings.HasSuffix(v, "/"):
		return condition.KindRegex
	}
	return condition.KindLiteral
}

// rule returns the field's raw rule for one dimension, preferring the
// structured form.
func rule(text RuleText, when *When) (string, error) {
	if when != nil {
		if text != "" {
			return "", errors.New("both a raw and a structured rule given")
		}
		return when.Rule()
	}
	return string(text), nil
}

// validate catches what the schema cannot express.
func (d *Definition) validate() error {
	containers := make(map[string]bool, len(d.Containers))
	for _, c := range d.Containers {
		if containers[c.ID] {
			return fmt.Errorf("duplicate container id %q", c.ID)
		}
		containers[c.ID] = true
	}
	seen := make(map[string]bool, len(d.Fields))
	for _, f := range d.Fields {
		if seen[f.ID] {
			return fmt.Errorf("duplicate field id %q", f.ID)
		}
		seen[f.ID] = true
		if f.Container != "" && !containers[f.Container] {
			return fmt.Errorf("field %q: unknown container %q", f.ID, f.Container)
		}
		if f.Required != "" && f.RequiredWhen != nil {
			return fmt.Errorf("field %q: required and required_when are exclusive", f.ID)
		}
		if f.Available != "" && f.AvailableWhen != nil {
			return fmt.Errorf("field %q: available and available_when are exclusive", f.ID)
		}
	}
	return nil
}
