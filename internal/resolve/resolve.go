// Package resolve reads the current values of the fields a condition
// depends on.
package resolve

import (
	"strconv"
	"strings"

	"github.com/matthewbaird/fieldstate/internal/form"
)

// Values is the resolved view of a set of contingent fields.
type Values struct {
	// Joined concatenates every field's value in order. Multi-selects
	// contribute their selected values joined by commas.
	Joined string
	// List holds one entry per value; multi-selects contribute one entry
	// per selected option.
	List []string
	// Checked has one '1' or '0' per field, in order.
	Checked string
	// Excluded is set when any field is hidden or disabled.
	Excluded bool
}

// CheckedCount returns the number of checked fields.
func (v Values) CheckedCount() int {
	return strings.Count(v.Checked, "1")
}

// Resolve reads fields in order.
func Resolve(fields []*form.Field) Values {
	var (
		v      Values
		joined strings.Builder
		bits   strings.Builder
	)
	for _, f := range fields {
		if f.Checked {
			bits.WriteByte('1')
		} else {
			bits.WriteByte('0')
		}
		if IsExcluded(f) {
			v.Excluded = true
			continue
		}
		vals := FieldValues(f)
		if f.Kind == form.KindSelectMultiple {
			joined.WriteString(strings.Join(vals, ","))
		} else if len(vals) > 0 {
			joined.WriteString(vals[0])
		}
		v.List = append(v.List, vals...)
	}
	v.Joined = joined.String()
	v.Checked = bits.String()
	return v
}

// IsExcluded reports whether f's rendered state removes it from evaluation.
func IsExcluded(f *form.Field) bool {
	return f.HasClass(form.StateHidden.Class()) || f.HasClass(form.StateDisabled.Class())
}

// FieldValues returns f's current value(s): the checked flag for
// checkboxes and radios, the selected option(s) for selects, and the raw
// value otherwise.
func FieldValues(f *form.Field) []string {
	switch {
	case f.IsCheckable():
		return []string{strconv.FormatBool(f.Checked)}
	case f.Tag() == "select":
		return f.SelectedValues()
	default:
		return []string{f.Value}
	}
}
