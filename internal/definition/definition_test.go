package definition

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/fieldstate/internal/engine"
	"github.com/matthewbaird/fieldstate/internal/form"
	"github.com/matthewbaird/fieldstate/internal/logging"
)

func TestLoad_YAML(t *testing.T) {
	def, err := Load("testdata/signup.yaml")
	require.NoError(t, err)
	assert.Equal(t, "signup", def.Name)
	assert.Equal(t, "disabled", def.Defaults.Unavailable)
	require.Len(t, def.Fields, 9)
	assert.Equal(t, RuleText("true"), def.Fields[8].Required)
	require.NotNil(t, def.Fields[6].AvailableWhen)
	assert.Equal(t, ":2+_checked", def.Fields[6].AvailableWhen.Value)
}

func TestLoad_JSON(t *testing.T) {
	def, err := Load("testdata/signup.json")
	require.NoError(t, err)
	f, err := def.Build()
	require.NoError(t, err)
	v, ok := f.Document.Field("reason").Attr(form.AttrRequired)
	require.True(t, ok)
	assert.Equal(t, "if:('#agree' == 'yes')", v)
}

func TestLoad_CUE(t *testing.T) {
	def, err := Load("testdata/signup.cue")
	require.NoError(t, err)
	f, err := def.Build()
	require.NoError(t, err)
	assert.Equal(t, form.StateDisabled, f.Unrequired)
	assert.Equal(t, form.StateNone, f.Unavailable)
	assert.Equal(t, form.KindCheckbox, f.Document.Field("agree").Kind)
}

func TestLoad_UnsupportedFormat(t *testing.T) {
	_, err := Load("testdata/signup.toml")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	_, err = Load("testdata/noext")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestParse_SchemaRejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"empty", ""},
		{"empty id", "fields: [{id: ''}]"},
		{"unknown key", "fields: [{id: a, colour: red}]"},
		{"bad fallback", "fields: [{id: a, unrequired_state: visible}]"},
		{"bad default", "defaults: {unrequired: shown}\nfields: []"},
		{"bad operator", "fields: [{id: a, required_when: {selector: '#b', operator: '=~', value: x}}]"},
		{"numeric value", "fields: [{id: a, value: 3}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), FormatYAML)
			assert.Error(t, err)
		})
	}
}

func TestParse_ValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"duplicate field", "fields: [{id: a}, {id: a}]", `duplicate field id "a"`},
		{"duplicate container", "containers: [{id: c}, {id: c}]\nfields: []", `duplicate container id "c"`},
		{"unknown container", "fields: [{id: a, container: nowhere}]", `unknown container "nowhere"`},
		{"both rule forms", "fields: [{id: a, required: 'true', required_when: {selector: '#b', value: x}}]", "exclusive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), FormatYAML)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"yaml": FormatYAML, ".yml": FormatYAML, "JSON": FormatJSON, "cue": FormatCUE} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("xml")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestWhen_Rule(t *testing.T) {
	tests := []struct {
		when When
		want string
	}{
		{When{Selector: "#a", Operator: "==", Value: "yes"}, "if:('#a' == 'yes')"},
		{When{Selector: "[name=opts]", Value: ":2+_checked"}, "if:('[name=opts]' :2+_checked)"},
		{When{Selector: "#a", Value: "/^x+$/"}, "if:('#a' /^x+$/)"},
		{When{Selector: "#a", Value: "callback:long"}, "if:('#a' callback:long)"},
		{When{Selector: "#a", Operator: "~", Value: "it's"}, `if:('#a' ~ "it's")`},
	}
	for _, tt := range tests {
		got, err := tt.when.Rule()
		require.NoError(t, err, tt.want)
		assert.Equal(t, tt.want, got)
	}

	_, err := When{Selector: "#a", Value: "/(/"}.Rule()
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	def, err := Load("testdata/signup.yaml")
	require.NoError(t, err)
	f, err := def.Build()
	require.NoError(t, err)

	doc := f.Document
	assert.Len(t, doc.Fields(), 9)
	assert.Equal(t, form.StateHidden, f.Unrequired)
	assert.Equal(t, form.StateDisabled, f.Unavailable)

	reason := doc.Field("reason")
	require.NotNil(t, reason.Label)
	assert.Equal(t, "Reason", reason.Label.Text)
	v, _ := reason.Attr(form.AttrUnrequiredState)
	assert.Equal(t, "disabled", v)

	street := doc.Field("street")
	require.NotNil(t, street.Container)
	assert.Equal(t, "address_box", street.Container.ID)
	v, _ = street.Attr(form.AttrAndContainer)
	assert.Equal(t, "true", v)

	v, _ = doc.Field("reason_copy").Attr(form.AttrInherit)
	assert.Equal(t, "as:#reason", v)

	_, ok := f.Callbacks.Lookup("long_name")
	assert.True(t, ok)

	// Each build is independent.
	again, err := def.Build()
	require.NoError(t, err)
	assert.NotSame(t, doc.Field("agree"), again.Document.Field("agree"))
}

func TestBuild_BadCallback(t *testing.T) {
	def, err := Parse([]byte("callbacks: {broken: 'len('}\nfields: []"), FormatYAML)
	require.NoError(t, err)
	_, err = def.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `callback "broken"`)
}

func TestForm_Engine(t *testing.T) {
	def, err := Load("testdata/signup.yaml")
	require.NoError(t, err)
	f, err := def.Build()
	require.NoError(t, err)

	e := f.Engine(engine.Config{Logger: logging.Discard()})
	e.Initialise("", "")
	doc := f.Document

	assert.Equal(t, form.StateDisabled, e.State(doc.Field("reason")))
	assert.Equal(t, form.StateDisabled, e.State(doc.Field("greeting")))
	assert.Equal(t, form.StateDisabled, e.State(doc.Field("street")))
	assert.Equal(t, form.StateRequired, e.State(doc.Field("newsletter")))

	e.SetFieldValue("#agree", "yes", "")
	assert.Equal(t, form.StateRequired, e.State(doc.Field("reason")))
	assert.Equal(t, form.StateRequired, e.State(doc.Field("reason_copy")))

	e.SetFieldValue("#nick", "alfred", "")
	assert.Equal(t, form.StateAvailable, e.State(doc.Field("greeting")))

	e.SetFieldValue("#o1", "true", "")
	assert.Equal(t, form.StateDisabled, e.State(doc.Field("street")))
	e.SetFieldValue("#o2", "true", "")
	assert.Equal(t, form.StateAvailable, e.State(doc.Field("street")))
	assert.False(t, doc.Container("address_box").Hidden)
}

func TestForm_Lint(t *testing.T) {
	src := `
fields:
  - id: a
  - id: b
    required: "if:('#missing' == 'x')"
  - id: c
    available: "if:('#a' callback:nope)"
  - id: d
    required: "if:('#a' ==)"
  - id: e
    required: "if:('#a' :sometimes)"
  - id: f
    available: true
`
	def, err := Parse([]byte(src), FormatYAML)
	require.NoError(t, err)
	f, err := def.Build()
	require.NoError(t, err)

	var msgs []string
	for _, p := range f.Lint() {
		msgs = append(msgs, p.Error())
	}
	joined := strings.Join(msgs, "\n")
	assert.Contains(t, joined, `field "b" data-req: selector "#missing" matches no field`)
	assert.Contains(t, joined, `field "c" data-avail: callback "nope" is not registered`)
	assert.Contains(t, joined, `field "d" data-req`)
	assert.Contains(t, joined, `field "e" data-req`)
	assert.NotContains(t, joined, `field "f"`)
}

func TestDefinition_Marshal(t *testing.T) {
	def, err := Load("testdata/signup.json")
	require.NoError(t, err)
	out, err := def.Marshal()
	require.NoError(t, err)

	back, err := Parse(out, FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, def.Fields[1].RequiredWhen, back.Fields[1].RequiredWhen)
}
