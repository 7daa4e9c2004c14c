package callback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/fieldstate/internal/form"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Register("", func(*form.Field, []*form.Field, []string) bool { return true }))
	assert.False(t, r.Register("nil", nil))

	require.True(t, r.Register("yes", func(*form.Field, []*form.Field, []string) bool { return true }))
	p, ok := r.Lookup("yes")
	require.True(t, ok)
	assert.True(t, p(nil, nil, nil))

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
}

func TestRegistry_Replace(t *testing.T) {
	r := NewRegistry()
	r.Register("p", func(*form.Field, []*form.Field, []string) bool { return true })
	r.Register("p", func(*form.Field, []*form.Field, []string) bool { return false })
	p, _ := r.Lookup("p")
	assert.False(t, p(nil, nil, nil))
	assert.Equal(t, []string{"p"}, r.Names())
}

func TestExpr(t *testing.T) {
	self := &form.Field{ID: "target"}
	a := &form.Field{ID: "a", Kind: form.KindCheckbox, Checked: true}
	b := &form.Field{ID: "b", Kind: form.KindCheckbox}

	tests := []struct {
		src  string
		want bool
	}{
		{`checked == 1`, true},
		{`count == 2 && "b" in ids`, true},
		{`field == "target"`, true},
		{`joined == "truefalse"`, true},
		{`len(values) > 2`, false},
		{`values[5] == "x"`, false},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			p, err := Expr(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p(self, []*form.Field{a, b}, []string{"true", "false"}))
		})
	}
}

func TestExpr_CompileErrors(t *testing.T) {
	_, err := Expr(`count +`)
	assert.Error(t, err)

	_, err = Expr(`count + 1`)
	assert.Error(t, err, "non-bool result is rejected")

	_, err = Expr(`unknown == 1`)
	assert.Error(t, err)
}
