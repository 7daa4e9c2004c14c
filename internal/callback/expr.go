package callback

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/matthewbaird/fieldstate/internal/form"
)

// env is what an expression predicate can see.
type env struct {
	Field   string   `expr:"field"`
	IDs     []string `expr:"ids"`
	Values  []string `expr:"values"`
	Joined  string   `expr:"joined"`
	Count   int      `expr:"count"`
	Checked int      `expr:"checked"`
}

// Expr compiles src into a Predicate. The expression must yield a bool and
// sees field, ids, values, joined, count and checked. A runtime error
// evaluates to false.
func Expr(src string) (Predicate, error) {
	program, err := expr.Compile(src, expr.Env(env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compiling callback expression: %w", err)
	}
	return func(self *form.Field, contingent []*form.Field, values []string) bool {
		e := env{
			Values: values,
			Joined: strings.Join(values, ""),
			Count:  len(contingent),
			IDs:    make([]string, 0, len(contingent)),
		}
		if self != nil {
			e.Field = self.ID
		}
		for _, f := range contingent {
			e.IDs = append(e.IDs, f.ID)
			if f.Checked {
				e.Checked++
			}
		}
		out, err := expr.Run(program, e)
		if err != nil {
			return false
		}
		ok, _ := out.(bool)
		return ok
	}, nil
}
