package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matthewbaird/fieldstate/internal/definition"
)

// checkReport is check's JSON output.
type checkReport struct {
	Valid    bool     `json:"valid"`
	Form     string   `json:"form,omitempty"`
	Fields   int      `json:"fields"`
	Problems []string `json:"problems"`
}

func newCheckCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "check <definition>",
		Short: "Validate a form definition and lint its rules",
		Long: `Check validates the definition against the form schema, compiles its
callbacks and reports rules the engine would ignore at runtime: conditions
that do not parse, selectors that match nothing and unregistered callbacks.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report := checkReport{Problems: []string{}}
			def, err := definition.Load(args[0])
			if err == nil {
				var built *definition.Form
				if built, err = def.Build(); err == nil {
					report.Form = def.Name
					report.Fields = len(built.Document.Fields())
					for _, p := range built.Lint() {
						report.Problems = append(report.Problems, p.Error())
					}
				}
			}
			if err != nil {
				report.Problems = append(report.Problems, err.Error())
			}
			report.Valid = len(report.Problems) == 0

			out := cmd.OutOrStdout()
			if g.json {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else if report.Valid {
				fmt.Fprintf(out, "[OK] %s: %d fields\n", args[0], report.Fields)
			} else {
				for _, p := range report.Problems {
					fmt.Fprintf(out, "[FAIL] %s\n", p)
				}
			}
			if !report.Valid {
				return fmt.Errorf("%s: %d problem(s)", args[0], len(report.Problems))
			}
			return nil
		},
	}
}
