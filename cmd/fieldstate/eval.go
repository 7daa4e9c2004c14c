package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newEvalCommand(g *globals) *cobra.Command {
	o := &evalOptions{}
	cmd := &cobra.Command{
		Use:   "eval <definition>",
		Short: "Evaluate a form definition and print every field's state",
		Example: `  # Evaluate with defaults
  fieldstate eval signup.yaml

  # Simulate edits, in order
  fieldstate eval signup.yaml --set '#agree=yes' --set '[name=opts]=true'

  # Machine-readable output
  fieldstate eval signup.cue --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.validate(); err != nil {
				return err
			}
			res, err := evaluate(args[0], o, g.logger(cmd))
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), res, g.json)
		},
	}
	o.register(cmd)
	return cmd
}

// render prints res as JSON or as an aligned table.
func render(w io.Writer, res *result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tKIND\tSTATE\tVALUE\tFLAGS")
	for _, f := range res.Fields {
		state := string(f.State)
		if state == "" {
			state = "-"
		}
		id := f.ID
		if id == "" {
			id = "[name=" + f.Name + "]"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", id, f.Kind, state, f.Value, flags(f.Required, f.Hidden, f.Disabled, f.Overridden))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, d := range res.Diagnostics {
		fmt.Fprintln(w, "warning:", d)
	}
	return nil
}

func flags(required, hidden, disabled, overridden bool) string {
	var out []byte
	for _, f := range []struct {
		on bool
		c  byte
	}{{required, 'R'}, {hidden, 'H'}, {disabled, 'D'}, {overridden, 'M'}} {
		if f.on {
			out = append(out, f.c)
		}
	}
	if len(out) == 0 {
		return "-"
	}
	return string(out)
}
