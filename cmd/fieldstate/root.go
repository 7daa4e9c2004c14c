package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matthewbaird/fieldstate/internal/definition"
	"github.com/matthewbaird/fieldstate/internal/engine"
	"github.com/matthewbaird/fieldstate/internal/form"
	"github.com/matthewbaird/fieldstate/internal/logging"
)

// globals holds the persistent flags.
type globals struct {
	json     bool
	logLevel string
}

func newRootCommand() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:           "fieldstate",
		Short:         "Evaluate declarative form field rules",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVar(&g.json, "json", false, "Print JSON instead of a table")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Engine log level (debug, info, warn, error); default from env")

	cmd.AddCommand(newEvalCommand(g), newCheckCommand(g), newWatchCommand(g))
	return cmd
}

// logger writes to the command's stderr so stdout stays machine-readable.
func (g *globals) logger(cmd *cobra.Command) *slog.Logger {
	cfg := logging.FromEnv()
	cfg.Format = logging.FormatText
	cfg.Output = cmd.ErrOrStderr()
	if g.logLevel != "" {
		cfg.Level = g.logLevel
	} else if cfg.Level == "info" {
		cfg.Level = "warn"
	}
	return logging.New(cfg)
}

// evalOptions are the inputs of one evaluation.
type evalOptions struct {
	sets     []string // selector=value
	toggles  []string // selector=true|false
	context  string
	fallback string
}

func (o *evalOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&o.sets, "set", nil, "Set a field value, selector=value (repeatable, applied in order)")
	cmd.Flags().StringArrayVar(&o.toggles, "toggle", nil, "Force a field's rule outcome, selector=true|false (repeatable)")
	cmd.Flags().StringVar(&o.context, "context", "", "Only initialise fields inside containers matching this selector")
	cmd.Flags().StringVar(&o.fallback, "fallback", "", "Default fallback state for both dimensions (hidden or disabled)")
}

// validate checks flag syntax before any file is read.
func (o *evalOptions) validate() error {
	if o.fallback != "" {
		if _, ok := form.ParseState(o.fallback); !ok {
			return fmt.Errorf("--fallback must be hidden or disabled, got %q", o.fallback)
		}
	}
	for _, s := range o.sets {
		if sel, _, ok := strings.Cut(s, "="); !ok || sel == "" {
			return fmt.Errorf("--set %q: expected selector=value", s)
		}
	}
	for _, s := range o.toggles {
		sel, v, ok := strings.Cut(s, "=")
		if !ok || sel == "" || (v != "true" && v != "false") {
			return fmt.Errorf("--toggle %q: expected selector=true or selector=false", s)
		}
	}
	return nil
}

// result is what eval prints.
type result struct {
	Form        string              `json:"form,omitempty"`
	Fields      []engine.FieldState `json:"fields"`
	Diagnostics []string            `json:"diagnostics"`
}

// evaluate loads path and runs the options against a fresh engine.
func evaluate(path string, o *evalOptions, logger *slog.Logger) (*result, error) {
	def, err := definition.Load(path)
	if err != nil {
		return nil, err
	}
	built, err := def.Build()
	if err != nil {
		return nil, err
	}
	cfg := engine.Config{Logger: logger}
	if state, ok := form.ParseState(o.fallback); ok {
		cfg.Unrequired, cfg.Unavailable = state, state
	}
	e := built.Engine(cfg)
	e.Initialise("", o.context)
	for _, s := range o.sets {
		sel, v, _ := strings.Cut(s, "=")
		e.SetFieldValue(sel, v, "")
	}
	for _, s := range o.toggles {
		sel, v, _ := strings.Cut(s, "=")
		e.SetManualState(sel, v == "true")
	}

	res := &result{Form: def.Name, Fields: e.Snapshot(), Diagnostics: []string{}}
	for _, err := range e.Diagnostics() {
		res.Diagnostics = append(res.Diagnostics, err.Error())
	}
	return res, nil
}
