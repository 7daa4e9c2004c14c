package main

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

func newWatchCommand(g *globals) *cobra.Command {
	o := &evalOptions{}
	cmd := &cobra.Command{
		Use:   "watch <definition>",
		Short: "Re-evaluate a form definition every time it changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.validate(); err != nil {
				return err
			}
			w := &watcher{
				path:    args[0],
				opts:    o,
				json:    g.json,
				out:     cmd.OutOrStdout(),
				logger:  g.logger(cmd),
				changed: func() {},
			}
			return w.run(cmd.Context().Done())
		},
	}
	o.register(cmd)
	return cmd
}

// watcher re-renders one definition file on every write.
type watcher struct {
	path   string
	opts   *evalOptions
	json   bool
	out    io.Writer
	logger *slog.Logger
	// changed is called after each re-render.
	changed func()
}

// run evaluates once, then again on every change until stop is closed.
// The parent directory is watched so editors that replace the file by
// rename are followed.
func (w *watcher) run(stop <-chan struct{}) error {
	abs, err := filepath.Abs(w.path)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	w.render()
	for {
		select {
		case <-stop:
			return nil
		case evt, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(evt.Name) != abs || !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
				continue
			}
			w.logger.Debug("definition changed", "path", evt.Name, "op", evt.Op.String())
			w.render()
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", "error", err)
		}
	}
}

func (w *watcher) render() {
	defer w.changed()
	fmt.Fprintf(w.out, "==> %s\n", w.path)
	res, err := evaluate(w.path, w.opts, w.logger)
	if err != nil {
		fmt.Fprintln(w.out, "error:", err)
		return
	}
	if err := render(w.out, res, w.json); err != nil {
		w.logger.Error("render", "error", err)
	}
}
