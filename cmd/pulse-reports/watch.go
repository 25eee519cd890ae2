package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rcourtman/pulse-reports/internal/watch"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type watchOptions struct {
	render   renderOptions
	pattern  string
	debounce time.Duration
	initial  bool
}

func newWatchCmd() *cobra.Command {
	var opts watchOptions
	cmd := &cobra.Command{
		Use:   "watch PATH...",
		Short: "Re-render templates whenever they change",
		Long: `Watch template files, or directories of templates, and render a template
again each time it is saved. Documents are written next to their template, or
into the --out directory.

Render failures are logged and recorded in the history ledger; watching
continues until interrupted.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, args, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.render.dataDir, "data", "d", "", "directory holding aggregation responses (default: the configured data directory)")
	cmd.Flags().StringVarP(&opts.render.out, "out", "o", "", "output directory (default: next to each template)")
	cmd.Flags().BoolVar(&opts.render.debug, "debug", false, "draw viewport and slot outlines")
	cmd.Flags().BoolVar(&opts.render.csv, "csv", false, "export the figure data as CSV instead of rendering a PDF")
	cmd.Flags().BoolVar(&opts.render.noHistory, "no-history", false, "do not record renders in the history ledger")
	cmd.Flags().StringVar(&opts.pattern, "match", "", "only templates whose file name matches this wildcard (e.g. weekly-*)")
	cmd.Flags().DurationVar(&opts.debounce, "debounce", 250*time.Millisecond, "quiet period before a changed template is rendered")
	cmd.Flags().BoolVar(&opts.initial, "initial", false, "render every matched template once at startup")
	return cmd
}

func runWatch(cmd *cobra.Command, args []string, opts watchOptions) error {
	if opts.render.out == "-" {
		return errors.New("watch writes files; --out must be a directory")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	w, err := watch.New(watch.Config{
		Paths:    args,
		Pattern:  opts.pattern,
		Debounce: opts.debounce,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := newSession(ctx, cmd, cfg, opts.render)
	defer s.close()

	rerender := func(ctx context.Context, path string) {
		// Directory output whenever --out is set.
		batch := opts.render.out != ""
		if err := s.renderOne(ctx, path, batch); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Str("template", path).Msg("Render failed")
			return
		}
		log.Info().Str("template", path).Msg("Template re-rendered")
	}

	if opts.initial {
		for _, path := range w.Templates() {
			rerender(ctx, path)
		}
	}

	return w.Run(ctx, rerender)
}
