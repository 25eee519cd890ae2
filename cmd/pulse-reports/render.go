package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rcourtman/pulse-reports/internal/config"
	reperrors "github.com/rcourtman/pulse-reports/internal/errors"
	"github.com/rcourtman/pulse-reports/internal/history"
	"github.com/rcourtman/pulse-reports/internal/logging"
	"github.com/rcourtman/pulse-reports/pkg/reporting"
	"github.com/rcourtman/pulse-reports/pkg/reporting/template"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type renderOptions struct {
	dataDir   string
	out       string
	id        string
	debug     bool
	csv       bool
	noHistory bool
}

func newRenderCmd() *cobra.Command {
	var opts renderOptions
	cmd := &cobra.Command{
		Use:   "render TEMPLATE...",
		Short: "Render report templates to PDF",
		Long: `Render one or more report templates. Layout data names are read as
<data-dir>/<name>.json aggregation responses.

With a single template, --out names the output file ("-" for stdout). With
several templates, --out names a directory and every document is written as
<template-name>.pdf inside it.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, args, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.dataDir, "data", "d", "", "directory holding aggregation responses (default: the configured data directory)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "output file, directory or - for stdout (default: next to the template)")
	cmd.Flags().StringVar(&opts.id, "id", "", "render ID used in logs (single template only)")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "draw viewport and slot outlines")
	cmd.Flags().BoolVar(&opts.csv, "csv", false, "export the figure data as CSV instead of rendering a PDF")
	cmd.Flags().BoolVar(&opts.noHistory, "no-history", false, "do not record this render in the history ledger")
	return cmd
}

func runRender(cmd *cobra.Command, args []string, opts renderOptions) error {
	if len(args) > 1 && (opts.out == "-" || opts.id != "") {
		return errors.New("--out - and --id need a single template")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := newSession(ctx, cmd, cfg, opts)
	defer s.close()

	for _, path := range args {
		if err := s.renderOne(ctx, path, len(args) > 1); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

// session holds what the renders of one command invocation share.
type session struct {
	cmd     *cobra.Command
	cfg     *config.Config
	opts    renderOptions
	engine  *reporting.Engine
	ledger  *history.Store
	metrics *metricsServer
}

func newSession(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts renderOptions) *session {
	engineOpts := reporting.OptionsFromConfig(cfg)
	if opts.dataDir != "" {
		engineOpts.Source = reporting.DirSource{Dir: opts.dataDir}
	}
	engineOpts.OnProgress = logProgress

	s := &session{
		cmd:    cmd,
		cfg:    cfg,
		opts:   opts,
		engine: reporting.NewEngine(engineOpts),
	}
	if !opts.noHistory {
		s.ledger = openHistory(ctx, cfg)
	}
	if cfg.MetricsAddr != "" {
		m, err := listenMetrics(cfg.MetricsAddr)
		if err != nil {
			log.Warn().Err(err).Msg("Render metrics unavailable")
		} else {
			m.serve(ctx)
			s.metrics = m
		}
	}
	return s
}

func (s *session) close() {
	if s.ledger != nil {
		s.ledger.Close()
	}
}

// openHistory opens the render ledger. A ledger that cannot be opened never
// blocks rendering.
func openHistory(ctx context.Context, cfg *config.Config) *history.Store {
	path := cfg.HistoryPath()
	if path == "" {
		return nil
	}
	store, err := history.Open(ctx, history.Config{DBPath: path, Retention: cfg.HistoryRetention})
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Render history unavailable")
		return nil
	}
	return store
}

func (s *session) renderOne(ctx context.Context, path string, batch bool) error {
	tpl, err := loadTemplate(path, s.cfg)
	if err != nil {
		return err
	}
	req := reporting.RequestFromTemplate(tpl)
	req.ID = s.opts.id
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.Debug = s.opts.debug

	ext := ".pdf"
	kind := history.KindPDF
	if s.opts.csv {
		ext = ".csv"
		kind = history.KindCSV
	}
	target := outputPath(path, s.opts.out, ext, batch)

	rec := history.Record{
		RenderID:  req.ID,
		Template:  templateKey(path),
		Output:    target,
		Kind:      kind,
		StartedAt: time.Now(),
	}

	var result *reporting.RenderResult
	if target == "-" {
		out := s.cmd.OutOrStdout()
		if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) && !s.opts.csv {
			return errors.New("refusing to write a PDF to a terminal; use --out")
		}
		result, err = render(ctx, s.engine, req, out, s.opts.csv)
	} else {
		err = writeAtomic(target, func(w io.Writer) error {
			result, err = render(ctx, s.engine, req, w, s.opts.csv)
			return err
		})
	}

	record(ctx, s.ledger, rec, result, err)
	if s.metrics != nil {
		s.metrics.observe(rec.RenderID, rec.Template, err)
	}
	return err
}

func render(ctx context.Context, engine *reporting.Engine, req reporting.RenderRequest, w io.Writer, csv bool) (*reporting.RenderResult, error) {
	if csv {
		cw := &countingWriter{w: w}
		if err := engine.ExportCSV(ctx, req, cw); err != nil {
			return nil, err
		}
		return &reporting.RenderResult{ID: req.ID, ByteSize: cw.n}, nil
	}
	result, err := engine.RenderDocument(ctx, req, w)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("render_id", result.ID).
		Int("pages", result.PageCount).
		Str("size", humanize.Bytes(uint64(result.ByteSize))).
		Int("clipped", result.Clipped).
		Msg("Report written")
	return result, nil
}

// record adds the outcome of a render to the ledger, if there is one.
func record(ctx context.Context, ledger *history.Store, rec history.Record, result *reporting.RenderResult, renderErr error) {
	if ledger == nil {
		return
	}
	rec.Duration = time.Since(rec.StartedAt)
	if renderErr != nil {
		rec.Outcome = history.OutcomeError
		rec.Error = renderErr.Error()
		rec.ErrorType = string(reperrors.TypeOf(renderErr))
	} else {
		rec.Outcome = history.OutcomeSuccess
	}
	if result != nil {
		rec.Pages = result.PageCount
		rec.Bytes = int64(result.ByteSize)
		rec.Figures = result.Figures
		rec.Clipped = result.Clipped
	}
	// Cancelled renders are recorded too.
	if _, err := ledger.Add(context.WithoutCancel(ctx), rec); err != nil {
		log.Warn().Err(err).Str("render_id", rec.RenderID).Msg("Failed to record render history")
	}
}

// templateKey identifies a template in the ledger by its absolute path.
func templateKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

type countingWriter struct {
	w io.Writer
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}

// loadTemplate reads a template and fills the grid from configuration when
// the template leaves it out.
func loadTemplate(path string, cfg *config.Config) (*template.Template, error) {
	tpl, err := template.Read(path)
	if err != nil {
		return nil, err
	}
	if tpl.Grid.Rows == 0 && tpl.Grid.Cols == 0 {
		tpl.Grid = cfg.DefaultGrid
	}
	if err := tpl.Validate(); err != nil {
		return nil, err
	}
	return tpl, nil
}

// outputPath resolves where a document for template path is written.
func outputPath(path, out, ext string, batch bool) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ext
	switch {
	case out == "":
		return filepath.Join(filepath.Dir(path), name)
	case batch:
		return filepath.Join(out, name)
	default:
		return out
	}
}

// writeAtomic writes through a temp file in the target directory and renames
// it into place, so a failed render never leaves a partial document.
func writeAtomic(target string, write func(io.Writer) error) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}

func logProgress(ev reporting.Event) {
	logger := log.With().Str("render_id", ev.RenderID).Logger()
	switch ev.Type {
	case reporting.EventLayoutStarted:
		logger.Debug().Int("layout", ev.Layout).Int("layouts", ev.Layouts).Msg("Rendering layout")
	case reporting.EventFigureRendered:
		if logging.IsLevelEnabled(zerolog.TraceLevel) {
			logger.Trace().
				Int("layout", ev.Layout).
				Int("figure", ev.Figure).
				Str("type", ev.FigureType).
				Str("title", ev.Title).
				Msg("Figure rendered")
		}
	case reporting.EventDocumentRendered:
		logger.Debug().Int("pages", ev.PageCount).Int("bytes", ev.ByteSize).Msg("Document complete")
	}
}
