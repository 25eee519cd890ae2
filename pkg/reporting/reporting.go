// Package reporting composes report templates into PDF documents: it loads
// each layout's data, places figures on the page grid and draws them.
package reporting

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rcourtman/pulse-reports/internal/charts"
	reperrors "github.com/rcourtman/pulse-reports/internal/errors"
	"github.com/rcourtman/pulse-reports/internal/grid"
	"github.com/rcourtman/pulse-reports/internal/logging"
	"github.com/rcourtman/pulse-reports/internal/metrics"
	"github.com/rcourtman/pulse-reports/internal/recurrence"
	"github.com/rcourtman/pulse-reports/pkg/reporting/template"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// EventType names a progress event.
type EventType string

const (
	EventLayoutStarted    EventType = "layout_started"
	EventFigureRendered   EventType = "figure_rendered"
	EventDocumentRendered EventType = "document_rendered"
)

// Event reports render progress to the caller.
type Event struct {
	Type       EventType
	RenderID   string
	Layout     int
	Layouts    int
	Figure     int
	FigureType string
	Title      string
	PageCount  int
	ByteSize   int
}

// RenderRequest defines one document render.
type RenderRequest struct {
	// ID correlates logs and events; generated when empty.
	ID         string
	Title      string
	Layouts    []template.Layout
	Grid       grid.Grid
	Margin     *grid.Margin
	Recurrence recurrence.Recurrence
	// Period defaults to the last complete period of Recurrence.
	Period *recurrence.Period
	Locale string
	// Debug draws the viewport and slot outlines.
	Debug bool
	// Source overrides the engine's response source.
	Source ResponseSource
}

// RequestFromTemplate builds a render request from a decoded template.
func RequestFromTemplate(tpl *template.Template) RenderRequest {
	return RenderRequest{
		Title:      tpl.Title,
		Layouts:    tpl.Layouts,
		Grid:       tpl.Grid,
		Margin:     tpl.Margin,
		Recurrence: tpl.Recurrence,
		Period:     tpl.Period,
		Locale:     tpl.Locale,
	}
}

// RenderResult describes a rendered document.
type RenderResult struct {
	ID        string
	PageCount int
	ByteSize  int
	Figures   int
	Clipped   int
	Duration  time.Duration
}

// Options configure an Engine.
type Options struct {
	Page     PageSetup
	Margin   grid.Margin
	Palette  []string
	Language language.Tag
	Location *time.Location
	// DPI converts slot sizes to chart pixels.
	DPI        float64
	Rasterizer charts.Rasterizer
	NewSurface func(PageSetup) Surface
	Source     ResponseSource
	OnProgress func(Event)
	Now        func() time.Time
}

const defaultDPI = 150

// Engine renders documents. It is safe for concurrent use; every call owns
// its own surface and color map.
type Engine struct {
	opts Options
}

// NewEngine creates an engine, filling unset options with defaults.
func NewEngine(opts Options) *Engine {
	if opts.Page.Size == "" {
		opts.Page = DefaultPageSetup()
	}
	if opts.Language == language.Und {
		opts.Language = language.English
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.DPI <= 0 {
		opts.DPI = defaultDPI
	}
	if opts.NewSurface == nil {
		opts.NewSurface = NewPDFSurface
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{opts: opts}
}

// RenderDocument renders every layout of req in order and writes the PDF to
// w. Any figure error aborts the document; nothing is written to w unless the
// whole document rendered.
func (e *Engine) RenderDocument(ctx context.Context, req RenderRequest, w io.Writer) (*RenderResult, error) {
	start := time.Now()
	ctx, renderID := logging.WithRenderID(ctx, req.ID)
	logger := logging.FromContext(ctx).With().Str("component", "reporting").Logger()

	result, err := e.render(ctx, renderID, req, w)
	elapsed := time.Since(start)
	if err != nil {
		metrics.RecordDocument(false, elapsed.Seconds(), 0)
		logger.Error().Err(err).Dur("duration", elapsed).Msg("Document render failed")
		return nil, err
	}

	result.Duration = elapsed
	metrics.RecordDocument(true, elapsed.Seconds(), result.PageCount)
	logger.Info().
		Int("pages", result.PageCount).
		Int("bytes", result.ByteSize).
		Int("figures", result.Figures).
		Dur("duration", elapsed).
		Msg("Document rendered")
	return result, nil
}

func (e *Engine) render(ctx context.Context, renderID string, req RenderRequest, w io.Writer) (*RenderResult, error) {
	if len(req.Layouts) == 0 {
		return nil, reperrors.WrapConfigurationError("render_document",
			fmt.Errorf("%w: no layouts", reperrors.ErrInvalidTemplate))
	}
	if req.Grid.Rows <= 0 || req.Grid.Cols <= 0 {
		return nil, reperrors.WrapConfigurationError("render_document",
			fmt.Errorf("%w: grid %dx%d", reperrors.ErrInvalidTemplate, req.Grid.Rows, req.Grid.Cols))
	}

	period, err := e.period(req)
	if err != nil {
		return nil, err
	}

	lang := e.opts.Language
	if req.Locale != "" {
		tag, err := language.Parse(req.Locale)
		if err != nil {
			return nil, reperrors.WrapConfigurationError("render_document",
				fmt.Errorf("%w: locale %q", reperrors.ErrInvalidTemplate, req.Locale))
		}
		lang = tag
	}

	source := req.Source
	if source == nil {
		source = e.opts.Source
	}
	data, err := loadLayouts(ctx, source, req.Layouts)
	if err != nil {
		return nil, err
	}

	margin := e.opts.Margin
	if req.Margin != nil {
		margin = *req.Margin
	}
	page := e.opts.Page
	page.Title = req.Title

	rasterizer := e.opts.Rasterizer
	if rasterizer == nil {
		rasterizer = charts.NewGoChartRasterizer(e.opts.DPI, message.NewPrinter(lang))
	}

	logger := logging.FromContext(ctx).With().Str("component", "reporting").Logger()
	s := &session{
		renderID:   renderID,
		surface:    e.opts.NewSurface(page),
		builder:    charts.NewBuilder(charts.NewColorMap(e.opts.Palette), lang).WithLogger(logger),
		rasterizer: rasterizer,
		formatter:  valueFormatter{printer: message.NewPrinter(lang), location: e.opts.Location},
		grid:       req.Grid,
		margin:     margin,
		recurrence: req.Recurrence,
		period:     period,
		location:   e.opts.Location,
		dpi:        e.opts.DPI,
		debug:      req.Debug,
		logger:     logger,
		onProgress: e.opts.OnProgress,
	}

	if err := s.renderLayouts(ctx, req.Layouts, data); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := s.surface.Output(&buf); err != nil {
		return nil, reperrors.WrapRenderError("output_document", err)
	}
	result := &RenderResult{
		ID:        renderID,
		PageCount: s.surface.PageCount(),
		ByteSize:  buf.Len(),
		Figures:   s.figures,
		Clipped:   s.clipped,
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("write document: %w", err)
	}

	s.emit(Event{Type: EventDocumentRendered, Layouts: len(req.Layouts), PageCount: result.PageCount, ByteSize: result.ByteSize})
	return result, nil
}

// period resolves the report period. Without a recurrence the period only
// matters when the request sets one.
func (e *Engine) period(req RenderRequest) (recurrence.Period, error) {
	if req.Recurrence != "" {
		if _, err := req.Recurrence.Unit(); err != nil {
			return recurrence.Period{}, err
		}
	}
	if req.Period != nil {
		if err := req.Period.Validate(); err != nil {
			return recurrence.Period{}, err
		}
		return *req.Period, nil
	}
	if req.Recurrence == "" {
		return recurrence.Period{}, nil
	}
	return recurrence.CalcPeriod(e.opts.Now().In(e.opts.Location), req.Recurrence)
}
