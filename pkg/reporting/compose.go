package reporting

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rcourtman/pulse-reports/internal/aggregation"
	"github.com/rcourtman/pulse-reports/internal/charts"
	reperrors "github.com/rcourtman/pulse-reports/internal/errors"
	"github.com/rcourtman/pulse-reports/internal/grid"
	"github.com/rcourtman/pulse-reports/internal/metrics"
	"github.com/rcourtman/pulse-reports/internal/recurrence"
	"github.com/rcourtman/pulse-reports/pkg/reporting/template"
	"github.com/rs/zerolog"
)

const (
	titleFontSize = 10.0
	titleGap      = 1.0
)

// session is the state of one document render. Figures draw strictly in
// order against its surface and color map.
type session struct {
	renderID   string
	surface    Surface
	builder    *charts.Builder
	rasterizer charts.Rasterizer
	formatter  valueFormatter

	grid       grid.Grid
	margin     grid.Margin
	recurrence recurrence.Recurrence
	period     recurrence.Period
	location   *time.Location
	dpi        float64
	debug      bool

	logger     zerolog.Logger
	onProgress func(Event)

	figures int
	clipped int
	images  int
}

func (s *session) emit(ev Event) {
	if s.onProgress == nil {
		return
	}
	ev.RenderID = s.renderID
	s.onProgress(ev)
}

func (s *session) renderLayouts(ctx context.Context, layouts []template.Layout, data [][]figureData) error {
	for li, layout := range layouts {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.surface.AddPage()
		s.emit(Event{Type: EventLayoutStarted, Layout: li, Layouts: len(layouts)})
		if err := s.renderLayout(ctx, li, layout, data[li]); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) renderLayout(ctx context.Context, li int, layout template.Layout, data []figureData) error {
	viewport := s.surface.Viewport()
	slots := grid.GenerateSlots(viewport, s.grid, s.margin)
	placements := layout.Placements()

	if s.debug {
		s.drawOutlines(viewport, slots)
	}

	for fi, fig := range layout.Figures {
		if err := ctx.Err(); err != nil {
			return err
		}
		base := fig.Base()
		kind := string(fig.Kind())

		if len(base.Slots) == 0 && fi >= len(slots) {
			s.clipped++
			metrics.RecordFigureClipped()
			s.logger.Warn().
				Int("layout", li).
				Int("figure", fi).
				Str("type", kind).
				Str("title", base.Title).
				Int("slots", len(slots)).
				Msg("Figure does not fit the grid; skipping")
			continue
		}

		area, err := grid.ResolveSlot(slots, placements, fi, s.grid, viewport, s.margin)
		if err != nil {
			metrics.RecordFigureError(kind, string(reperrors.TypeOf(err)))
			return reperrors.Annotate(err, li, fi, kind, base.Title)
		}

		var d figureData
		if fi < len(data) {
			d = data[fi]
		}
		if err := s.renderFigure(ctx, fig, area, d); err != nil {
			metrics.RecordFigureError(kind, string(reperrors.TypeOf(err)))
			return reperrors.Annotate(err, li, fi, kind, base.Title)
		}

		s.figures++
		metrics.RecordFigure(kind)
		s.emit(Event{Type: EventFigureRendered, Layout: li, Figure: fi, FigureType: kind, Title: base.Title})
	}
	return nil
}

// renderFigure dispatches on the figure variant.
func (s *session) renderFigure(ctx context.Context, fig template.Figure, area grid.Area, data figureData) error {
	area = s.drawTitle(fig.Base().Title, area)
	if area.Width <= 0 || area.Height <= 0 {
		return reperrors.WrapRenderError("render_figure",
			fmt.Errorf("%w: slot has no room left below the title", reperrors.ErrMissingSlot))
	}

	switch f := fig.(type) {
	case *template.ChartFigure:
		return s.renderChart(ctx, f, area, data.rows)
	case *template.TableFigure:
		return s.renderTable(f, area, data.rows)
	case *template.MetricFigure:
		return s.renderMetric(f, area, data.rows)
	case *template.MarkdownFigure:
		return s.renderMarkdown(f, area, data)
	default:
		return reperrors.WrapRenderError("render_figure", fmt.Errorf("unsupported figure %T", fig))
	}
}

// drawTitle prints title at the top of area and returns the room left below.
func (s *session) drawTitle(title string, area grid.Area) grid.Area {
	if title == "" {
		return area
	}
	style := TextStyle{Size: titleFontSize, Bold: true, Color: colorTextDark}
	h := s.surface.LineHeight(style)
	s.surface.Text(grid.Area{X: area.X, Y: area.Y, Width: area.Width, Height: h}, title, style)
	area.Y += h + titleGap
	area.Height -= h + titleGap
	return area
}

func (s *session) drawOutlines(viewport grid.Area, slots []grid.Area) {
	s.surface.Rect(viewport, RectStyle{Stroke: &colorDebug, LineWidth: 0.3})
	for _, slot := range slots {
		s.surface.Rect(slot, RectStyle{Stroke: &colorTextMuted, LineWidth: 0.2, Dashed: true})
	}
}

func (s *session) renderChart(ctx context.Context, f *template.ChartFigure, area grid.Area, rows []aggregation.Row) error {
	w, h := s.pixels(area.Width), s.pixels(area.Height)
	spec, err := s.builder.Build(f.Chart(), rows, charts.BuildOptions{
		Width:      w,
		Height:     h,
		Recurrence: s.recurrence,
		Period:     s.period,
		Location:   s.location,
	})
	if err != nil {
		return err
	}
	// The page prints the title above the slot.
	spec.Title = ""

	png, err := s.rasterizer.Rasterize(ctx, spec, w, h)
	if err != nil {
		return err
	}
	s.images++
	name := fmt.Sprintf("%s-chart-%d", s.renderID, s.images)
	if err := s.surface.Image(name, png, area); err != nil {
		return reperrors.WrapRenderError("place_chart", err)
	}
	return nil
}

// pixels converts millimetres to chart pixels at the session DPI.
func (s *session) pixels(mm float64) int {
	return int(math.Round(mm / 25.4 * s.dpi))
}
