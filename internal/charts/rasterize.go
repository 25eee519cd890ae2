package charts

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sort"

	reperrors "github.com/rcourtman/pulse-reports/internal/errors"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Rasterizer turns a spec into a PNG image of the given pixel size.
type Rasterizer interface {
	Rasterize(ctx context.Context, spec *Spec, widthPx, heightPx int) ([]byte, error)
}

const (
	noDataLabel = "No data"
	maxXTicks   = 12
)

var (
	fallbackFill = drawing.ColorFromHex("9e9e9e")
	gridColor    = drawing.ColorFromHex("dcdcdc") // Chart grid
	mutedText    = drawing.ColorFromHex("7f8c8d")
)

// GoChartRasterizer renders specs with go-chart.
type GoChartRasterizer struct {
	DPI     float64
	Printer *message.Printer
}

// NewGoChartRasterizer creates a rasterizer. A nil printer formats axis values
// without localization.
func NewGoChartRasterizer(dpi float64, printer *message.Printer) *GoChartRasterizer {
	return &GoChartRasterizer{DPI: dpi, Printer: printer}
}

// Rasterize implements Rasterizer.
func (g *GoChartRasterizer) Rasterize(ctx context.Context, spec *Spec, widthPx, heightPx int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if spec == nil {
		return nil, reperrors.WrapRenderError("rasterize", fmt.Errorf("%w: nil spec", reperrors.ErrRasterize))
	}
	if widthPx <= 0 || heightPx <= 0 {
		return nil, reperrors.WrapRenderError("rasterize",
			fmt.Errorf("%w: invalid size %dx%d", reperrors.ErrRasterize, widthPx, heightPx))
	}

	var (
		buf bytes.Buffer
		err error
	)
	switch spec.Family {
	case FamilyArc:
		err = g.renderArc(&buf, spec, widthPx, heightPx)
	case FamilyBar:
		if spec.Stacked || spec.Horizontal {
			err = g.renderStackedBar(&buf, spec, widthPx, heightPx)
		} else {
			err = g.renderBar(&buf, spec, widthPx, heightPx)
		}
	default:
		err = g.renderSeries(&buf, spec, widthPx, heightPx)
	}
	if err != nil {
		return nil, reperrors.WrapRenderError("rasterize", fmt.Errorf("%w: %s chart: %v", reperrors.ErrRasterize, spec.Mark, err))
	}
	return buf.Bytes(), nil
}

func (g *GoChartRasterizer) renderArc(buf *bytes.Buffer, spec *Spec, w, h int) error {
	var values []chart.Value
	for _, d := range spec.Dataset {
		if d.Value <= 0 {
			continue
		}
		key := d.Label
		if spec.Grouped {
			key = d.Group
		}
		values = append(values, chart.Value{
			Label: arcLabel(spec, d, key),
			Value: d.Value,
			Style: chart.Style{
				FillColor:   colorOf(spec.Colors.Of(key)),
				StrokeColor: drawing.ColorWhite,
				StrokeWidth: 1,
				FontSize:    8,
			},
		})
	}
	if len(values) == 0 {
		values = []chart.Value{{Label: noDataLabel, Value: 1, Style: chart.Style{FillColor: gridColor, FontColor: mutedText}}}
	}

	if spec.Radius != nil && spec.Radius.Inner > 0 {
		donut := chart.DonutChart{
			Title:  spec.Title,
			Width:  w,
			Height: h,
			DPI:    g.DPI,
			Values: values,
		}
		donut.TitleStyle.Hidden = spec.Title == ""
		return donut.Render(chart.PNG, buf)
	}

	pie := chart.PieChart{
		Title:  spec.Title,
		Width:  w,
		Height: h,
		DPI:    g.DPI,
		Values: values,
	}
	pie.TitleStyle.Hidden = spec.Title == ""
	return pie.Render(chart.PNG, buf)
}

// arcLabel combines the overlays drawn on a slice.
func arcLabel(spec *Spec, d Datum, name string) string {
	showName := spec.HasLayer(LayerNameLabel) || (spec.Legend && !spec.HasLayer(LayerValueLabel))
	switch {
	case showName && d.DataLabel != "":
		return name + " " + d.DataLabel
	case showName:
		return name
	default:
		return d.DataLabel
	}
}

func (g *GoChartRasterizer) renderBar(buf *bytes.Buffer, spec *Spec, w, h int) error {
	data := orderedData(spec)

	var bars []chart.Value
	maxValue := 0.0
	for _, d := range data {
		label := d.Label
		if spec.HasLayer(LayerValueLabel) && d.DataLabel != "" {
			label = fmt.Sprintf("%s (%s)", d.Label, d.DataLabel)
		}
		bars = append(bars, chart.Value{
			Label: label,
			Value: d.Value,
			Style: chart.Style{
				FillColor:   colorOf(spec.Colors.Of(d.Label)),
				StrokeColor: colorOf(spec.Colors.Of(d.Label)),
				StrokeWidth: 1,
			},
		})
		maxValue = math.Max(maxValue, d.Value)
	}
	if len(bars) == 0 {
		bars = []chart.Value{{Label: noDataLabel, Value: 0}}
	}

	barWidth, spacing := barGeometry(w, len(bars))
	bc := chart.BarChart{
		Title:      spec.Title,
		Width:      w,
		Height:     h,
		DPI:        g.DPI,
		BarWidth:   barWidth,
		BarSpacing: spacing,
		Background: chart.Style{Padding: chart.Box{Top: 20, Left: 10, Right: 10, Bottom: 10}},
		XAxis:      chart.Style{FontSize: 7},
		YAxis: chart.YAxis{
			Name:           spec.Encoding.Y.Title,
			Range:          &chart.ContinuousRange{Min: 0, Max: niceMax(maxValue)},
			ValueFormatter: g.formatValue,
			GridMajorStyle: chart.Style{StrokeColor: gridColor, StrokeWidth: 0.5},
		},
		Bars: bars,
	}
	bc.TitleStyle.Hidden = spec.Title == ""
	return bc.Render(chart.PNG, buf)
}

// renderStackedBar draws grouped or horizontal bars. go-chart normalizes every
// stacked bar to full height, so each bar is padded with a transparent segment
// up to the largest total to keep bar lengths proportional.
func (g *GoChartRasterizer) renderStackedBar(buf *bytes.Buffer, spec *Spec, w, h int) error {
	type stack struct {
		label    string
		total    float64
		segments []chart.Value
	}

	var (
		order  []string
		stacks = make(map[string]*stack)
	)
	for _, d := range orderedData(spec) {
		s, ok := stacks[d.Label]
		if !ok {
			s = &stack{label: d.Label}
			stacks[d.Label] = s
			order = append(order, d.Label)
		}
		if d.Value <= 0 {
			continue
		}
		key := d.Label
		if spec.Grouped {
			key = d.Group
		}
		segLabel := ""
		if spec.HasLayer(LayerValueLabel) {
			segLabel = d.DataLabel
		}
		if spec.HasLayer(LayerNameLabel) && spec.Grouped {
			segLabel = joinNonEmpty(d.Group, segLabel)
		}
		s.total += d.Value
		s.segments = append(s.segments, chart.Value{
			Label: segLabel,
			Value: d.Value,
			Style: chart.Style{FillColor: colorOf(spec.Colors.Of(key)), StrokeColor: drawing.ColorWhite, StrokeWidth: 0.5, FontSize: 7},
		})
	}

	maxTotal := 0.0
	for _, s := range stacks {
		maxTotal = math.Max(maxTotal, s.total)
	}

	var bars []chart.StackedBar
	for _, label := range order {
		s := stacks[label]
		pad := chart.Value{Value: maxTotal - s.total, Style: chart.Style{FillColor: drawing.ColorTransparent, StrokeColor: drawing.ColorTransparent}}
		values := append([]chart.Value{pad}, s.segments...)
		if maxTotal == 0 {
			values = []chart.Value{{Value: 1, Style: pad.Style}}
		}
		bars = append(bars, chart.StackedBar{Name: label, Values: values})
	}
	if len(bars) == 0 {
		bars = []chart.StackedBar{{Name: noDataLabel, Values: []chart.Value{{Value: 1, Style: chart.Style{FillColor: drawing.ColorTransparent}}}}}
	}

	extent := w
	if spec.Horizontal {
		extent = h
	}
	barWidth, spacing := barGeometry(extent, len(bars))
	for i := range bars {
		bars[i].Width = barWidth
	}

	sbc := chart.StackedBarChart{
		Title:        spec.Title,
		Width:        w,
		Height:       h,
		DPI:          g.DPI,
		BarSpacing:   spacing,
		IsHorizontal: spec.Horizontal,
		Background:   chart.Style{Padding: chart.Box{Top: 20, Left: 10, Right: 10, Bottom: 10}},
		Bars:         bars,
	}
	// the value axis only shows percentages of the padded bar; names stay on the category axis
	if spec.Horizontal {
		sbc.XAxis = chart.Style{Hidden: true}
		sbc.YAxis = chart.Style{FontSize: 7}
	} else {
		sbc.XAxis = chart.Style{FontSize: 7}
		sbc.YAxis = chart.Style{Hidden: true}
	}
	sbc.TitleStyle.Hidden = spec.Title == ""
	return sbc.Render(chart.PNG, buf)
}

// renderSeries draws line, area and point-like marks over an index axis.
func (g *GoChartRasterizer) renderSeries(buf *bytes.Buffer, spec *Spec, w, h int) error {
	data := orderedData(spec)

	var categories []string
	index := make(map[string]int)
	for _, d := range data {
		if _, ok := index[d.Label]; !ok {
			index[d.Label] = len(categories)
			categories = append(categories, d.Label)
		}
	}

	type series struct {
		name   string
		values []float64
	}
	var (
		groups []string
		byName = make(map[string]*series)
	)
	minValue, maxValue := 0.0, 0.0
	for _, d := range data {
		name := spec.Encoding.Y.Title
		if spec.Grouped {
			name = d.Group
			if d.Synthetic {
				// zero rows keep the axis continuous without creating a series
				continue
			}
		}
		s, ok := byName[name]
		if !ok {
			s = &series{name: name, values: make([]float64, len(categories))}
			byName[name] = s
			groups = append(groups, name)
		}
		s.values[index[d.Label]] += d.Value
		minValue = math.Min(minValue, d.Value)
		maxValue = math.Max(maxValue, d.Value)
	}

	xValues := make([]float64, len(categories))
	for i := range xValues {
		xValues[i] = float64(i)
	}
	if len(categories) == 1 {
		// go-chart needs two x values per series; span the single category.
		xValues = []float64{-0.5, 0.5}
		for _, s := range byName {
			s.values = []float64{s.values[0], s.values[0]}
		}
	}

	var all []chart.Series
	for _, name := range groups {
		s := byName[name]
		all = append(all, chart.ContinuousSeries{
			Name:    name,
			Style:   g.seriesStyle(spec, name),
			XValues: xValues,
			YValues: s.values,
		})
	}
	if len(all) == 0 {
		all = append(all, chart.ContinuousSeries{
			Name:    noDataLabel,
			Style:   chart.Style{StrokeColor: gridColor, StrokeWidth: 1},
			XValues: []float64{0, 1},
			YValues: []float64{0, 0},
		})
	}

	if spec.HasLayer(LayerValueLabel) || spec.HasLayer(LayerNameLabel) {
		var annotations []chart.Value2
		for _, d := range data {
			text := ""
			if spec.HasLayer(LayerValueLabel) {
				text = d.DataLabel
			}
			if spec.HasLayer(LayerNameLabel) && text != "" {
				text = joinNonEmpty(d.Label, text)
			}
			if text == "" {
				continue
			}
			annotations = append(annotations, chart.Value2{XValue: float64(index[d.Label]), YValue: d.Value, Label: text})
		}
		if len(annotations) > 0 {
			all = append(all, chart.AnnotationSeries{Annotations: annotations, Style: chart.Style{FontSize: 6}})
		}
	}

	xRange := &chart.ContinuousRange{Min: 0, Max: math.Max(1, float64(len(categories)-1))}
	if len(categories) == 1 {
		xRange = &chart.ContinuousRange{Min: -1, Max: 1}
	}

	graph := chart.Chart{
		Title:      spec.Title,
		Width:      w,
		Height:     h,
		DPI:        g.DPI,
		Background: chart.Style{Padding: chart.Box{Top: 20, Left: 10, Right: 10, Bottom: 10}},
		XAxis: chart.XAxis{
			Name:      spec.Encoding.X.Title,
			Range:     xRange,
			Ticks:     categoryTicks(categories),
			TickStyle: chart.Style{FontSize: 7, TextRotationDegrees: tickRotation(len(categories))},
		},
		YAxis: chart.YAxis{
			Name:           spec.Encoding.Y.Title,
			Range:          &chart.ContinuousRange{Min: minValue, Max: niceMax(maxValue)},
			ValueFormatter: g.formatValue,
			GridMajorStyle: chart.Style{StrokeColor: gridColor, StrokeWidth: 0.5},
		},
		Series: all,
	}
	graph.TitleStyle.Hidden = spec.Title == ""
	if spec.Legend {
		graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	}
	return graph.Render(chart.PNG, buf)
}

func (g *GoChartRasterizer) seriesStyle(spec *Spec, name string) chart.Style {
	var style chart.Style
	c := spec.Colors.Of(name)
	if c != FallbackColor || spec.Grouped {
		col := colorOf(c)
		style.StrokeColor = col
		style.DotColor = col
	}

	switch spec.Mark {
	case MarkLine, MarkTrail, MarkRule:
		style.StrokeWidth = 1.5
	case MarkArea:
		style.StrokeWidth = 1
		if !style.StrokeColor.IsZero() {
			style.FillColor = style.StrokeColor.WithAlpha(64)
		} else {
			style.FillColor = chart.GetDefaultColor(0).WithAlpha(64)
		}
	default:
		style.StrokeWidth = chart.Disabled
		style.DotWidth = 3
		if style.DotColor.IsZero() {
			style.DotColor = chart.GetDefaultColor(0)
		}
	}
	return style
}

func (g *GoChartRasterizer) formatValue(v interface{}) string {
	f, ok := v.(float64)
	if !ok {
		return chart.FloatValueFormatter(v)
	}
	if g.Printer == nil {
		return chart.FloatValueFormatterWithFormat(f, "%.0f")
	}
	return g.Printer.Sprint(number.Decimal(f, number.MaxFractionDigits(1)))
}

// orderedData returns the dataset with time buckets in chronological order.
// Continuity rows are prepended by the builder; axes still read left to right.
func orderedData(spec *Spec) []Datum {
	data := make([]Datum, len(spec.Dataset))
	copy(data, spec.Dataset)
	if spec.Temporal && spec.TimeUnit != "" {
		sort.SliceStable(data, func(i, j int) bool { return data[i].Label < data[j].Label })
	}
	return data
}

func categoryTicks(categories []string) []chart.Tick {
	step := 1
	if len(categories) > maxXTicks {
		step = int(math.Ceil(float64(len(categories)) / maxXTicks))
	}
	ticks := make([]chart.Tick, 0, len(categories)/step+1)
	for i := 0; i < len(categories); i += step {
		ticks = append(ticks, chart.Tick{Value: float64(i), Label: categories[i]})
	}
	return ticks
}

func tickRotation(n int) float64 {
	if n > 6 {
		return 45
	}
	return 0
}

func barGeometry(extent, n int) (width, spacing int) {
	if n <= 0 {
		n = 1
	}
	slot := float64(extent-80) / float64(n)
	width = int(math.Max(4, slot*0.7))
	spacing = int(math.Max(2, slot*0.3))
	return width, spacing
}

func niceMax(v float64) float64 {
	if v <= 0 {
		return 1
	}
	return v * 1.1
}

func colorOf(hex string) drawing.Color {
	if hex == FallbackColor {
		return fallbackFill
	}
	return drawing.ColorFromHex(hex)
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}
