package charts

import (
	"fmt"
	"strings"

	"github.com/rcourtman/pulse-reports/internal/aggregation"
	reperrors "github.com/rcourtman/pulse-reports/internal/errors"
	"github.com/rcourtman/pulse-reports/internal/logging"
	"github.com/rcourtman/pulse-reports/internal/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	defaultWidth  = 800
	defaultHeight = 500
)

// Builder turns figures and rows into chart specs. It owns the ColorMap of
// one document; build every chart of a document with the same Builder.
type Builder struct {
	colors  *ColorMap
	printer *message.Printer
	logger  zerolog.Logger
}

// NewBuilder creates a builder for one document.
func NewBuilder(colors *ColorMap, lang language.Tag) *Builder {
	if colors == nil {
		colors = NewColorMap(nil)
	}
	return &Builder{
		colors:  colors,
		printer: message.NewPrinter(lang),
		logger:  logging.WithComponent("charts"),
	}
}

// WithLogger replaces the builder's logger.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

// Build creates the spec of one chart figure.
func (b *Builder) Build(fig Figure, rows []aggregation.Row, opts BuildOptions) (*Spec, error) {
	family := fig.Mark.Family()
	if family == "" {
		return nil, reperrors.WrapConfigurationError("build_chart",
			fmt.Errorf("%w: unknown chart mark %q", reperrors.ErrInvalidTemplate, fig.Mark))
	}
	if opts.Width <= 0 {
		opts.Width = defaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = defaultHeight
	}

	p := fig.Params
	label := withDefaults(p.Label, aggregation.KeyField, Nominal)
	value := withDefaults(p.Value, aggregation.ValueField, Quantitative)
	temporal := label.Type == Temporal

	if p.Sort != "" && !temporal {
		rows = aggregation.SortRows(rows, p.Sort, value.Field)
	}

	data, err := toData(rows, label.Field, value.Field, p.Color)
	if err != nil {
		return nil, err
	}

	spec := &Spec{
		Mark:     fig.Mark,
		Family:   family,
		Title:    fig.Title,
		Width:    opts.Width,
		Height:   opts.Height,
		Grouped:  p.Color != "",
		Temporal: temporal,
	}

	if temporal && (family == FamilyBar || family == FamilyLine) && opts.Recurrence != "" {
		synthetic, unit, err := ContinuityRows(data, opts.Recurrence, opts.Period, opts.Location)
		if err != nil {
			return nil, err
		}
		for i := range data {
			data[i].Label = bucketLabel(data[i].Label, unit, opts.Location)
		}
		spec.TimeUnit = unit
		data = append(synthetic, data...)
	}

	if p.DataLabel != nil {
		labels := DataLabels(data, *p.DataLabel, spec.Grouped, b.printer)
		for i := range data {
			data[i].DataLabel = labels[i]
		}
	}
	spec.Dataset = data

	spec.Colors = b.colorScale(data, family, spec.Grouped)

	switch family {
	case FamilyArc:
		b.buildArc(spec, p, label, value)
	case FamilyBar:
		b.buildBar(spec, p, label, value)
	case FamilyLine:
		b.buildLine(spec, p, label, value)
	default:
		b.buildOther(spec, p, label, value)
	}

	if p.Legend != nil {
		spec.Legend = *p.Legend
	}
	return spec, nil
}

func (b *Builder) buildArc(spec *Spec, p Params, label, value Channel) {
	spec.Encoding = Encoding{
		Theta: value,
		Color: label,
		Order: Channel{Field: value.Field, Type: Quantitative},
	}
	if p.Color != "" {
		spec.Encoding.Color = Channel{Field: p.Color, Type: Nominal, Title: p.Color}
	}
	spec.Legend = true
	spec.Radius = arcRadius(spec.Width, spec.Height, p.InnerRadius, p.DataLabel)
	spec.Layers = b.layers(spec.Mark, p.DataLabel, spec.Radius.Label)
}

func (b *Builder) buildBar(spec *Spec, p Params, label, value Channel) {
	spec.Encoding = Encoding{X: label, Y: value}
	if p.Color != "" {
		spec.Encoding.Color = Channel{Field: p.Color, Type: Nominal, Title: p.Color}
		spec.Encoding.Order = Channel{Field: p.Color, Type: Nominal}
		spec.Stacked = p.Stack == nil || *p.Stack
	} else {
		spec.Encoding.Color = label
	}
	if p.Invert {
		spec.Encoding.X, spec.Encoding.Y = spec.Encoding.Y, spec.Encoding.X
		spec.Horizontal = true
	}
	spec.Legend = p.Color != ""
	spec.Layers = b.layers(spec.Mark, p.DataLabel, 0)
}

func (b *Builder) buildLine(spec *Spec, p Params, label, value Channel) {
	if label.Type == Nominal && p.Label.Type == "" {
		label.Type = Ordinal
	}
	spec.Encoding = Encoding{X: label, Y: value}
	if p.Color != "" {
		spec.Encoding.Color = Channel{Field: p.Color, Type: Nominal, Title: p.Color}
	}
	spec.Legend = p.Color != ""
	spec.Layers = b.layers(spec.Mark, p.DataLabel, 0)
}

func (b *Builder) buildOther(spec *Spec, p Params, label, value Channel) {
	spec.Encoding = Encoding{X: label, Y: value, Color: label}
	if p.Color != "" {
		spec.Encoding.Color = Channel{Field: p.Color, Type: Nominal, Title: p.Color}
	}
	spec.Legend = p.Color != ""
	spec.Layers = b.layers(spec.Mark, p.DataLabel, 0)
}

func (b *Builder) layers(mark Mark, cfg *DataLabel, radius float64) []Layer {
	layers := []Layer{{Kind: LayerMark, Mark: mark}}
	if cfg == nil {
		return layers
	}
	layers = append(layers, Layer{Kind: LayerValueLabel, Mark: MarkText, Radius: radius})
	if cfg.ShowLabel {
		layers = append(layers, Layer{Kind: LayerNameLabel, Mark: MarkText, Radius: radius})
	}
	return layers
}

// colorScale resolves the chart's color domain against the document ColorMap.
// Lines without a color dimension are a single series and take no color.
func (b *Builder) colorScale(data []Datum, family Family, grouped bool) ColorScale {
	if family == FamilyLine && !grouped {
		return ColorScale{}
	}

	var domain []string
	seen := make(map[string]bool)
	for _, d := range data {
		if d.Synthetic {
			continue
		}
		v := d.Label
		if grouped {
			v = d.Group
		}
		if !seen[v] {
			seen[v] = true
			domain = append(domain, v)
		}
	}

	colors, exhausted := b.colors.Assign(domain)
	for _, label := range exhausted {
		metrics.RecordPaletteExhausted()
		b.logger.Warn().
			Str("label", label).
			Int("assigned", b.colors.Len()).
			Msg("Color palette exhausted; using fallback color")
	}
	return ColorScale{Domain: domain, Range: colors}
}

func withDefaults(c Channel, field, typ string) Channel {
	if c.Field == "" {
		c.Field = field
	}
	if c.Type == "" {
		c.Type = typ
	}
	if c.Title == "" {
		c.Title = c.Field
	}
	return c
}

func toData(rows []aggregation.Row, labelField, valueField, colorField string) ([]Datum, error) {
	data := make([]Datum, 0, len(rows))
	for i, row := range rows {
		v, ok := row.Float(valueField)
		if !ok {
			if raw, present := row[valueField]; present && raw != nil && strings.TrimSpace(fmt.Sprint(raw)) != "" {
				return nil, reperrors.WrapDataFormatError("build_chart",
					fmt.Errorf("%w: row %d field %q is not numeric: %v", reperrors.ErrDataFormat, i, valueField, raw))
			}
		}
		d := Datum{Label: row.String(labelField), Value: v}
		if colorField != "" {
			d.Group = row.String(colorField)
		}
		data = append(data, d)
	}
	return data, nil
}
