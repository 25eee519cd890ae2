// Package charts builds declarative chart specifications from flattened rows
// and rasterizes them.
package charts

import (
	"time"

	"github.com/rcourtman/pulse-reports/internal/recurrence"
)

// Mark is the primitive a chart draws its data with.
type Mark string

const (
	MarkArc    Mark = "arc"
	MarkBar    Mark = "bar"
	MarkLine   Mark = "line"
	MarkArea   Mark = "area"
	MarkPoint  Mark = "point"
	MarkCircle Mark = "circle"
	MarkSquare Mark = "square"
	MarkTick   Mark = "tick"
	MarkRule   Mark = "rule"
	MarkText   Mark = "text"
	MarkTrail  Mark = "trail"
	MarkRect   Mark = "rect"
)

// Family groups marks that share a spec layout.
type Family string

const (
	FamilyArc   Family = "arc"
	FamilyBar   Family = "bar"
	FamilyLine  Family = "line"
	FamilyOther Family = "other"
)

// Family returns the chart family of m, or "" for an unknown mark.
func (m Mark) Family() Family {
	switch m {
	case MarkArc:
		return FamilyArc
	case MarkBar:
		return FamilyBar
	case MarkLine, MarkArea:
		return FamilyLine
	case MarkPoint, MarkCircle, MarkSquare, MarkTick, MarkRule, MarkText, MarkTrail, MarkRect:
		return FamilyOther
	default:
		return ""
	}
}

// IsMark reports whether name is a chart mark.
func IsMark(name string) bool {
	return Mark(name).Family() != ""
}

// Channel types.
const (
	Nominal      = "nominal"
	Ordinal      = "ordinal"
	Quantitative = "quantitative"
	Temporal     = "temporal"
)

// Channel binds a row field to a visual channel.
type Channel struct {
	Field string `json:"field,omitempty" yaml:"field,omitempty" toml:"field,omitempty"`
	Type  string `json:"type,omitempty" yaml:"type,omitempty" toml:"type,omitempty" validate:"omitempty,oneof=nominal ordinal quantitative temporal"`
	Title string `json:"title,omitempty" yaml:"title,omitempty" toml:"title,omitempty"`
}

// Label formats.
const (
	LabelNumeric = "numeric"
	LabelPercent = "percent"
)

// DataLabel configures the value overlay of a chart.
type DataLabel struct {
	Format         string   `json:"format,omitempty" yaml:"format,omitempty" toml:"format,omitempty" validate:"omitempty,oneof=numeric percent"`
	MinValue       *float64 `json:"minValue,omitempty" yaml:"minValue,omitempty" toml:"minValue,omitempty"`
	FractionDigits *int     `json:"fractionDigits,omitempty" yaml:"fractionDigits,omitempty" toml:"fractionDigits,omitempty" validate:"omitempty,min=0,max=6"`
	// ShowLabel adds a second overlay with the category name.
	ShowLabel bool `json:"showLabel,omitempty" yaml:"showLabel,omitempty" toml:"showLabel,omitempty"`
	// Position places arc labels "in" the ring or "out" past its edge.
	Position string  `json:"position,omitempty" yaml:"position,omitempty" toml:"position,omitempty" validate:"omitempty,oneof=in out"`
	Offset   float64 `json:"offset,omitempty" yaml:"offset,omitempty" toml:"offset,omitempty"`
}

// Params are the caller overrides of a chart figure.
type Params struct {
	// Label is the category or time axis. Defaults to the row key.
	Label Channel `json:"label,omitempty" yaml:"label,omitempty" toml:"label,omitempty"`
	// Value is the quantitative axis. Defaults to the row value.
	Value Channel `json:"value,omitempty" yaml:"value,omitempty" toml:"value,omitempty"`
	// Color names the dimension used for color grouping.
	Color  string `json:"color,omitempty" yaml:"color,omitempty" toml:"color,omitempty"`
	Legend *bool  `json:"legend,omitempty" yaml:"legend,omitempty" toml:"legend,omitempty"`

	// Invert draws bars horizontally.
	Invert bool   `json:"invert,omitempty" yaml:"invert,omitempty" toml:"invert,omitempty"`
	Stack  *bool  `json:"stack,omitempty" yaml:"stack,omitempty" toml:"stack,omitempty"`
	Sort   string `json:"sort,omitempty" yaml:"sort,omitempty" toml:"sort,omitempty" validate:"omitempty,oneof=asc desc"`

	// InnerRadius is the arc hole as a fraction of the outer radius.
	InnerRadius float64    `json:"innerRadius,omitempty" yaml:"innerRadius,omitempty" toml:"innerRadius,omitempty" validate:"min=0,max=0.95"`
	DataLabel   *DataLabel `json:"dataLabel,omitempty" yaml:"dataLabel,omitempty" toml:"dataLabel,omitempty"`
}

// Figure is the chart part of a template figure.
type Figure struct {
	Mark   Mark
	Title  string
	Params Params
}

// BuildOptions carry the document context a chart is built in.
type BuildOptions struct {
	Width      int
	Height     int
	Recurrence recurrence.Recurrence
	Period     recurrence.Period
	Location   *time.Location
}

// Datum is one point of a chart dataset.
type Datum struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
	// Group is the color dimension value, empty without one.
	Group string `json:"group,omitempty"`
	// Synthetic marks zero rows added for time continuity.
	Synthetic bool   `json:"synthetic,omitempty"`
	DataLabel string `json:"dataLabel,omitempty"`
}

// Encoding maps channels to fields. Unset channels have an empty Field.
type Encoding struct {
	X     Channel `json:"x"`
	Y     Channel `json:"y"`
	Color Channel `json:"color"`
	Theta Channel `json:"theta"`
	Order Channel `json:"order"`
}

// LayerKind tells the rasterizer what a layer draws.
type LayerKind string

const (
	LayerMark       LayerKind = "mark"
	LayerValueLabel LayerKind = "value_label"
	LayerNameLabel  LayerKind = "name_label"
)

// Layer is one drawing pass over the dataset.
type Layer struct {
	Kind LayerKind `json:"kind"`
	Mark Mark      `json:"mark"`
	// Radius positions arc labels, in pixels from the center.
	Radius float64 `json:"radius,omitempty"`
}

// ArcRadius holds pixel radii of an arc chart.
type ArcRadius struct {
	Inner float64 `json:"inner"`
	Outer float64 `json:"outer"`
	Label float64 `json:"label"`
}

// ColorScale is the color domain of one chart and the colors bound to it.
type ColorScale struct {
	Domain []string `json:"domain"`
	Range  []string `json:"range"`
}

// Of returns the color of value, or FallbackColor.
func (s ColorScale) Of(value string) string {
	for i, d := range s.Domain {
		if d == value && i < len(s.Range) {
			return s.Range[i]
		}
	}
	return FallbackColor
}

// Spec is a self-contained chart description.
type Spec struct {
	Mark       Mark                `json:"mark"`
	Family     Family              `json:"family"`
	Title      string              `json:"title,omitempty"`
	Width      int                 `json:"width"`
	Height     int                 `json:"height"`
	Dataset    []Datum             `json:"dataset"`
	Encoding   Encoding            `json:"encoding"`
	Layers     []Layer             `json:"layers"`
	Colors     ColorScale          `json:"colors"`
	Legend     bool                `json:"legend"`
	Horizontal bool                `json:"horizontal,omitempty"`
	Stacked    bool                `json:"stacked,omitempty"`
	Grouped    bool                `json:"grouped,omitempty"` // datums carry a color dimension
	Temporal   bool                `json:"temporal,omitempty"`
	TimeUnit   recurrence.TimeUnit `json:"timeUnit,omitempty"`
	Radius     *ArcRadius          `json:"radius,omitempty"`
}

// HasLayer reports whether the spec draws a layer of kind.
func (s *Spec) HasLayer(kind LayerKind) bool {
	for _, l := range s.Layers {
		if l.Kind == kind {
			return true
		}
	}
	return false
}
