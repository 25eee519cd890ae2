// Package template defines the report template contract: a grid, an ordered
// list of layouts and the figures each layout places on its page.
package template

import (
	"github.com/rcourtman/pulse-reports/internal/aggregation"
	"github.com/rcourtman/pulse-reports/internal/charts"
	"github.com/rcourtman/pulse-reports/internal/grid"
	"github.com/rcourtman/pulse-reports/internal/recurrence"
)

// Template is a full report definition.
type Template struct {
	Title      string                `json:"title,omitempty"`
	Grid       grid.Grid             `json:"grid" validate:"required"`
	Margin     *grid.Margin          `json:"margin,omitempty"`
	Recurrence recurrence.Recurrence `json:"recurrence,omitempty" validate:"omitempty,oneof=DAILY WEEKLY MONTHLY QUARTERLY BIENNIAL YEARLY"`
	Period     *recurrence.Period    `json:"period,omitempty"`
	Locale     string                `json:"locale,omitempty" validate:"omitempty,bcp47_language_tag"`
	Layouts    []Layout              `json:"layouts" validate:"required,min=1,dive"`
}

// Layout is an ordered set of figures sharing one page.
type Layout struct {
	// Data names the pre-fetched aggregation response the figures read.
	Data    string   `json:"data,omitempty"`
	Figures []Figure `json:"-" validate:"-"`
}

// Kind is the type tag of a figure.
type Kind string

const (
	KindTable    Kind = "table"
	KindMarkdown Kind = "md"
	KindMetric   Kind = "metric"
)

// Figure is one drawable item of a layout. The set of implementations is
// closed: *ChartFigure, *TableFigure, *MetricFigure and *MarkdownFigure.
type Figure interface {
	Kind() Kind
	Base() *FigureBase
	isFigure()
}

// FigureBase holds the fields shared by every figure.
type FigureBase struct {
	Type  Kind   `json:"type" validate:"required"`
	Title string `json:"title,omitempty"`
	// Slots are grid cell indices the figure occupies. Empty means auto placement.
	Slots []int `json:"slots,omitempty" validate:"omitempty,dive,min=0"`
	// Aggregation describes how to flatten the layout response for this figure.
	Aggregation []aggregation.Element `json:"aggregation,omitempty" validate:"omitempty,dive"`
	// Data is inline figure data: rows, a single row or markdown text.
	Data any `json:"data,omitempty"`
}

// Base implements Figure.
func (b *FigureBase) Base() *FigureBase { return b }

// Kind implements Figure.
func (b *FigureBase) Kind() Kind { return b.Type }

func (*FigureBase) isFigure() {}

// ChartFigure is any chart mark.
type ChartFigure struct {
	FigureBase
	Params charts.Params `json:"params"`
}

// Mark returns the chart mark of the figure.
func (f *ChartFigure) Mark() charts.Mark { return charts.Mark(f.Type) }

// Chart converts the figure for the chart builder.
func (f *ChartFigure) Chart() charts.Figure {
	return charts.Figure{Mark: f.Mark(), Title: f.Title, Params: f.Params}
}

// Column is one table column.
type Column struct {
	Field string `json:"field" validate:"required"`
	Title string `json:"title,omitempty"`
	// Format is "number", "bytes", "date" or empty for text.
	Format string  `json:"format,omitempty" validate:"omitempty,oneof=number bytes date text"`
	Width  float64 `json:"width,omitempty" validate:"min=0"`
	Align  string  `json:"align,omitempty" validate:"omitempty,oneof=L C R"`
}

// TableParams configure a table figure.
type TableParams struct {
	Columns []Column `json:"columns,omitempty" validate:"omitempty,dive"`
	// MaxHeight caps the table height in page units; 0 uses the slot height.
	MaxHeight float64 `json:"maxHeight,omitempty" validate:"min=0"`
	// MaxLength caps the number of data rows; 0 means no cap.
	MaxLength int `json:"maxLength,omitempty" validate:"min=0"`
	// Total appends a row summing numeric columns.
	Total     bool    `json:"total,omitempty"`
	Sort      string  `json:"sort,omitempty" validate:"omitempty,oneof=asc desc"`
	SortField string  `json:"sortField,omitempty"`
	FontSize  float64 `json:"fontSize,omitempty" validate:"min=0"`
}

// TableFigure renders rows into a grid of cells.
type TableFigure struct {
	FigureBase
	Params TableParams `json:"params"`
}

// MetricItem is one labeled scalar of a metric figure.
type MetricItem struct {
	Label string `json:"label" validate:"required"`
	// Field is read from the selected row. Defaults to "value".
	Field string `json:"field,omitempty"`
	// Key selects the row whose key equals it; empty takes Row.
	Key string `json:"key,omitempty"`
	Row int    `json:"row,omitempty" validate:"min=0"`
	// Format is "number", "bytes", "date" or "text".
	Format         string `json:"format,omitempty" validate:"omitempty,oneof=number bytes date text"`
	Layout         string `json:"layout,omitempty"`
	FractionDigits *int   `json:"fractionDigits,omitempty" validate:"omitempty,min=0,max=6"`
	Unit           string `json:"unit,omitempty"`
}

// MetricParams configure a metric figure.
type MetricParams struct {
	Items []MetricItem `json:"items" validate:"required,min=1,dive"`
	// Columns of the mini-grid; 0 picks a square-ish layout.
	Columns int `json:"columns,omitempty" validate:"min=0,max=12"`
}

// MetricFigure lays out labeled scalars.
type MetricFigure struct {
	FigureBase
	Params MetricParams `json:"params"`
}

// MarkdownParams configure a markdown figure.
type MarkdownParams struct {
	// Field is read from every row when the figure has no inline text.
	Field    string  `json:"field,omitempty"`
	FontSize float64 `json:"fontSize,omitempty" validate:"min=0"`
}

// MarkdownFigure renders formatted text.
type MarkdownFigure struct {
	FigureBase
	Params MarkdownParams `json:"params"`
}

// Placements returns the grid placement of each figure.
func (l Layout) Placements() []grid.Placement {
	out := make([]grid.Placement, len(l.Figures))
	for i, f := range l.Figures {
		out[i] = grid.Placement{Slots: f.Base().Slots}
	}
	return out
}
