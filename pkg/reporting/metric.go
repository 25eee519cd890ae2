package reporting

import (
	"math"

	"github.com/rcourtman/pulse-reports/internal/aggregation"
	"github.com/rcourtman/pulse-reports/internal/grid"
	"github.com/rcourtman/pulse-reports/pkg/reporting/template"
)

const (
	metricMaxCellHeight = 30.0 // mm
	metricMinValueSize  = 8.0  // pt
	metricMaxValueSize  = 28.0 // pt
	metricLabelSize     = 8.0  // pt
	mmPerPoint          = 25.4 / 72
	missingValue        = "-"
)

// metricGrid returns the mini-grid shape for n items.
func metricGrid(n, columns int) (rows, cols int) {
	if n <= 0 {
		return 0, 0
	}
	cols = columns
	if cols <= 0 {
		cols = int(math.Ceil(math.Sqrt(float64(n))))
	}
	if cols > n {
		cols = n
	}
	rows = (n + cols - 1) / cols
	return rows, cols
}

// metricCells lays out n cells of at most cellH height, centered in area.
// A short last row is centered horizontally.
func metricCells(area grid.Area, n, columns int) []grid.Area {
	rows, cols := metricGrid(n, columns)
	if n == 0 {
		return nil
	}
	cellW := area.Width / float64(cols)
	cellH := math.Min(area.Height/float64(rows), metricMaxCellHeight)
	top := area.Y + (area.Height-cellH*float64(rows))/2

	cells := make([]grid.Area, 0, n)
	for i := 0; i < n; i++ {
		r, c := i/cols, i%cols
		inRow := cols
		if r == rows-1 && n%cols != 0 {
			inRow = n % cols
		}
		left := area.X + (area.Width-cellW*float64(inRow))/2
		cells = append(cells, grid.Area{
			X:      left + float64(c)*cellW,
			Y:      top + float64(r)*cellH,
			Width:  cellW,
			Height: cellH,
		})
	}
	return cells
}

// metricValue picks the item's raw value from rows; ok is false when no row
// matches.
func metricValue(item template.MetricItem, rows []aggregation.Row) (any, bool) {
	field := item.Field
	if field == "" {
		field = aggregation.ValueField
	}
	if item.Key != "" {
		for _, row := range rows {
			if row.String(aggregation.KeyField) == item.Key {
				v, ok := row[field]
				return v, ok
			}
		}
		return nil, false
	}
	if item.Row >= len(rows) {
		return nil, false
	}
	v, ok := rows[item.Row][field]
	return v, ok
}

func (s *session) renderMetric(f *template.MetricFigure, area grid.Area, rows []aggregation.Row) error {
	items := f.Params.Items

	// Formatting fails on malformed values before anything is drawn.
	values := make([]string, len(items))
	for i, item := range items {
		raw, ok := metricValue(item, rows)
		if !ok || raw == nil {
			values[i] = missingValue
			continue
		}
		text, err := s.formatter.Format(raw, formatSpec{
			Format:         item.Format,
			Layout:         item.Layout,
			FractionDigits: item.FractionDigits,
			Unit:           item.Unit,
		})
		if err != nil {
			return err
		}
		values[i] = text
	}

	labelStyle := TextStyle{Size: metricLabelSize, Color: colorTextMuted, Align: "C"}
	labelHeight := s.surface.LineHeight(labelStyle)

	for i, cell := range metricCells(area, len(items), f.Params.Columns) {
		valueArea := grid.Area{X: cell.X, Y: cell.Y, Width: cell.Width, Height: cell.Height - labelHeight}
		labelArea := grid.Area{X: cell.X, Y: cell.Y + cell.Height - labelHeight, Width: cell.Width, Height: labelHeight}

		style := TextStyle{Size: s.metricValueSize(values[i], valueArea), Bold: true, Color: colorPrimary, Align: "C"}
		s.surface.Text(valueArea, values[i], style)
		s.surface.Text(labelArea, s.fitText(items[i].Label, cell.Width, labelStyle), labelStyle)
	}
	return nil
}

// metricValueSize picks the largest font that fits the value into area.
func (s *session) metricValueSize(text string, area grid.Area) float64 {
	size := area.Height * 0.6 / mmPerPoint
	size = math.Max(metricMinValueSize, math.Min(metricMaxValueSize, size))
	for size > metricMinValueSize {
		if s.surface.MeasureText(text, TextStyle{Size: size, Bold: true}) <= area.Width-2 {
			break
		}
		size--
	}
	return size
}
