package reporting

import (
	"math"
	"strings"

	"github.com/rcourtman/pulse-reports/internal/aggregation"
	"github.com/rcourtman/pulse-reports/internal/grid"
	"github.com/rcourtman/pulse-reports/internal/metrics"
	"github.com/rcourtman/pulse-reports/pkg/reporting/template"
)

const (
	defaultTableFontSize = 8.0
	tableCellPadding     = 1.0
	totalLabel           = "Total"
)

// fitTableRows returns how many of n data rows fit in height, keeping one row
// for the header and, with total set, one for the totals footer.
func fitTableRows(n int, height, rowHeight float64, total bool) (fit int, truncated bool) {
	if rowHeight <= 0 {
		return n, false
	}
	capacity := int(math.Floor(height/rowHeight+1e-9)) - 1
	if total {
		capacity--
	}
	if capacity < 0 {
		capacity = 0
	}
	if n <= capacity {
		return n, false
	}
	return capacity, true
}

// tableColumns returns the declared columns or one text column per row field.
func tableColumns(params template.TableParams, rows []aggregation.Row) []template.Column {
	if len(params.Columns) > 0 {
		return params.Columns
	}
	fields := aggregation.Fields(rows)
	cols := make([]template.Column, len(fields))
	for i, f := range fields {
		cols[i] = template.Column{Field: f}
		if f == aggregation.ValueField {
			cols[i].Format = FormatNumber
			cols[i].Align = "R"
		}
	}
	return cols
}

// columnWidths spreads width over the columns, honouring declared widths as
// relative weights.
func columnWidths(cols []template.Column, width float64) []float64 {
	var sum float64
	for _, c := range cols {
		if c.Width > 0 {
			sum += c.Width
		} else {
			sum++
		}
	}
	widths := make([]float64, len(cols))
	for i, c := range cols {
		weight := c.Width
		if weight <= 0 {
			weight = 1
		}
		widths[i] = width * weight / sum
	}
	return widths
}

// tableTotals sums the numeric columns over every row. Non numeric columns
// stay blank; the first column carries the label.
func tableTotals(cols []template.Column, rows []aggregation.Row) []any {
	out := make([]any, len(cols))
	for i, c := range cols {
		if c.Format == FormatDate || c.Format == FormatText {
			continue
		}
		var (
			sum     float64
			numeric bool
		)
		for _, row := range rows {
			if v, ok := row.Float(c.Field); ok {
				sum += v
				numeric = true
			}
		}
		if numeric && (c.Format == FormatNumber || c.Format == FormatBytes || c.Field == aggregation.ValueField) {
			out[i] = sum
		}
	}
	if len(out) > 0 && out[0] == nil {
		out[0] = totalLabel
	}
	return out
}

func (s *session) renderTable(f *template.TableFigure, area grid.Area, rows []aggregation.Row) error {
	p := f.Params
	if p.Sort != "" {
		field := p.SortField
		if field == "" {
			field = aggregation.ValueField
		}
		rows = aggregation.SortRows(rows, p.Sort, field)
	}
	if p.MaxLength > 0 && len(rows) > p.MaxLength {
		rows = rows[:p.MaxLength]
	}

	cols := tableColumns(p, rows)
	if len(cols) == 0 {
		s.emptyPlaceholder(area)
		return nil
	}

	fontSize := p.FontSize
	if fontSize <= 0 {
		fontSize = defaultTableFontSize
	}
	bodyStyle := TextStyle{Size: fontSize, Color: colorTextDark}
	headerStyle := TextStyle{Size: fontSize, Bold: true, Color: colorWhite, Align: "C"}
	rowHeight := s.surface.LineHeight(bodyStyle) + tableCellPadding

	height := area.Height
	if p.MaxHeight > 0 && p.MaxHeight < height {
		height = p.MaxHeight
	}
	fit, truncated := fitTableRows(len(rows), height, rowHeight, p.Total)
	if truncated {
		metrics.RecordTableTruncated()
		s.logger.Warn().
			Str("title", f.Title).
			Int("rows", len(rows)).
			Int("shown", fit).
			Float64("height", height).
			Msg("Table rows do not fit the slot; truncating")
	}

	// Formatting fails on malformed values before anything is drawn.
	cells := make([][]string, 0, fit+1)
	for _, row := range rows[:fit] {
		line := make([]string, len(cols))
		for ci, c := range cols {
			text, err := s.formatter.Format(row[c.Field], formatSpec{Format: c.Format})
			if err != nil {
				return err
			}
			line[ci] = text
		}
		cells = append(cells, line)
	}
	if p.Total {
		totals := tableTotals(cols, rows)
		line := make([]string, len(cols))
		for ci, c := range cols {
			if label, ok := totals[ci].(string); ok {
				line[ci] = label
				continue
			}
			text, err := s.formatter.Format(totals[ci], formatSpec{Format: c.Format})
			if err != nil {
				return err
			}
			line[ci] = text
		}
		cells = append(cells, line)
	}

	widths := columnWidths(cols, area.Width)
	y := area.Y

	x := area.X
	for ci, c := range cols {
		cell := grid.Area{X: x, Y: y, Width: widths[ci], Height: rowHeight}
		s.surface.Rect(cell, RectStyle{Fill: &colorTableHeader})
		title := c.Title
		if title == "" {
			title = c.Field
		}
		s.surface.Text(cell, s.fitText(title, widths[ci], headerStyle), headerStyle)
		x += widths[ci]
	}
	y += rowHeight

	for ri, line := range cells {
		isTotal := p.Total && ri == len(cells)-1
		style := bodyStyle
		switch {
		case isTotal:
			style.Bold = true
			s.surface.Line(area.X, y, area.X+area.Width, y, colorTextDark, 0.3)
		case ri%2 == 1:
			s.surface.Rect(grid.Area{X: area.X, Y: y, Width: area.Width, Height: rowHeight}, RectStyle{Fill: &colorTableAlt})
		}

		x = area.X
		for ci, c := range cols {
			cellStyle := style
			cellStyle.Align = c.Align
			if cellStyle.Align == "" && (c.Format == FormatNumber || c.Format == FormatBytes) {
				cellStyle.Align = "R"
			}
			cell := grid.Area{X: x, Y: y, Width: widths[ci], Height: rowHeight}
			s.surface.Text(cell, s.fitText(line[ci], widths[ci], cellStyle), cellStyle)
			x += widths[ci]
		}
		y += rowHeight
	}
	return nil
}

// fitText shortens text with an ellipsis until it fits width.
func (s *session) fitText(text string, width float64, style TextStyle) string {
	const ellipsis = "..."
	limit := width - 2*tableCellPadding
	if text == "" || s.surface.MeasureText(text, style) <= limit {
		return text
	}
	runes := []rune(text)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := strings.TrimSpace(string(runes)) + ellipsis
		if s.surface.MeasureText(candidate, style) <= limit {
			return candidate
		}
	}
	return ""
}

func (s *session) emptyPlaceholder(area grid.Area) {
	s.surface.Rect(area, RectStyle{Fill: &colorBackground})
	s.surface.Text(area, "No data", TextStyle{Size: 9, Italic: true, Color: colorTextMuted, Align: "C"})
}
