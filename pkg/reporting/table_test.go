package reporting

import (
	"bytes"
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rcourtman/pulse-reports/internal/aggregation"
	"github.com/rcourtman/pulse-reports/internal/metrics"
	"github.com/rcourtman/pulse-reports/pkg/reporting/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitTableRows(t *testing.T) {
	tests := []struct {
		name          string
		rows          int
		height        float64
		rowHeight     float64
		total         bool
		wantFit       int
		wantTruncated bool
	}{
		{"all rows fit", 3, 100, 5, false, 3, false},
		{"header takes a row", 10, 50, 5, false, 9, true},
		{"total takes a row", 10, 20, 5, true, 2, true},
		{"exact fit", 2, 20, 5, true, 2, false},
		{"no room for data", 4, 8, 5, false, 0, true},
		{"no room at all", 4, 3, 5, true, 0, true},
		{"no rows", 0, 20, 5, true, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fit, truncated := fitTableRows(tt.rows, tt.height, tt.rowHeight, tt.total)
			assert.Equal(t, tt.wantFit, fit)
			assert.Equal(t, tt.wantTruncated, truncated)
		})
	}
}

func TestTableColumns_FromRows(t *testing.T) {
	rows := []aggregation.Row{
		{"key": "a", "host": "web", "value": 1},
		{"key": "b", "value": 2},
	}
	cols := tableColumns(template.TableParams{}, rows)
	require.Len(t, cols, 3)
	assert.Equal(t, "key", cols[0].Field)
	assert.Equal(t, "host", cols[1].Field)
	assert.Equal(t, "value", cols[2].Field)
	assert.Equal(t, FormatNumber, cols[2].Format)
	assert.Equal(t, "R", cols[2].Align)
}

func TestColumnWidths(t *testing.T) {
	cols := []template.Column{{Field: "a", Width: 2}, {Field: "b"}, {Field: "c"}}
	widths := columnWidths(cols, 100)
	assert.InDeltaSlice(t, []float64{50, 25, 25}, widths, 1e-9)
}

func TestTableTotals(t *testing.T) {
	cols := []template.Column{
		{Field: "key"},
		{Field: "bytes", Format: FormatBytes},
		{Field: "day", Format: FormatDate},
		{Field: "value"},
	}
	rows := []aggregation.Row{
		{"key": "a", "bytes": 1024, "day": 1672531200000, "value": 1},
		{"key": "b", "bytes": 2048, "day": 1672617600000, "value": 2.5},
	}
	totals := tableTotals(cols, rows)
	assert.Equal(t, []any{totalLabel, 3072.0, nil, 3.5}, totals)
}

func TestRenderTable_TruncatesToMaxHeight(t *testing.T) {
	tpl := decodeTemplate(t, `{
  "grid": {"rows": 1, "cols": 1},
  "layouts": [{"figures": [{"type": "table",
    "params": {"maxHeight": 20, "total": true,
      "columns": [{"field": "key", "title": "Host"}, {"field": "value", "format": "number"}]},
    "data": [
      {"key": "host-1", "value": 1}, {"key": "host-2", "value": 2}, {"key": "host-3", "value": 3},
      {"key": "host-4", "value": 4}, {"key": "host-5", "value": 5}, {"key": "host-6", "value": 6},
      {"key": "host-7", "value": 7}, {"key": "host-8", "value": 8}, {"key": "host-9", "value": 9},
      {"key": "host-10", "value": 10}
    ]}]}]
}`)

	surface := newFakeSurface()
	before := testutil.ToFloat64(metrics.TablesTruncatedTotal)
	_, err := newTestEngine(surface, &fakeRasterizer{}).
		RenderDocument(context.Background(), RequestFromTemplate(tpl), &bytes.Buffer{})
	require.NoError(t, err)

	// 8pt rows are 5mm: header, two data rows and the total fill 20mm.
	texts := surface.textValues()
	assert.Equal(t, []string{"Host", "value", "host-1", "1", "host-2", "2", "Total", "55"}, texts)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.TablesTruncatedTotal))

	total := surface.texts[len(surface.texts)-1]
	assert.True(t, total.style.Bold)
	assert.Equal(t, "R", total.style.Align)
	assert.InDelta(t, surface.viewport.Y+15, total.area.Y, 1e-9)
}

func TestRenderTable_SortAndMaxLength(t *testing.T) {
	tpl := decodeTemplate(t, `{
  "grid": {"rows": 1, "cols": 1},
  "layouts": [{"figures": [{"type": "table",
    "params": {"sort": "desc", "maxLength": 2},
    "data": [{"key": "a", "value": 1}, {"key": "b", "value": 3}, {"key": "c", "value": 2}]}]}]
}`)

	surface := newFakeSurface()
	_, err := newTestEngine(surface, &fakeRasterizer{}).
		RenderDocument(context.Background(), RequestFromTemplate(tpl), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, []string{"key", "value", "b", "3", "c", "2"}, surface.textValues())
}

func TestRenderTable_MalformedCellDrawsNothing(t *testing.T) {
	tpl := decodeTemplate(t, `{
  "grid": {"rows": 1, "cols": 1},
  "layouts": [{"figures": [{"type": "table",
    "params": {"columns": [{"field": "key"}, {"field": "value", "format": "bytes"}]},
    "data": [{"key": "a", "value": 1}, {"key": "b", "value": "huge"}]}]}]
}`)

	surface := newFakeSurface()
	_, err := newTestEngine(surface, &fakeRasterizer{}).
		RenderDocument(context.Background(), RequestFromTemplate(tpl), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "layout 0 figure 0 (table)")
	assert.Empty(t, surface.texts)
}

func TestRenderTable_EmptyData(t *testing.T) {
	tpl := decodeTemplate(t, `{
  "grid": {"rows": 1, "cols": 1},
  "layouts": [{"figures": [{"type": "table", "data": []}]}]
}`)

	surface := newFakeSurface()
	_, err := newTestEngine(surface, &fakeRasterizer{}).
		RenderDocument(context.Background(), RequestFromTemplate(tpl), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, []string{"No data"}, surface.textValues())
}

func TestFitText(t *testing.T) {
	s := &session{surface: newFakeSurface()}
	style := TextStyle{Size: 10}

	// Each rune is 2mm wide at 10pt; 2mm of the width is padding.
	assert.Equal(t, "short", s.fitText("short", 12, style))
	assert.Equal(t, "long...", s.fitText("longer text", 16, style))
	assert.Equal(t, "", s.fitText("abc", 2, style))
}
