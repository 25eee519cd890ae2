package reporting

import (
	"bytes"
	"context"
	"testing"

	"github.com/rcourtman/pulse-reports/internal/aggregation"
	"github.com/rcourtman/pulse-reports/internal/grid"
	"github.com/rcourtman/pulse-reports/pkg/reporting/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricGrid(t *testing.T) {
	tests := []struct {
		n, columns int
		rows, cols int
	}{
		{0, 0, 0, 0},
		{1, 0, 1, 1},
		{2, 0, 1, 2},
		{3, 0, 2, 2},
		{4, 0, 2, 2},
		{5, 0, 2, 3},
		{9, 0, 3, 3},
		{5, 5, 1, 5},
		{2, 4, 1, 2},
		{7, 2, 4, 2},
	}
	for _, tt := range tests {
		rows, cols := metricGrid(tt.n, tt.columns)
		assert.Equal(t, tt.rows, rows, "rows for n=%d columns=%d", tt.n, tt.columns)
		assert.Equal(t, tt.cols, cols, "cols for n=%d columns=%d", tt.n, tt.columns)
	}
}

func TestMetricCells(t *testing.T) {
	area := grid.Area{X: 0, Y: 0, Width: 90, Height: 100}
	cells := metricCells(area, 5, 0)
	require.Len(t, cells, 5)

	// 2x3 grid, cells capped at 30mm and centered vertically.
	assert.InDelta(t, 30.0, cells[0].Width, 1e-9)
	assert.InDelta(t, 30.0, cells[0].Height, 1e-9)
	assert.InDelta(t, 20.0, cells[0].Y, 1e-9)
	assert.InDelta(t, 50.0, cells[3].Y, 1e-9)

	// The short last row is centered horizontally.
	assert.InDelta(t, 15.0, cells[3].X, 1e-9)
	assert.InDelta(t, 45.0, cells[4].X, 1e-9)

	assert.Nil(t, metricCells(area, 0, 0))
}

func TestMetricValue(t *testing.T) {
	rows := []aggregation.Row{
		{"key": "cpu", "value": 0.5, "max": 0.9},
		{"key": "mem", "value": 0.7},
	}

	v, ok := metricValue(template.MetricItem{Label: "first"}, rows)
	assert.True(t, ok)
	assert.Equal(t, 0.5, v)

	v, ok = metricValue(template.MetricItem{Label: "second", Row: 1}, rows)
	assert.True(t, ok)
	assert.Equal(t, 0.7, v)

	v, ok = metricValue(template.MetricItem{Label: "by key", Key: "cpu", Field: "max"}, rows)
	assert.True(t, ok)
	assert.Equal(t, 0.9, v)

	_, ok = metricValue(template.MetricItem{Label: "unknown", Key: "disk"}, rows)
	assert.False(t, ok)

	_, ok = metricValue(template.MetricItem{Label: "past end", Row: 5}, rows)
	assert.False(t, ok)
}

func TestRenderMetric(t *testing.T) {
	tpl := decodeTemplate(t, `{
  "grid": {"rows": 1, "cols": 1},
  "layouts": [{"figures": [{"type": "metric",
    "params": {"items": [
      {"label": "Sessions", "key": "sessions", "format": "number", "fractionDigits": 0},
      {"label": "Traffic", "key": "traffic", "format": "bytes"},
      {"label": "Errors", "key": "errors"}
    ]},
    "data": [{"key": "sessions", "value": 12345.6}, {"key": "traffic", "value": 1048576}]}]}]
}`)

	surface := newFakeSurface()
	_, err := newTestEngine(surface, &fakeRasterizer{}).
		RenderDocument(context.Background(), RequestFromTemplate(tpl), &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, []string{"12,346", "Sessions", "1.0 MiB", "Traffic", "-", "Errors"}, surface.textValues())
	value := surface.texts[0]
	assert.True(t, value.style.Bold)
	assert.Equal(t, "C", value.style.Align)
	assert.LessOrEqual(t, value.style.Size, metricMaxValueSize)
	assert.GreaterOrEqual(t, value.style.Size, metricMinValueSize)
}

func TestRenderMetric_MalformedValue(t *testing.T) {
	tpl := decodeTemplate(t, `{
  "grid": {"rows": 1, "cols": 1},
  "layouts": [{"figures": [{"type": "metric", "title": "KPIs",
    "params": {"items": [{"label": "Uptime", "format": "number"}]},
    "data": {"value": "high"}}]}]
}`)

	surface := newFakeSurface()
	_, err := newTestEngine(surface, &fakeRasterizer{}).
		RenderDocument(context.Background(), RequestFromTemplate(tpl), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `layout 0 figure 0 (metric "KPIs")`)
	// Only the title was drawn.
	assert.Equal(t, []string{"KPIs"}, surface.textValues())
}

func TestMetricValueSizeShrinksLongValues(t *testing.T) {
	s := &session{surface: newFakeSurface()}
	area := grid.Area{Width: 40, Height: 20}

	short := s.metricValueSize("7", area)
	long := s.metricValueSize("123,456,789", area)
	assert.Equal(t, metricMaxValueSize, short)
	assert.Less(t, long, short)
	assert.GreaterOrEqual(t, long, metricMinValueSize)
}
