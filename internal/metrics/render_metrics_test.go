package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordDocument(t *testing.T) {
	before := testutil.ToFloat64(DocumentsRenderedTotal.WithLabelValues("success"))
	RecordDocument(true, 0.2, 3)
	assert.Equal(t, before+1, testutil.ToFloat64(DocumentsRenderedTotal.WithLabelValues("success")))

	beforeErr := testutil.ToFloat64(DocumentsRenderedTotal.WithLabelValues("error"))
	RecordDocument(false, 0.1, 0)
	assert.Equal(t, beforeErr+1, testutil.ToFloat64(DocumentsRenderedTotal.WithLabelValues("error")))
}

func TestRecordFigure(t *testing.T) {
	before := testutil.ToFloat64(FiguresRenderedTotal.WithLabelValues("bar"))
	RecordFigure("bar")
	assert.Equal(t, before+1, testutil.ToFloat64(FiguresRenderedTotal.WithLabelValues("bar")))
}

func TestRecordFigureErrorDefaultsCategory(t *testing.T) {
	before := testutil.ToFloat64(FigureErrorsTotal.WithLabelValues("md", "unknown"))
	RecordFigureError("md", "")
	assert.Equal(t, before+1, testutil.ToFloat64(FigureErrorsTotal.WithLabelValues("md", "unknown")))
}

func TestWarningCounters(t *testing.T) {
	truncated := testutil.ToFloat64(TablesTruncatedTotal)
	exhausted := testutil.ToFloat64(PaletteExhaustedTotal)
	clipped := testutil.ToFloat64(FiguresClippedTotal)

	RecordTableTruncated()
	RecordPaletteExhausted()
	RecordFigureClipped()

	assert.Equal(t, truncated+1, testutil.ToFloat64(TablesTruncatedTotal))
	assert.Equal(t, exhausted+1, testutil.ToFloat64(PaletteExhaustedTotal))
	assert.Equal(t, clipped+1, testutil.ToFloat64(FiguresClippedTotal))
}
