package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Document lifecycle metrics
	DocumentsRenderedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_reports_documents_rendered_total",
			Help: "Total number of documents rendered by outcome",
		},
		[]string{"outcome"}, // success, error
	)

	DocumentRenderSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pulse_reports_document_render_seconds",
			Help:    "Time spent rendering a document",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	DocumentPages = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pulse_reports_document_pages",
			Help:    "Number of pages per rendered document",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
		},
	)

	// Figure metrics
	FiguresRenderedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_reports_figures_rendered_total",
			Help: "Total number of figures rendered by type",
		},
		[]string{"type"},
	)

	FigureErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_reports_figure_errors_total",
			Help: "Total number of figure failures by type and error category",
		},
		[]string{"type", "category"},
	)

	FiguresClippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_reports_figures_clipped_total",
			Help: "Figures dropped because the grid had no slot left",
		},
	)

	// Degraded output warnings
	TablesTruncatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_reports_tables_truncated_total",
			Help: "Tables whose rows were cut to fit their slot",
		},
	)

	PaletteExhaustedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_reports_palette_exhausted_total",
			Help: "Labels that received the fallback color because the palette ran out",
		},
	)
)

// RecordDocument records a finished render attempt
func RecordDocument(success bool, seconds float64, pages int) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	DocumentsRenderedTotal.WithLabelValues(outcome).Inc()
	DocumentRenderSeconds.Observe(seconds)
	if success {
		DocumentPages.Observe(float64(pages))
	}
}

// RecordFigure records a rendered figure
func RecordFigure(figureType string) {
	FiguresRenderedTotal.WithLabelValues(figureType).Inc()
}

// RecordFigureError records a figure failure
func RecordFigureError(figureType, category string) {
	if category == "" {
		category = "unknown"
	}
	FigureErrorsTotal.WithLabelValues(figureType, category).Inc()
}

// RecordFigureClipped records a figure left out for lack of a slot
func RecordFigureClipped() {
	FiguresClippedTotal.Inc()
}

// RecordTableTruncated records a truncated table
func RecordTableTruncated() {
	TablesTruncatedTotal.Inc()
}

// RecordPaletteExhausted records a label that fell back to the empty color
func RecordPaletteExhausted() {
	PaletteExhaustedTotal.Inc()
}
