package reporting

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/rcourtman/pulse-reports/internal/aggregation"
	"github.com/rcourtman/pulse-reports/pkg/reporting/template"
)

// ExportCSV writes the flattened rows behind every table, chart and metric
// figure of req, one section per figure. Markdown figures have no rows and
// are skipped.
func (e *Engine) ExportCSV(ctx context.Context, req RenderRequest, w io.Writer) error {
	source := req.Source
	if source == nil {
		source = e.opts.Source
	}
	data, err := loadLayouts(ctx, source, req.Layouts)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)

	if req.Title != "" {
		if err := cw.Write([]string{"# Title:", req.Title}); err != nil {
			return fmt.Errorf("write CSV header: %w", err)
		}
	}
	for li, layout := range req.Layouts {
		for fi, fig := range layout.Figures {
			if fig.Kind() == template.KindMarkdown {
				continue
			}
			if err := writeFigureCSV(cw, li, fi, fig, data[li][fi].rows); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("CSV write error: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write CSV: %w", err)
	}
	return nil
}

func writeFigureCSV(w *csv.Writer, li, fi int, fig template.Figure, rows []aggregation.Row) error {
	base := fig.Base()
	header := []string{fmt.Sprintf("# Layout %d figure %d", li, fi), string(base.Type)}
	if base.Title != "" {
		header = append(header, base.Title)
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write section header: %w", err)
	}

	fields := aggregation.Fields(rows)
	if err := w.Write(fields); err != nil {
		return fmt.Errorf("write column row: %w", err)
	}
	for ri, row := range rows {
		record := make([]string, len(fields))
		for i, f := range fields {
			record[i] = row.String(f)
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", ri, err)
		}
	}

	// Empty row as separator
	return w.Write([]string{""})
}
