package reporting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rcourtman/pulse-reports/internal/aggregation"
	reperrors "github.com/rcourtman/pulse-reports/internal/errors"
	"github.com/rcourtman/pulse-reports/pkg/reporting/template"
	"github.com/spf13/cast"
	"golang.org/x/sync/errgroup"
)

// ResponseSource returns the pre-fetched aggregation response a layout names.
type ResponseSource interface {
	Response(ctx context.Context, name string) ([]byte, error)
}

// MapSource serves responses from memory.
type MapSource map[string][]byte

// Response implements ResponseSource.
func (m MapSource) Response(_ context.Context, name string) ([]byte, error) {
	data, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("response %q not found", name)
	}
	return data, nil
}

// DirSource reads <Dir>/<name>.json files.
type DirSource struct {
	Dir string
}

// Response implements ResponseSource.
func (d DirSource) Response(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("invalid response name %q", name)
	}
	path := filepath.Join(d.Dir, name)
	if filepath.Ext(path) == "" {
		path += ".json"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read response %q: %w", name, err)
	}
	return data, nil
}

const maxParallelLoads = 4

// figureData is the input of one figure: flattened rows, or raw text for
// markdown figures.
type figureData struct {
	rows []aggregation.Row
	text any
}

// loadLayouts fetches every named layout response in parallel and flattens it
// once per figure. Figures with inline data keep it.
func loadLayouts(ctx context.Context, source ResponseSource, layouts []template.Layout) ([][]figureData, error) {
	responses := make([][]byte, len(layouts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLoads)
	for i, layout := range layouts {
		if layout.Data == "" || !needsResponse(layout) {
			continue
		}
		if source == nil {
			return nil, reperrors.WrapConfigurationError("load_layout",
				fmt.Errorf("layout %d names data %q but no response source is configured", i, layout.Data))
		}
		g.Go(func() error {
			data, err := source.Response(gctx, layout.Data)
			if err != nil {
				return reperrors.NewReportError(reperrors.ErrorTypeData, "load_layout", err).WithLayout(i)
			}
			responses[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([][]figureData, len(layouts))
	for li, layout := range layouts {
		out[li] = make([]figureData, len(layout.Figures))
		for fi, fig := range layout.Figures {
			data, err := resolveFigureData(fig, responses[li])
			if err != nil {
				base := fig.Base()
				return nil, reperrors.Annotate(err, li, fi, string(base.Type), base.Title)
			}
			out[li][fi] = data
		}
	}
	return out, nil
}

func needsResponse(layout template.Layout) bool {
	for _, fig := range layout.Figures {
		if fig.Base().Data == nil {
			return true
		}
	}
	return false
}

func resolveFigureData(fig template.Figure, response []byte) (figureData, error) {
	base := fig.Base()
	if base.Data != nil {
		if fig.Kind() == template.KindMarkdown {
			return figureData{text: base.Data}, nil
		}
		rows, err := inlineRows(base.Data)
		if err != nil {
			return figureData{}, err
		}
		return figureData{rows: rows}, nil
	}
	if response == nil {
		return figureData{}, nil
	}
	rows, err := aggregation.Flatten(response, base.Aggregation)
	if err != nil {
		return figureData{}, err
	}
	return figureData{rows: rows}, nil
}

// inlineRows reads template data given as a list of objects or a single
// object. Scalars become a single value row. Rows never alias the template.
func inlineRows(data any) ([]aggregation.Row, error) {
	switch v := data.(type) {
	case []any:
		rows := make([]aggregation.Row, 0, len(v))
		for i, item := range v {
			m, err := cast.ToStringMapE(item)
			if err != nil {
				return nil, reperrors.WrapDataFormatError("inline_data",
					fmt.Errorf("%w: item %d is not an object", reperrors.ErrDataFormat, i))
			}
			rows = append(rows, aggregation.Row(m).Clone())
		}
		return rows, nil
	case map[string]any:
		return []aggregation.Row{aggregation.Row(v).Clone()}, nil
	case string, float64, int, int64, bool:
		return []aggregation.Row{{aggregation.ValueField: v}}, nil
	default:
		return nil, reperrors.WrapDataFormatError("inline_data",
			fmt.Errorf("%w: unsupported inline data %T", reperrors.ErrDataFormat, data))
	}
}
