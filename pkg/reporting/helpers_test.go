package reporting

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/rcourtman/pulse-reports/internal/charts"
	"github.com/rcourtman/pulse-reports/internal/grid"
	"github.com/rcourtman/pulse-reports/pkg/reporting/template"
	"github.com/stretchr/testify/require"
)

type drawnText struct {
	page  int
	area  grid.Area
	text  string
	style TextStyle
}

type drawnImage struct {
	page int
	name string
	area grid.Area
}

// fakeSurface records drawing calls. Text is 0.2mm wide per point of font
// size per rune; a line is half the font size tall.
type fakeSurface struct {
	setup    PageSetup
	viewport grid.Area
	pages    int
	texts    []drawnText
	images   []drawnImage
	rects    []grid.Area
	lines    int
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{viewport: grid.Area{X: 10, Y: 20, Width: 200, Height: 100}}
}

func (f *fakeSurface) factory(setup PageSetup) Surface {
	f.setup = setup
	return f
}

func (f *fakeSurface) AddPage()            { f.pages++ }
func (f *fakeSurface) Viewport() grid.Area { return f.viewport }

func (f *fakeSurface) MeasureText(text string, style TextStyle) float64 {
	return float64(len([]rune(text))) * style.Size * 0.2
}

func (f *fakeSurface) LineHeight(style TextStyle) float64 { return style.Size * 0.5 }

func (f *fakeSurface) Text(area grid.Area, text string, style TextStyle) {
	f.texts = append(f.texts, drawnText{page: f.pages, area: area, text: text, style: style})
}

func (f *fakeSurface) Image(name string, _ []byte, area grid.Area) error {
	f.images = append(f.images, drawnImage{page: f.pages, name: name, area: area})
	return nil
}

func (f *fakeSurface) Rect(area grid.Area, _ RectStyle)            { f.rects = append(f.rects, area) }
func (f *fakeSurface) Line(_, _, _, _ float64, _ [3]int, _ float64) { f.lines++ }
func (f *fakeSurface) PageCount() int                               { return f.pages }

func (f *fakeSurface) Output(w io.Writer) error {
	_, err := io.WriteString(w, "%PDF-fake")
	return err
}

func (f *fakeSurface) textValues() []string {
	out := make([]string, len(f.texts))
	for i, t := range f.texts {
		out[i] = t.text
	}
	return out
}

// fakeRasterizer records the specs it is asked to draw.
type fakeRasterizer struct {
	specs []*charts.Spec
	err   error
}

func (r *fakeRasterizer) Rasterize(_ context.Context, spec *charts.Spec, _, _ int) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.specs = append(r.specs, spec)
	return []byte("png"), nil
}

func newTestEngine(surface *fakeSurface, rasterizer charts.Rasterizer) *Engine {
	return NewEngine(Options{
		NewSurface: surface.factory,
		Rasterizer: rasterizer,
	})
}

func decodeTemplate(t *testing.T, doc string) *template.Template {
	t.Helper()
	tpl, err := template.Decode(strings.NewReader(doc), template.FormatJSON)
	require.NoError(t, err)
	require.NoError(t, tpl.Validate())
	return tpl
}

func decodeFigure(t *testing.T, doc string) template.Figure {
	t.Helper()
	fig, err := template.DecodeFigure([]byte(doc))
	require.NoError(t, err)
	return fig
}
