package reporting

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rcourtman/pulse-reports/internal/aggregation"
	reperrors "github.com/rcourtman/pulse-reports/internal/errors"
	"github.com/rcourtman/pulse-reports/pkg/reporting/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runText(runs []mdRun) string {
	var b strings.Builder
	for _, r := range runs {
		b.WriteString(r.text)
	}
	return b.String()
}

func TestParseMarkdown_Blocks(t *testing.T) {
	src := "# Summary\n\nTraffic was **high** and *steady*.\n\n" +
		"- first\n- second\n\n1. one\n2. two\n\n> quoted\n\n```\ncode line\n```\n\n---\n"
	blocks := parseMarkdown([]byte(src), 9)

	require.Len(t, blocks, 9)

	heading := blocks[0]
	assert.Equal(t, "Summary", runText(heading.runs))
	assert.True(t, heading.style.Bold)
	assert.Equal(t, 14.0, heading.style.Size)

	para := blocks[1]
	assert.Equal(t, "Traffic was high and steady.", runText(para.runs))
	var bold, italic string
	for _, r := range para.runs {
		if r.style.Bold {
			bold += r.text
		}
		if r.style.Italic {
			italic += r.text
		}
	}
	assert.Equal(t, "high", bold)
	assert.Equal(t, "steady", italic)

	assert.Equal(t, "- ", blocks[2].prefix)
	assert.Equal(t, "first", runText(blocks[2].runs))
	assert.Equal(t, markdownIndent, blocks[2].indent)
	assert.Equal(t, "- ", blocks[3].prefix)
	assert.Equal(t, "1. ", blocks[4].prefix)
	assert.Equal(t, "2. ", blocks[5].prefix)

	quote := blocks[6]
	assert.Equal(t, "quoted", runText(quote.runs))
	assert.True(t, quote.style.Italic)
	assert.Equal(t, colorTextMuted, quote.style.Color)

	code := blocks[7]
	assert.Equal(t, mdCode, code.kind)
	assert.Equal(t, []string{"code line"}, code.lines)
	assert.True(t, code.style.Mono)

	assert.Equal(t, mdRule, blocks[8].kind)
}

func TestParseMarkdown_Inline(t *testing.T) {
	blocks := parseMarkdown([]byte("Run `make` then see [docs](https://example.com) or ~~old~~ https://pulse.dev"), 9)
	require.Len(t, blocks, 1)
	runs := blocks[0].runs

	assert.Equal(t, "Run make then see docs or old https://pulse.dev", runText(runs))
	for _, r := range runs {
		switch r.text {
		case "make":
			assert.True(t, r.style.Mono)
		case "docs", "https://pulse.dev":
			assert.Equal(t, colorPrimary, r.style.Color)
		case "old":
			assert.Equal(t, colorTextMuted, r.style.Color)
		}
	}
}

func TestWrapRuns(t *testing.T) {
	surface := newFakeSurface()
	plain := TextStyle{Size: 10}
	bold := TextStyle{Size: 10, Bold: true}

	// 2mm per rune at 10pt.
	runs := []mdRun{
		{text: "aaa bbb ", style: plain},
		{text: "ccc", style: bold},
		{text: " ddd", style: plain},
	}
	lines := wrapRuns(surface, runs, 16)
	require.Len(t, lines, 2)

	require.Len(t, lines[0], 1)
	assert.Equal(t, "aaa bbb ", lines[0][0].text)

	require.Len(t, lines[1], 2)
	assert.Equal(t, "ccc", lines[1][0].text)
	assert.True(t, lines[1][0].style.Bold)
	assert.Equal(t, " ddd", lines[1][1].text)
	assert.InDelta(t, 6.0, lines[1][1].x, 1e-9)
}

func TestWrapRuns_LongWordGetsOwnLine(t *testing.T) {
	lines := wrapRuns(newFakeSurface(), []mdRun{{text: "a verylongword b", style: TextStyle{Size: 10}}}, 10)
	require.Len(t, lines, 3)
	assert.Equal(t, "a ", lines[0][0].text)
	assert.Equal(t, "verylongword ", lines[1][0].text)
	assert.Equal(t, "b", lines[2][0].text)
}

func TestSplitWords(t *testing.T) {
	assert.Equal(t, []string{"a", " ", "b"}, splitWords("a  b"))
	assert.Equal(t, []string{" ", "a", " "}, splitWords(" a "))
	assert.Equal(t, []string{" "}, splitWords("   "))
	assert.Nil(t, splitWords(""))
}

func TestMarkdownText(t *testing.T) {
	fig := &template.MarkdownFigure{}

	text, err := markdownText(fig, figureData{text: "# Hi"})
	require.NoError(t, err)
	assert.Equal(t, "# Hi", text)

	rows := []aggregation.Row{{"value": "first"}, {"other": 1}, {"value": "second"}}
	text, err = markdownText(fig, figureData{rows: rows})
	require.NoError(t, err)
	assert.Equal(t, "first\n\nsecond", text)

	fig.Params.Field = "note"
	text, err = markdownText(fig, figureData{rows: []aggregation.Row{{"note": "n", "value": "v"}}})
	require.NoError(t, err)
	assert.Equal(t, "n", text)

	_, err = markdownText(fig, figureData{text: map[string]any{"a": 1}})
	require.Error(t, err)
	assert.True(t, reperrors.IsDataFormatError(err))
}

func TestRenderMarkdown_NonTextDataFails(t *testing.T) {
	tpl := decodeTemplate(t, `{
  "grid": {"rows": 1, "cols": 1},
  "layouts": [{"figures": [{"type": "md", "data": {"text": "hello"}}]}]
}`)

	var out bytes.Buffer
	_, err := newTestEngine(newFakeSurface(), &fakeRasterizer{}).
		RenderDocument(context.Background(), RequestFromTemplate(tpl), &out)
	require.Error(t, err)
	assert.True(t, reperrors.IsDataFormatError(err))
	assert.Contains(t, err.Error(), "layout 0 figure 0 (md)")
	assert.Zero(t, out.Len())
}

func TestRenderMarkdown_ClipsAtSlotBottom(t *testing.T) {
	var src strings.Builder
	for i := 0; i < 40; i++ {
		src.WriteString("paragraph\n\n")
	}
	tpl := decodeTemplate(t, `{"grid": {"rows": 1, "cols": 1},
  "layouts": [{"figures": [{"type": "md", "data": "x"}]}]}`)
	tpl.Layouts[0].Figures[0].Base().Data = src.String()

	surface := newFakeSurface()
	_, err := newTestEngine(surface, &fakeRasterizer{}).
		RenderDocument(context.Background(), RequestFromTemplate(tpl), &bytes.Buffer{})
	require.NoError(t, err)

	require.NotEmpty(t, surface.texts)
	assert.Less(t, len(surface.texts), 40)
	for _, txt := range surface.texts {
		assert.LessOrEqual(t, txt.area.Bottom(), surface.viewport.Bottom()+1e-9)
	}
}
