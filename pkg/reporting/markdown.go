package reporting

import (
	"fmt"
	"math"
	"strings"

	"github.com/rcourtman/pulse-reports/internal/aggregation"
	reperrors "github.com/rcourtman/pulse-reports/internal/errors"
	"github.com/rcourtman/pulse-reports/internal/grid"
	"github.com/rcourtman/pulse-reports/pkg/reporting/template"
	"github.com/spf13/cast"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

const (
	defaultMarkdownFontSize = 9.0
	markdownIndent          = 4.0 // mm per list or quote level
	markdownBlockGap        = 1.5 // mm
)

var markdownParser = goldmark.New(
	goldmark.WithExtensions(extension.Strikethrough, extension.Linkify),
)

type mdBlockKind int

const (
	mdText mdBlockKind = iota
	mdCode
	mdRule
)

// mdRun is a piece of inline text in one style.
type mdRun struct {
	text  string
	style TextStyle
}

// mdBlock is one block-level element: a heading, paragraph, list item, code
// block or horizontal rule.
type mdBlock struct {
	kind   mdBlockKind
	indent float64
	prefix string
	runs   []mdRun
	lines  []string
	style  TextStyle
}

// markdownText returns the figure's markdown: its inline text, or the
// configured field of every row joined as paragraphs.
func markdownText(f *template.MarkdownFigure, data figureData) (string, error) {
	if data.text != nil {
		s, err := cast.ToStringE(data.text)
		if err != nil {
			return "", reperrors.WrapDataFormatError("render_markdown",
				fmt.Errorf("%w: markdown data must be text, got %T", reperrors.ErrDataFormat, data.text))
		}
		return s, nil
	}

	field := f.Params.Field
	if field == "" {
		field = aggregation.ValueField
	}
	parts := make([]string, 0, len(data.rows))
	for i, row := range data.rows {
		v, ok := row[field]
		if !ok || v == nil {
			continue
		}
		s, err := cast.ToStringE(v)
		if err != nil {
			return "", reperrors.WrapDataFormatError("render_markdown",
				fmt.Errorf("%w: row %d field %q is not text (%T)", reperrors.ErrDataFormat, i, field, v))
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n\n"), nil
}

// parseMarkdown converts markdown into styled blocks.
func parseMarkdown(source []byte, size float64) []mdBlock {
	doc := markdownParser.Parser().Parse(text.NewReader(source))
	c := &mdCollector{source: source, base: TextStyle{Size: size, Color: colorTextDark}}
	c.block(doc, 0, false)
	return c.blocks
}

type mdCollector struct {
	source  []byte
	base    TextStyle
	blocks  []mdBlock
	pending string
}

func (c *mdCollector) block(n ast.Node, depth int, quote bool) {
	indent := float64(depth) * markdownIndent
	base := c.base
	if quote {
		base.Italic = true
		base.Color = colorTextMuted
	}

	switch node := n.(type) {
	case *ast.Heading:
		style := base
		style.Bold = true
		style.Size = c.base.Size + headingBoost(node.Level)
		c.blocks = append(c.blocks, mdBlock{kind: mdText, indent: indent, runs: c.inline(node, style), style: style})
	case *ast.Paragraph, *ast.TextBlock:
		c.blocks = append(c.blocks, mdBlock{kind: mdText, indent: indent, prefix: c.takePrefix(), runs: c.inline(node, base), style: base})
	case *ast.List:
		i := 0
		for item := node.FirstChild(); item != nil; item = item.NextSibling() {
			if node.IsOrdered() {
				c.pending = fmt.Sprintf("%d. ", node.Start+i)
			} else {
				c.pending = "- "
			}
			for child := item.FirstChild(); child != nil; child = child.NextSibling() {
				c.block(child, depth+1, quote)
			}
			c.pending = ""
			i++
		}
	case *ast.Blockquote:
		for child := node.FirstChild(); child != nil; child = child.NextSibling() {
			c.block(child, depth+1, true)
		}
	case *ast.FencedCodeBlock:
		c.code(node.Lines(), indent)
	case *ast.CodeBlock:
		c.code(node.Lines(), indent)
	case *ast.ThematicBreak:
		c.blocks = append(c.blocks, mdBlock{kind: mdRule, indent: indent})
	case *ast.HTMLBlock:
	default:
		for child := n.FirstChild(); child != nil; child = child.NextSibling() {
			c.block(child, depth, quote)
		}
	}
}

func (c *mdCollector) takePrefix() string {
	p := c.pending
	c.pending = ""
	return p
}

func (c *mdCollector) code(lines *text.Segments, indent float64) {
	style := c.base
	style.Mono = true
	style.Size = c.base.Size - 1
	b := mdBlock{kind: mdCode, indent: indent, style: style}
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		b.lines = append(b.lines, strings.TrimRight(string(line.Value(c.source)), "\r\n"))
	}
	c.blocks = append(c.blocks, b)
}

func (c *mdCollector) inline(n ast.Node, style TextStyle) []mdRun {
	var runs []mdRun
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		switch node := child.(type) {
		case *ast.Text:
			runs = append(runs, mdRun{text: string(node.Segment.Value(c.source)), style: style})
			if node.SoftLineBreak() || node.HardLineBreak() {
				runs = append(runs, mdRun{text: " ", style: style})
			}
		case *ast.String:
			runs = append(runs, mdRun{text: string(node.Value), style: style})
		case *ast.Emphasis:
			s := style
			if node.Level >= 2 {
				s.Bold = true
			} else {
				s.Italic = true
			}
			runs = append(runs, c.inline(node, s)...)
		case *ast.CodeSpan:
			s := style
			s.Mono = true
			var b strings.Builder
			for t := node.FirstChild(); t != nil; t = t.NextSibling() {
				if seg, ok := t.(*ast.Text); ok {
					b.Write(seg.Segment.Value(c.source))
				}
			}
			runs = append(runs, mdRun{text: b.String(), style: s})
		case *ast.Link:
			s := style
			s.Color = colorPrimary
			runs = append(runs, c.inline(node, s)...)
		case *ast.AutoLink:
			s := style
			s.Color = colorPrimary
			runs = append(runs, mdRun{text: string(node.Label(c.source)), style: s})
		case *extast.Strikethrough:
			s := style
			s.Color = colorTextMuted
			runs = append(runs, c.inline(node, s)...)
		case *ast.RawHTML:
		default:
			runs = append(runs, c.inline(node, style)...)
		}
	}
	return runs
}

func headingBoost(level int) float64 {
	switch level {
	case 1:
		return 5
	case 2:
		return 3
	case 3:
		return 2
	default:
		return 1
	}
}

// mdSegment is a measured piece of one output line.
type mdSegment struct {
	x     float64
	width float64
	text  string
	style TextStyle
}

// wrapRuns breaks runs into lines no wider than width. Words never split;
// a word wider than the line gets a line of its own.
func wrapRuns(surface Surface, runs []mdRun, width float64) [][]mdSegment {
	var (
		lines [][]mdSegment
		line  []mdSegment
		x     float64
	)
	flush := func() {
		if len(line) > 0 {
			lines = append(lines, line)
		}
		line, x = nil, 0
	}
	for _, run := range runs {
		for _, word := range splitWords(run.text) {
			if word == " " && x == 0 {
				continue
			}
			w := surface.MeasureText(word, run.style)
			if x > 0 && x+w > width && word != " " {
				flush()
			}
			if n := len(line); n > 0 && line[n-1].style == run.style {
				line[n-1].text += word
				line[n-1].width += w
			} else {
				line = append(line, mdSegment{x: x, width: w, text: word, style: run.style})
			}
			x += w
		}
	}
	flush()
	return lines
}

// splitWords splits s into words and single separating spaces.
func splitWords(s string) []string {
	var out []string
	for i, w := range strings.Fields(s) {
		if i > 0 || strings.HasPrefix(s, " ") {
			out = append(out, " ")
		}
		out = append(out, w)
	}
	if strings.HasSuffix(s, " ") && len(out) > 0 {
		out = append(out, " ")
	}
	if len(out) == 0 && s != "" {
		out = append(out, " ")
	}
	return out
}

func (s *session) renderMarkdown(f *template.MarkdownFigure, area grid.Area, data figureData) error {
	src, err := markdownText(f, data)
	if err != nil {
		return err
	}
	if strings.TrimSpace(src) == "" {
		return nil
	}

	size := f.Params.FontSize
	if size <= 0 {
		size = defaultMarkdownFontSize
	}

	y := area.Y
	bottom := area.Bottom()
	for bi, block := range parseMarkdown([]byte(src), size) {
		left := area.X + block.indent
		width := area.Width - block.indent
		lineHeight := s.surface.LineHeight(block.style)
		if bi > 0 {
			y += markdownBlockGap
		}

		switch block.kind {
		case mdRule:
			if y+markdownBlockGap > bottom {
				return s.markdownOverflow(f, bi)
			}
			s.surface.Line(left, y+markdownBlockGap/2, area.Right(), y+markdownBlockGap/2, colorGridLine, 0.3)
			y += markdownBlockGap
		case mdCode:
			height := lineHeight * float64(len(block.lines))
			if y+height > bottom {
				height = math.Floor((bottom-y)/lineHeight) * lineHeight
			}
			if height > 0 {
				s.surface.Rect(grid.Area{X: left, Y: y, Width: width, Height: height}, RectStyle{Fill: &colorBackground})
			}
			for _, line := range block.lines {
				if y+lineHeight > bottom {
					return s.markdownOverflow(f, bi)
				}
				s.surface.Text(grid.Area{X: left + 1, Y: y, Width: width - 1, Height: lineHeight}, line, block.style)
				y += lineHeight
			}
		default:
			textLeft := left
			if block.prefix != "" {
				pw := s.surface.MeasureText(block.prefix, block.style)
				s.surface.Text(grid.Area{X: left, Y: y, Width: pw + 1, Height: lineHeight}, block.prefix, block.style)
				textLeft += pw
			}
			for _, line := range wrapRuns(s.surface, block.runs, area.Right()-textLeft) {
				if y+lineHeight > bottom {
					return s.markdownOverflow(f, bi)
				}
				for _, seg := range line {
					s.surface.Text(grid.Area{X: textLeft + seg.x, Y: y, Width: seg.width + 0.5, Height: lineHeight}, seg.text, seg.style)
				}
				y += lineHeight
			}
		}
	}
	return nil
}

// markdownOverflow stops drawing text that runs past the slot.
func (s *session) markdownOverflow(f *template.MarkdownFigure, block int) error {
	s.logger.Debug().
		Str("title", f.Title).
		Int("block", block).
		Msg("Markdown does not fit the slot; remaining text clipped")
	return nil
}
