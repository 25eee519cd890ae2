package reporting

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/rcourtman/pulse-reports/internal/grid"
)

// Color scheme - professional dark blue theme
var (
	colorPrimary     = [3]int{30, 58, 95}    // Dark navy
	colorTextDark    = [3]int{44, 62, 80}    // Dark text
	colorTextMuted   = [3]int{127, 140, 141} // Muted text
	colorBackground  = [3]int{248, 249, 250} // Light gray bg
	colorTableHeader = [3]int{30, 58, 95}    // Navy header
	colorTableAlt    = [3]int{241, 245, 249} // Alternating row
	colorGridLine    = [3]int{220, 220, 220} // Rules and outlines
	colorDebug       = [3]int{231, 76, 60}   // Red
	colorWhite       = [3]int{255, 255, 255}
)

// TextStyle selects the font and placement of a text cell.
type TextStyle struct {
	Size   float64 // points
	Bold   bool
	Italic bool
	Mono   bool
	Align  string // "L", "C" or "R"
	Color  [3]int
}

// RectStyle selects how a rectangle is painted.
type RectStyle struct {
	Fill      *[3]int
	Stroke    *[3]int
	LineWidth float64
	Dashed    bool
}

// Surface is the page-drawing abstraction figures render onto. Coordinates
// are page units measured from the top-left corner.
type Surface interface {
	AddPage()
	// Viewport is the content area of the current page, inside margins,
	// header and footer.
	Viewport() grid.Area
	MeasureText(text string, style TextStyle) float64
	LineHeight(style TextStyle) float64
	// Text draws one line of text vertically centered in area, clipped to it.
	Text(area grid.Area, text string, style TextStyle)
	Image(name string, png []byte, area grid.Area) error
	Rect(area grid.Area, style RectStyle)
	Line(x1, y1, x2, y2 float64, color [3]int, width float64)
	PageCount() int
	Output(w io.Writer) error
}

// PageSetup configures the fpdf surface.
type PageSetup struct {
	Size        string // A3, A4, A5, Letter or Legal
	Orientation string // P or L
	Margin      float64
	HeaderSize  float64
	FooterSize  float64
	Title       string
	// PageNumbers prints "Page N of M" in the footer.
	PageNumbers bool
}

// DefaultPageSetup is a landscape A4 page with a header and page numbers.
func DefaultPageSetup() PageSetup {
	return PageSetup{
		Size:        "A4",
		Orientation: "L",
		Margin:      10,
		HeaderSize:  12,
		FooterSize:  10,
		PageNumbers: true,
	}
}

type pdfSurface struct {
	pdf   *fpdf.Fpdf
	setup PageSetup
	tr    func(string) string
}

// NewPDFSurface creates an fpdf-backed surface measured in millimetres.
func NewPDFSurface(setup PageSetup) Surface {
	pdf := fpdf.New(setup.Orientation, "mm", setup.Size, "")
	pdf.SetMargins(setup.Margin, setup.Margin, setup.Margin)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCellMargin(1)
	pdf.SetCreator("Pulse Reports", true)
	pdf.SetCreationDate(time.Now())
	if setup.Title != "" {
		pdf.SetTitle(setup.Title, true)
	}
	return &pdfSurface{
		pdf:   pdf,
		setup: setup,
		tr:    pdf.UnicodeTranslatorFromDescriptor(""),
	}
}

func (s *pdfSurface) AddPage() {
	s.pdf.AddPage()
	s.addPageHeader()
}

// addPageHeader draws the document title and a rule above the viewport.
func (s *pdfSurface) addPageHeader() {
	if s.setup.HeaderSize <= 0 || s.setup.Title == "" {
		return
	}
	pageWidth, _ := s.pdf.GetPageSize()
	m := s.setup.Margin

	s.pdf.SetFont("Arial", "B", 9)
	s.pdf.SetTextColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	s.pdf.SetXY(m, m)
	s.pdf.CellFormat(pageWidth-2*m, s.setup.HeaderSize-4, s.tr(s.setup.Title), "", 0, "L", false, 0, "")

	s.pdf.SetDrawColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	s.pdf.SetLineWidth(0.5)
	y := m + s.setup.HeaderSize - 2
	s.pdf.Line(m, y, pageWidth-m, y)
}

// addPageNumbers adds page numbers to every page.
func (s *pdfSurface) addPageNumbers() {
	totalPages := s.pdf.PageCount()
	for i := 1; i <= totalPages; i++ {
		s.pdf.SetPage(i)
		pageWidth, pageHeight := s.pdf.GetPageSize()
		m := s.setup.Margin

		// Bottom line
		s.pdf.SetDrawColor(colorGridLine[0], colorGridLine[1], colorGridLine[2])
		s.pdf.SetLineWidth(0.3)
		s.pdf.Line(m, pageHeight-m-s.setup.FooterSize+2, pageWidth-m, pageHeight-m-s.setup.FooterSize+2)

		s.pdf.SetXY(m, pageHeight-m-s.setup.FooterSize+3)
		s.pdf.SetFont("Arial", "", 8)
		s.pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
		s.pdf.CellFormat(pageWidth-2*m, 5, fmt.Sprintf("Page %d of %d", i, totalPages), "", 0, "C", false, 0, "")
	}
}

func (s *pdfSurface) Viewport() grid.Area {
	pageWidth, pageHeight := s.pdf.GetPageSize()
	m := s.setup.Margin
	top := m
	if s.setup.Title != "" && s.setup.HeaderSize > 0 {
		top += s.setup.HeaderSize
	}
	bottom := m
	if s.setup.PageNumbers && s.setup.FooterSize > 0 {
		bottom += s.setup.FooterSize
	}
	return grid.Area{X: m, Y: top, Width: pageWidth - 2*m, Height: pageHeight - top - bottom}
}

func (s *pdfSurface) setFont(style TextStyle) {
	family := "Arial"
	if style.Mono {
		family = "Courier"
	}
	fontStyle := ""
	if style.Bold {
		fontStyle += "B"
	}
	if style.Italic {
		fontStyle += "I"
	}
	size := style.Size
	if size <= 0 {
		size = 9
	}
	s.pdf.SetFont(family, fontStyle, size)
}

func (s *pdfSurface) MeasureText(text string, style TextStyle) float64 {
	s.setFont(style)
	return s.pdf.GetStringWidth(s.tr(text))
}

func (s *pdfSurface) LineHeight(style TextStyle) float64 {
	s.setFont(style)
	_, unitSize := s.pdf.GetFontSize()
	return unitSize * 1.4
}

func (s *pdfSurface) Text(area grid.Area, text string, style TextStyle) {
	if text == "" || area.Width <= 0 || area.Height <= 0 {
		return
	}
	s.setFont(style)
	s.pdf.SetTextColor(style.Color[0], style.Color[1], style.Color[2])
	align := style.Align
	if align == "" {
		align = "L"
	}
	s.pdf.ClipRect(area.X, area.Y, area.Width, area.Height, false)
	s.pdf.SetXY(area.X, area.Y)
	s.pdf.CellFormat(area.Width, area.Height, s.tr(text), "", 0, align+"M", false, 0, "")
	s.pdf.ClipEnd()
}

func (s *pdfSurface) Image(name string, png []byte, area grid.Area) error {
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	s.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(png))
	if s.pdf.Err() {
		return fmt.Errorf("register image %s: %w", name, s.pdf.Error())
	}
	s.pdf.ImageOptions(name, area.X, area.Y, area.Width, area.Height, false, opts, 0, "")
	if s.pdf.Err() {
		return fmt.Errorf("place image %s: %w", name, s.pdf.Error())
	}
	return nil
}

func (s *pdfSurface) Rect(area grid.Area, style RectStyle) {
	mode := ""
	if style.Fill != nil {
		s.pdf.SetFillColor(style.Fill[0], style.Fill[1], style.Fill[2])
		mode += "F"
	}
	if style.Stroke != nil {
		s.pdf.SetDrawColor(style.Stroke[0], style.Stroke[1], style.Stroke[2])
		width := style.LineWidth
		if width <= 0 {
			width = 0.2
		}
		s.pdf.SetLineWidth(width)
		mode += "D"
	}
	if mode == "" {
		return
	}
	if style.Dashed {
		s.pdf.SetDashPattern([]float64{1, 1}, 0)
	}
	s.pdf.Rect(area.X, area.Y, area.Width, area.Height, mode)
	if style.Dashed {
		s.pdf.SetDashPattern([]float64{}, 0)
	}
}

func (s *pdfSurface) Line(x1, y1, x2, y2 float64, color [3]int, width float64) {
	s.pdf.SetDrawColor(color[0], color[1], color[2])
	s.pdf.SetLineWidth(width)
	s.pdf.Line(x1, y1, x2, y2)
}

func (s *pdfSurface) PageCount() int {
	return s.pdf.PageCount()
}

func (s *pdfSurface) Output(w io.Writer) error {
	if s.setup.PageNumbers && s.setup.FooterSize > 0 {
		s.addPageNumbers()
	}
	if err := s.pdf.Output(w); err != nil {
		return fmt.Errorf("PDF output error: %w", err)
	}
	return nil
}
