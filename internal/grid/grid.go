// Package grid places figures on the fixed rows×cols partition of a page.
package grid

import (
	"fmt"
	"sort"

	reperrors "github.com/rcourtman/pulse-reports/internal/errors"
	"github.com/rs/zerolog/log"
)

// Area is an axis-aligned rectangle on a page, in page units.
type Area struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right returns the x coordinate of the right edge.
func (a Area) Right() float64 { return a.X + a.Width }

// Bottom returns the y coordinate of the bottom edge.
func (a Area) Bottom() float64 { return a.Y + a.Height }

// Overlaps reports whether two areas share a region of positive size.
func (a Area) Overlaps(b Area) bool {
	const eps = 1e-9
	return a.X < b.Right()-eps && b.X < a.Right()-eps && a.Y < b.Bottom()-eps && b.Y < a.Bottom()-eps
}

// Grid is the fixed partition of a page's content viewport.
type Grid struct {
	Rows int `json:"rows" yaml:"rows" toml:"rows" validate:"min=1,max=12"`
	Cols int `json:"cols" yaml:"cols" toml:"cols" validate:"min=1,max=12"`
}

// Size returns the number of cells in the grid.
func (g Grid) Size() int { return g.Rows * g.Cols }

// Margin is the spacing between grid cells.
type Margin struct {
	Horizontal float64 `json:"horizontal" yaml:"horizontal" toml:"horizontal" validate:"min=0"`
	Vertical   float64 `json:"vertical" yaml:"vertical" toml:"vertical" validate:"min=0"`
}

// PositionalModifier scales the margin used as the gap between n cells so that
// n cells of (span/n - margin/2) stay inside span. It is an empirical
// correction for the rounding gaps between cells; on two cells it is exactly 1.
// Heuristic: keep as is, other grids were never tuned against real documents.
func PositionalModifier(n int) float64 {
	if n <= 1 {
		return 0
	}
	return float64(n) / (2 * float64(n-1))
}

// GenerateSlots produces rows*cols rectangles tiled left to right, top to bottom.
func GenerateSlots(viewport Area, g Grid, margin Margin) []Area {
	if g.Rows <= 0 || g.Cols <= 0 {
		return nil
	}

	width := viewport.Width/float64(g.Cols) - margin.Horizontal/2
	height := viewport.Height/float64(g.Rows) - margin.Vertical/2
	if g.Cols == 1 {
		width = viewport.Width
	}
	if g.Rows == 1 {
		height = viewport.Height
	}

	gapX := margin.Horizontal * PositionalModifier(g.Cols)
	gapY := margin.Vertical * PositionalModifier(g.Rows)

	slots := make([]Area, 0, g.Size())
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			slots = append(slots, Area{
				X:      viewport.X + float64(col)*(width+gapX),
				Y:      viewport.Y + float64(row)*(height+gapY),
				Width:  width,
				Height: height,
			})
		}
	}
	return slots
}

// Placement is what ResolveSlot needs to know about a figure.
type Placement struct {
	// Slots are grid cell indices the figure occupies manually. Empty means
	// automatic placement.
	Slots []int
}

// ValidateSlots checks that manual slot indices fall inside the grid.
func ValidateSlots(slots []int, g Grid) error {
	for _, idx := range slots {
		if idx < 0 || idx >= g.Size() {
			return reperrors.WrapConfigurationError("validate_slots",
				fmt.Errorf("%w: slot %d outside %dx%d grid", reperrors.ErrInvalidTemplate, idx, g.Rows, g.Cols))
		}
	}
	return nil
}

// ResolveSlot computes the rectangle of figures[index].
func ResolveSlot(slots []Area, figures []Placement, index int, g Grid, viewport Area, margin Margin) (Area, error) {
	if index < 0 || index >= len(figures) {
		return Area{}, reperrors.WrapRenderError("resolve_slot",
			fmt.Errorf("%w: figure %d of %d", reperrors.ErrMissingSlot, index, len(figures)))
	}

	if manual := figures[index].Slots; len(manual) > 0 {
		return resolveManual(slots, manual, g, viewport)
	}
	return resolveAuto(slots, len(figures), index, g, viewport)
}

func resolveManual(slots []Area, requested []int, g Grid, viewport Area) (Area, error) {
	if err := ValidateSlots(requested, g); err != nil {
		return Area{}, err
	}
	indices := uniqueSorted(requested)
	for _, idx := range indices {
		if idx >= len(slots) {
			return Area{}, reperrors.WrapRenderError("resolve_slot",
				fmt.Errorf("%w: slot %d not generated", reperrors.ErrMissingSlot, idx))
		}
	}

	if len(indices) == g.Size() {
		return viewport, nil
	}

	base := slots[indices[0]]
	if len(indices) == 1 {
		return base, nil
	}

	switch {
	case isRun(indices, 1) && sameRow(indices, g.Cols):
		last := slots[indices[len(indices)-1]]
		base.Width = last.Right() - base.X
	case isRun(indices, g.Cols):
		last := slots[indices[len(indices)-1]]
		base.Height = last.Bottom() - base.Y
	default:
		// Non-contiguous or diagonal sets are not merged.
		log.Debug().Ints("slots", indices).Msg("Manual slots are not a row or column run; using first slot")
	}
	return base, nil
}

func resolveAuto(slots []Area, figureCount, index int, g Grid, viewport Area) (Area, error) {
	if index >= len(slots) {
		return Area{}, reperrors.WrapRenderError("resolve_slot",
			fmt.Errorf("%w: figure %d exceeds %d slots", reperrors.ErrMissingSlot, index, len(slots)))
	}
	if figureCount == 1 {
		return viewport, nil
	}

	slot := slots[index]
	placed := figureCount
	if placed > len(slots) {
		placed = len(slots)
	}

	// Figures on the last used row stretch down when whole grid rows stay empty.
	usedRows := (placed + g.Cols - 1) / g.Cols
	if usedRows < g.Rows && index/g.Cols == usedRows-1 {
		slot.Height = viewport.Bottom() - slot.Y
	}

	// The last figure in the second-to-last slot absorbs the final empty slot.
	if index == len(slots)-2 && index == figureCount-1 {
		slot.Width = slots[len(slots)-1].Right() - slot.X
	}
	return slot, nil
}

func uniqueSorted(values []int) []int {
	out := make([]int, 0, len(values))
	seen := make(map[int]bool, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}

func isRun(indices []int, stride int) bool {
	for i := 1; i < len(indices); i++ {
		if indices[i]-indices[i-1] != stride {
			return false
		}
	}
	return true
}

func sameRow(indices []int, cols int) bool {
	row := indices[0] / cols
	for _, idx := range indices[1:] {
		if idx/cols != row {
			return false
		}
	}
	return true
}
