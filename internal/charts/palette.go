package charts

import (
	"fmt"
	"regexp"
	"strings"
)

// FallbackColor is assigned to labels once the palette is exhausted.
const FallbackColor = ""

// DefaultPalette is the document palette, in assignment order.
var DefaultPalette = []string{
	"#3498db", // Bright blue
	"#2ecc71", // Green
	"#f1c40f", // Yellow
	"#e74c3c", // Red
	"#1e3a5f", // Dark navy
	"#9b59b6", // Purple
	"#e67e22", // Orange
	"#1abc9c", // Teal
	"#34495e", // Slate
	"#7f8c8d", // Muted gray
	"#c0392b", // Dark red
	"#16a085", // Dark teal
}

var hexColorPattern = regexp.MustCompile(`^#?([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// ParsePalette reads a comma separated list of hex colors.
func ParsePalette(value string) ([]string, error) {
	var palette []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !hexColorPattern.MatchString(part) {
			return nil, fmt.Errorf("invalid palette color %q", part)
		}
		if !strings.HasPrefix(part, "#") {
			part = "#" + part
		}
		palette = append(palette, strings.ToLower(part))
	}
	if len(palette) == 0 {
		return nil, fmt.Errorf("palette is empty")
	}
	return palette, nil
}

// ColorMap assigns palette colors to labels for the lifetime of one document.
// An assigned label keeps its color until the map is discarded. Not safe for
// concurrent use; each render session owns its own map.
type ColorMap struct {
	palette  []string
	assigned map[string]string
	order    []string
	next     int
}

// NewColorMap creates an empty map drawing from palette. A nil palette uses
// DefaultPalette.
func NewColorMap(palette []string) *ColorMap {
	if palette == nil {
		palette = DefaultPalette
	}
	p := make([]string, len(palette))
	copy(p, palette)
	return &ColorMap{
		palette:  p,
		assigned: make(map[string]string),
	}
}

// Lookup returns the color already assigned to label.
func (m *ColorMap) Lookup(label string) (string, bool) {
	c, ok := m.assigned[label]
	return c, ok
}

// Assign returns one color per label, reusing earlier assignments and giving
// unused palette colors to new labels in order. Labels left over once the
// palette runs out get FallbackColor and are returned in exhausted.
func (m *ColorMap) Assign(labels []string) (colors []string, exhausted []string) {
	colors = make([]string, len(labels))
	for i, label := range labels {
		if c, ok := m.assigned[label]; ok {
			colors[i] = c
			continue
		}
		if m.next >= len(m.palette) {
			colors[i] = FallbackColor
			exhausted = append(exhausted, label)
			continue
		}
		c := m.palette[m.next]
		m.next++
		m.assigned[label] = c
		m.order = append(m.order, label)
		colors[i] = c
	}
	return colors, exhausted
}

// Labels lists assigned labels in assignment order.
func (m *ColorMap) Labels() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Len returns the number of assigned labels.
func (m *ColorMap) Len() int { return len(m.order) }

// Remaining returns the number of palette colors still free.
func (m *ColorMap) Remaining() int { return len(m.palette) - m.next }
