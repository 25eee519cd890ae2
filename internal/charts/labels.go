package charts

import (
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const (
	// DefaultPercentMin hides percent labels of slices under 3%.
	DefaultPercentMin = 0.03
	// DefaultNumericMinRatio hides numeric labels under 3% of the largest value.
	DefaultNumericMinRatio = 0.03

	defaultPercentDigits = 1
	defaultNumericDigits = 2
)

// DataLabels computes the overlay text of every datum. Values under the
// visibility threshold get an empty label. With grouped set, percentages are
// relative to the datum's color group.
func DataLabels(data []Datum, cfg DataLabel, grouped bool, p *message.Printer) []string {
	if cfg.Format == LabelPercent {
		return percentLabels(data, cfg, grouped, p)
	}
	return numericLabels(data, cfg, p)
}

func percentLabels(data []Datum, cfg DataLabel, grouped bool, p *message.Printer) []string {
	totals := make(map[string]float64)
	for _, d := range data {
		totals[groupKey(d, grouped)] += d.Value
	}

	minValue := DefaultPercentMin
	if cfg.MinValue != nil {
		minValue = *cfg.MinValue
	}
	digits := defaultPercentDigits
	if cfg.FractionDigits != nil {
		digits = *cfg.FractionDigits
	}

	labels := make([]string, len(data))
	for i, d := range data {
		total := totals[groupKey(d, grouped)]
		if d.Synthetic || total == 0 {
			continue
		}
		fraction := d.Value / total
		if fraction < minValue {
			continue
		}
		labels[i] = p.Sprint(number.Percent(fraction, number.MaxFractionDigits(digits)))
	}
	return labels
}

func numericLabels(data []Datum, cfg DataLabel, p *message.Printer) []string {
	var maxValue float64
	for i, d := range data {
		if i == 0 || d.Value > maxValue {
			maxValue = d.Value
		}
	}

	minValue := maxValue * DefaultNumericMinRatio
	if cfg.MinValue != nil {
		minValue = *cfg.MinValue
	}
	digits := defaultNumericDigits
	if cfg.FractionDigits != nil {
		digits = *cfg.FractionDigits
	}

	labels := make([]string, len(data))
	for i, d := range data {
		if d.Synthetic || d.Value < minValue {
			continue
		}
		labels[i] = p.Sprint(number.Decimal(d.Value, number.MaxFractionDigits(digits)))
	}
	return labels
}

func groupKey(d Datum, grouped bool) string {
	if grouped {
		return d.Group
	}
	return ""
}

// arcRadius positions arc labels at the ring midpoint, or past the outer edge
// when position is "out".
func arcRadius(width, height int, innerRatio float64, cfg *DataLabel) *ArcRadius {
	size := width
	if height < size {
		size = height
	}
	outer := float64(size) / 2 * 0.8
	inner := outer * innerRatio

	r := &ArcRadius{Inner: inner, Outer: outer, Label: (inner + outer) / 2}
	if cfg != nil && cfg.Position == "out" {
		offset := cfg.Offset
		if offset == 0 {
			offset = 12
		}
		r.Label = outer + offset
	}
	return r
}
