package aggregation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

// Default output properties of a flattened row.
const (
	KeyField   = "key"
	ValueField = "value"
)

// Row is one flattened data point ready for table or chart consumption.
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Float returns the numeric value of field.
func (r Row) Float(field string) (float64, bool) {
	v, ok := r[field]
	if !ok || v == nil {
		return 0, false
	}
	switch v.(type) {
	case bool:
		return 0, false
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, false
	}
	return f, true
}

// String returns field as display text; missing values are empty.
func (r Row) String(field string) string {
	v, ok := r[field]
	if !ok || v == nil {
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}

// Fields lists the properties present in rows: key first, value last, other
// dimensions sorted in between.
func Fields(rows []Row) []string {
	seen := make(map[string]bool)
	var dims []string
	for _, row := range rows {
		for k := range row {
			if seen[k] {
				continue
			}
			seen[k] = true
			if k != KeyField && k != ValueField && !strings.HasPrefix(k, "_") {
				dims = append(dims, k)
			}
		}
	}
	sort.Strings(dims)

	fields := make([]string, 0, len(dims)+2)
	if seen[KeyField] {
		fields = append(fields, KeyField)
	}
	fields = append(fields, dims...)
	if seen[ValueField] {
		fields = append(fields, ValueField)
	}
	return fields
}

// SortRows orders rows by field. order is "asc" or "desc"; any other value keeps
// the input order. Values compare numerically when both are numbers, otherwise
// lexicographically.
func SortRows(rows []Row, order, field string) []Row {
	order = strings.ToLower(strings.TrimSpace(order))
	if order != "asc" && order != "desc" {
		return rows
	}
	if field == "" {
		field = ValueField
	}

	sorted := make([]Row, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		c := compareField(sorted[i], sorted[j], field)
		if order == "desc" {
			return c > 0
		}
		return c < 0
	})
	return sorted
}

func compareField(a, b Row, field string) int {
	af, aok := a.Float(field)
	bf, bok := b.Float(field)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a.String(field), b.String(field))
}
