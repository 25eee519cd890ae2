package charts

import (
	"time"

	"github.com/rcourtman/pulse-reports/internal/recurrence"
)

// ContinuityRows returns one zero datum per time unit of period that has no
// real datum yet, for the unit implied by rec. Real labels are matched by the
// bucket they fall into.
func ContinuityRows(data []Datum, rec recurrence.Recurrence, period recurrence.Period, loc *time.Location) ([]Datum, recurrence.TimeUnit, error) {
	unit, err := rec.Unit()
	if err != nil {
		return nil, "", err
	}
	buckets, err := period.Buckets(unit)
	if err != nil {
		return nil, "", err
	}

	present := make(map[string]bool, len(data))
	for _, d := range data {
		present[bucketLabel(d.Label, unit, loc)] = true
	}

	var synthetic []Datum
	for _, b := range buckets {
		label := recurrence.Format(b, unit)
		if present[label] {
			continue
		}
		synthetic = append(synthetic, Datum{Label: label, Synthetic: true})
	}
	return synthetic, unit, nil
}

// bucketLabel normalizes a time label to its unit bucket. Labels that are not
// times are returned as is.
func bucketLabel(label string, unit recurrence.TimeUnit, loc *time.Location) string {
	t, err := recurrence.ParseTime(label, loc)
	if err != nil {
		return label
	}
	if loc != nil {
		t = t.In(loc)
	}
	return recurrence.Format(recurrence.Truncate(t, unit), unit)
}
