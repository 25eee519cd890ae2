// Package recurrence maps a report's periodic cadence to report periods and the
// elementary time unit used to bucket its charts.
package recurrence

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	reperrors "github.com/rcourtman/pulse-reports/internal/errors"
)

// Recurrence is the report's periodic cadence.
type Recurrence string

const (
	Daily     Recurrence = "DAILY"
	Weekly    Recurrence = "WEEKLY"
	Monthly   Recurrence = "MONTHLY"
	Quarterly Recurrence = "QUARTERLY"
	Biennial  Recurrence = "BIENNIAL"
	Yearly    Recurrence = "YEARLY"
)

// TimeUnit is the elementary bucket of a time axis.
type TimeUnit string

const (
	Hour  TimeUnit = "hour"
	Day   TimeUnit = "day"
	Month TimeUnit = "month"
)

// Period is a report's time range. End is the last instant included.
type Period struct {
	Start time.Time `json:"start" yaml:"start" toml:"start"`
	End   time.Time `json:"end" yaml:"end" toml:"end"`
}

// Parse converts a user supplied recurrence name.
func Parse(value string) (Recurrence, error) {
	r := Recurrence(strings.ToUpper(strings.TrimSpace(value)))
	if _, err := r.Unit(); err != nil {
		return "", err
	}
	return r, nil
}

// Unit returns the time unit used for continuity buckets. An unrecognized
// recurrence is a configuration error.
func (r Recurrence) Unit() (TimeUnit, error) {
	switch r {
	case Daily:
		return Hour, nil
	case Weekly, Monthly:
		return Day, nil
	case Quarterly, Biennial, Yearly:
		return Month, nil
	default:
		return "", reperrors.WrapConfigurationError("recurrence_unit",
			fmt.Errorf("%w: %q", reperrors.ErrUnknownRecurrence, string(r)))
	}
}

// CalcPeriod returns the last complete period of the recurrence before ref.
func CalcPeriod(ref time.Time, r Recurrence) (Period, error) {
	loc := ref.Location()
	day := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, loc)

	var start, next time.Time
	switch r {
	case Daily:
		next = day
		start = next.AddDate(0, 0, -1)
	case Weekly:
		// weeks start on monday
		offset := (int(day.Weekday()) + 6) % 7
		next = day.AddDate(0, 0, -offset)
		start = next.AddDate(0, 0, -7)
	case Monthly:
		next = time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, loc)
		start = next.AddDate(0, -1, 0)
	case Quarterly:
		firstMonth := time.Month((int(ref.Month())-1)/3*3 + 1)
		next = time.Date(ref.Year(), firstMonth, 1, 0, 0, 0, 0, loc)
		start = next.AddDate(0, -3, 0)
	case Biennial:
		firstMonth := time.Month((int(ref.Month())-1)/6*6 + 1)
		next = time.Date(ref.Year(), firstMonth, 1, 0, 0, 0, 0, loc)
		start = next.AddDate(0, -6, 0)
	case Yearly:
		next = time.Date(ref.Year(), time.January, 1, 0, 0, 0, 0, loc)
		start = next.AddDate(-1, 0, 0)
	default:
		return Period{}, reperrors.WrapConfigurationError("calc_period",
			fmt.Errorf("%w: %q", reperrors.ErrUnknownRecurrence, string(r)))
	}

	return Period{Start: start, End: next.Add(-time.Nanosecond)}, nil
}

// UnmarshalJSON accepts every layout ParseTime understands. A date-only or
// month-only end bound covers its whole day or month.
func (p *Period) UnmarshalJSON(data []byte) error {
	var raw struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	start, err := ParseTime(raw.Start, time.UTC)
	if err != nil {
		return fmt.Errorf("period start: %w", err)
	}
	end, err := ParseTime(raw.End, time.UTC)
	if err != nil {
		return fmt.Errorf("period end: %w", err)
	}
	switch len(strings.TrimSpace(raw.End)) {
	case len("2006-01"):
		end = Next(end, Month).Add(-time.Nanosecond)
	case len("2006-01-02"):
		end = Next(end, Day).Add(-time.Nanosecond)
	}
	p.Start, p.End = start, end
	return nil
}

// Validate checks that the period is usable for bucketing.
func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return reperrors.WrapConfigurationError("period", fmt.Errorf("period bounds must be set"))
	}
	if p.End.Before(p.Start) {
		return reperrors.WrapConfigurationError("period",
			fmt.Errorf("period end %s is before start %s", p.End.Format(time.RFC3339), p.Start.Format(time.RFC3339)))
	}
	return nil
}

// Truncate rounds t down to the start of its unit.
func Truncate(t time.Time, unit TimeUnit) time.Time {
	switch unit {
	case Hour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	case Day:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	case Month:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	default:
		return t
	}
}

// Next returns the start of the unit following t.
func Next(t time.Time, unit TimeUnit) time.Time {
	switch unit {
	case Hour:
		return t.Add(time.Hour)
	case Day:
		return t.AddDate(0, 0, 1)
	default:
		return t.AddDate(0, 1, 0)
	}
}

// Format renders a bucket start as the key used on chart axes.
func Format(t time.Time, unit TimeUnit) string {
	switch unit {
	case Hour:
		return t.Format("2006-01-02T15:00")
	case Day:
		return t.Format("2006-01-02")
	default:
		return t.Format("2006-01")
	}
}

// Buckets lists the start of every unit touched by the period.
func (p Period) Buckets(unit TimeUnit) ([]time.Time, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	switch unit {
	case Hour, Day, Month:
	default:
		return nil, reperrors.WrapConfigurationError("period_buckets", fmt.Errorf("unknown time unit %q", unit))
	}

	var out []time.Time
	for t := Truncate(p.Start, unit); !t.After(p.End); t = Next(t, unit) {
		out = append(out, t)
	}
	return out, nil
}

var parseLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006-01",
	"2006",
}

// ParseTime parses a bucket key as produced by date histograms or Format.
func ParseTime(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	value = strings.TrimSpace(value)
	for _, layout := range parseLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time value %q", value)
}
