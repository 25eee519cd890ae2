package reporting

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	reperrors "github.com/rcourtman/pulse-reports/internal/errors"
	"github.com/rcourtman/pulse-reports/internal/recurrence"
	"github.com/spf13/cast"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Value formats.
const (
	FormatNumber = "number"
	FormatBytes  = "bytes"
	FormatDate   = "date"
	FormatText   = "text"
)

const (
	defaultDateLayout     = "2006-01-02"
	defaultFractionDigits = 2
)

// valueFormatter renders row values for display.
type valueFormatter struct {
	printer  *message.Printer
	location *time.Location
}

// formatSpec is the declared display format of one value.
type formatSpec struct {
	Format         string
	Layout         string
	FractionDigits *int
	Unit           string
}

// Format renders v per spec. Values that cannot be read in the declared
// format are data format errors; nil renders empty.
func (f valueFormatter) Format(v any, spec formatSpec) (string, error) {
	if v == nil {
		return "", nil
	}

	var (
		out string
		err error
	)
	switch spec.Format {
	case FormatNumber:
		out, err = f.number(v, spec.FractionDigits)
	case FormatBytes:
		out, err = f.bytes(v)
	case FormatDate:
		out, err = f.date(v, spec.Layout)
	case "", FormatText:
		out, err = cast.ToStringE(v)
		if err != nil {
			err = fmt.Errorf("%w: value %v is not text", reperrors.ErrDataFormat, v)
		}
	default:
		err = fmt.Errorf("%w: unknown format %q", reperrors.ErrDataFormat, spec.Format)
	}
	if err != nil {
		return "", reperrors.WrapDataFormatError("format_value", err)
	}
	if spec.Unit != "" && out != "" {
		out += " " + spec.Unit
	}
	return out, nil
}

func (f valueFormatter) number(v any, digits *int) (string, error) {
	n, err := toFloat(v)
	if err != nil {
		return "", err
	}
	d := defaultFractionDigits
	if digits != nil {
		d = *digits
	}
	return f.printer.Sprint(number.Decimal(n, number.MaxFractionDigits(d))), nil
}

func (f valueFormatter) bytes(v any) (string, error) {
	n, err := toFloat(v)
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n)), nil
	}
	return humanize.IBytes(uint64(n)), nil
}

// date accepts time values, parseable strings and epoch milliseconds, the key
// format of date histogram buckets.
func (f valueFormatter) date(v any, layout string) (string, error) {
	if layout == "" {
		layout = defaultDateLayout
	}
	loc := f.location
	if loc == nil {
		loc = time.UTC
	}

	switch t := v.(type) {
	case time.Time:
		return t.In(loc).Format(layout), nil
	case string:
		parsed, err := recurrence.ParseTime(t, loc)
		if err != nil {
			return "", fmt.Errorf("%w: %v", reperrors.ErrDataFormat, err)
		}
		return parsed.Format(layout), nil
	case bool:
		return "", fmt.Errorf("%w: %v is not a date", reperrors.ErrDataFormat, v)
	}

	ms, err := cast.ToInt64E(v)
	if err != nil {
		return "", fmt.Errorf("%w: %v is not a date", reperrors.ErrDataFormat, v)
	}
	return time.UnixMilli(ms).In(loc).Format(layout), nil
}

func toFloat(v any) (float64, error) {
	if _, ok := v.(bool); ok {
		return 0, fmt.Errorf("%w: %v is not a number", reperrors.ErrDataFormat, v)
	}
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	n, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %v is not a number", reperrors.ErrDataFormat, v)
	}
	return n, nil
}
