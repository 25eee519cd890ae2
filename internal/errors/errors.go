package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Base error types
var (
	ErrNoAggregations    = errors.New("no aggregations in response")
	ErrZeroHits          = errors.New("response matched zero documents")
	ErrShardFailure      = errors.New("all shards failed")
	ErrMalformedResponse = errors.New("malformed response")
	ErrDataFormat        = errors.New("invalid data format")
	ErrMissingSlot       = errors.New("no slot available")
	ErrRasterize         = errors.New("chart rasterization failed")
	ErrUnknownRecurrence = errors.New("unknown recurrence")
	ErrInvalidTemplate   = errors.New("invalid template")
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeData          ErrorType = "data"
	ErrorTypeDataFormat    ErrorType = "data_format"
	ErrorTypeRender        ErrorType = "render"
	ErrorTypeConfiguration ErrorType = "configuration"
)

// ReportError is a structured error for document rendering.
type ReportError struct {
	Type       ErrorType
	Op         string // Operation that failed (e.g., "flatten", "render_figure")
	Layout     int    // Layout index, -1 when unknown
	Figure     int    // Figure index within the layout, -1 when unknown
	FigureType string
	Title      string
	Err        error
}

func (e *ReportError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(" failed")
	if e.Layout >= 0 {
		fmt.Fprintf(&b, " on layout %d", e.Layout)
	}
	if e.Figure >= 0 {
		fmt.Fprintf(&b, " figure %d", e.Figure)
		switch {
		case e.Title != "" && e.FigureType != "":
			fmt.Fprintf(&b, " (%s %q)", e.FigureType, e.Title)
		case e.FigureType != "":
			fmt.Fprintf(&b, " (%s)", e.FigureType)
		case e.Title != "":
			fmt.Fprintf(&b, " (%q)", e.Title)
		}
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *ReportError) Unwrap() error {
	return e.Err
}

// Is reports a data format error as ErrDataFormat even when its cause is a
// plain error. Other sentinels match through Unwrap; use TypeOf or the Is*Error
// predicates to test the category.
func (e *ReportError) Is(target error) bool {
	return target == ErrDataFormat && e.Type == ErrorTypeDataFormat
}

// NewReportError creates a new ReportError without layout or figure context.
func NewReportError(errorType ErrorType, op string, err error) *ReportError {
	return &ReportError{
		Type:   errorType,
		Op:     op,
		Layout: -1,
		Figure: -1,
		Err:    err,
	}
}

// WithLayout adds the layout index to the error
func (e *ReportError) WithLayout(layout int) *ReportError {
	e.Layout = layout
	return e
}

// WithFigure adds figure information to the error
func (e *ReportError) WithFigure(index int, figureType, title string) *ReportError {
	e.Figure = index
	e.FigureType = figureType
	e.Title = title
	return e
}

// Helper functions

// WrapDataError wraps a data error (missing aggregation, zero hits, shard failure).
func WrapDataError(op string, err error) error {
	return NewReportError(ErrorTypeData, op, err)
}

// WrapDataFormatError wraps a value that cannot be coerced to a figure's format.
func WrapDataFormatError(op string, err error) error {
	return NewReportError(ErrorTypeDataFormat, op, err)
}

// WrapRenderError wraps a drawing or rasterization failure.
func WrapRenderError(op string, err error) error {
	return NewReportError(ErrorTypeRender, op, err)
}

// WrapConfigurationError wraps an invalid template or recurrence setting.
func WrapConfigurationError(op string, err error) error {
	return NewReportError(ErrorTypeConfiguration, op, err)
}

// Annotate attaches layout and figure context to err. Existing report errors keep
// their type; anything else becomes a render error.
func Annotate(err error, layout, figure int, figureType, title string) error {
	if err == nil {
		return nil
	}
	var repErr *ReportError
	if errors.As(err, &repErr) {
		annotated := *repErr
		annotated.WithLayout(layout).WithFigure(figure, figureType, title)
		return &annotated
	}
	return NewReportError(ErrorTypeRender, "render_figure", err).
		WithLayout(layout).
		WithFigure(figure, figureType, title)
}

// TypeOf returns the report error type of err, or an empty type.
func TypeOf(err error) ErrorType {
	var repErr *ReportError
	if errors.As(err, &repErr) {
		return repErr.Type
	}
	return ""
}

// IsDataError checks if an error originates from unusable fetched data
func IsDataError(err error) bool {
	return TypeOf(err) == ErrorTypeData
}

// IsDataFormatError checks if an error is a value coercion failure
func IsDataFormatError(err error) bool {
	return TypeOf(err) == ErrorTypeDataFormat
}

// IsRenderError checks if an error is a drawing failure
func IsRenderError(err error) bool {
	return TypeOf(err) == ErrorTypeRender
}

// IsConfigurationError checks if an error is caused by the template or recurrence
func IsConfigurationError(err error) bool {
	return TypeOf(err) == ErrorTypeConfiguration
}
