package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/rcourtman/pulse-reports/internal/charts"
	reperrors "github.com/rcourtman/pulse-reports/internal/errors"
	"github.com/rcourtman/pulse-reports/internal/grid"
	"gopkg.in/yaml.v3"
)

// Format is a template encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFromPath infers the encoding from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", invalid("unsupported template extension %q", filepath.Ext(path))
	}
}

// Load reads and validates a template file.
func Load(path string) (*Template, error) {
	tpl, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := tpl.Validate(); err != nil {
		return nil, err
	}
	return tpl, nil
}

// Read decodes a template file without validating it, so callers can fill
// defaults first.
func Read(path string) (*Template, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open template: %w", err)
	}
	defer f.Close()

	return Decode(f, format)
}

// Decode reads a template. YAML and TOML documents are normalized to JSON so
// every format shares the figure decoding rules.
func Decode(r io.Reader, format Format) (*Template, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}

	var doc []byte
	switch format {
	case FormatJSON:
		doc = raw
	case FormatYAML:
		var v map[string]any
		if err := yaml.Unmarshal(raw, &v); err != nil {
			return nil, invalid("yaml: %v", err)
		}
		if doc, err = json.Marshal(v); err != nil {
			return nil, invalid("yaml: %v", err)
		}
	case FormatTOML:
		var v map[string]any
		if err := toml.Unmarshal(raw, &v); err != nil {
			return nil, invalid("toml: %v", err)
		}
		if doc, err = json.Marshal(v); err != nil {
			return nil, invalid("toml: %v", err)
		}
	default:
		return nil, invalid("unknown template format %q", format)
	}

	var tpl Template
	dec := json.NewDecoder(bytes.NewReader(doc))
	if err := dec.Decode(&tpl); err != nil {
		return nil, invalid("%v", err)
	}
	return &tpl, nil
}

// UnmarshalJSON decodes the layout's figures into their concrete types.
func (l *Layout) UnmarshalJSON(data []byte) error {
	var raw struct {
		Data    string            `json:"data"`
		Figures []json.RawMessage `json:"figures"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	l.Data = raw.Data
	l.Figures = make([]Figure, 0, len(raw.Figures))
	for i, msg := range raw.Figures {
		fig, err := DecodeFigure(msg)
		if err != nil {
			return fmt.Errorf("figure %d: %w", i, err)
		}
		l.Figures = append(l.Figures, fig)
	}
	return nil
}

// MarshalJSON encodes the layout with its concrete figures.
func (l Layout) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Data    string   `json:"data,omitempty"`
		Figures []Figure `json:"figures"`
	}{l.Data, l.Figures})
}

// DecodeFigure picks the figure variant from its type tag.
func DecodeFigure(data []byte) (Figure, error) {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	var fig Figure
	switch {
	case head.Type == KindTable:
		fig = &TableFigure{}
	case head.Type == KindMarkdown:
		fig = &MarkdownFigure{}
	case head.Type == KindMetric:
		fig = &MetricFigure{}
	case charts.IsMark(string(head.Type)):
		fig = &ChartFigure{}
	case head.Type == "":
		return nil, fmt.Errorf("%w: figure type is required", reperrors.ErrInvalidTemplate)
	default:
		return nil, fmt.Errorf("%w: unknown figure type %q", reperrors.ErrInvalidTemplate, head.Type)
	}
	if err := json.Unmarshal(data, fig); err != nil {
		return nil, fmt.Errorf("%s figure: %w", head.Type, err)
	}
	return fig, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the template structure, every figure's params and manual
// slot indices against the grid.
func (t *Template) Validate() error {
	if err := validate.Struct(t); err != nil {
		return invalid("%s", describe(err))
	}
	if t.Period != nil {
		if err := t.Period.Validate(); err != nil {
			return err
		}
	}
	for li, layout := range t.Layouts {
		if len(layout.Figures) == 0 {
			return invalid("layout %d has no figures", li)
		}
		for fi, fig := range layout.Figures {
			if err := validate.Struct(fig); err != nil {
				return invalid("layout %d figure %d: %s", li, fi, describe(err))
			}
			if err := grid.ValidateSlots(fig.Base().Slots, t.Grid); err != nil {
				return reperrors.Annotate(err, li, fi, string(fig.Kind()), fig.Base().Title)
			}
		}
	}
	return nil
}

func describe(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s", fe.Namespace(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

func invalid(format string, args ...any) error {
	return reperrors.WrapConfigurationError("decode_template",
		fmt.Errorf("%w: %s", reperrors.ErrInvalidTemplate, fmt.Sprintf(format, args...)))
}
