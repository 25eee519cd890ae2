package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rcourtman/pulse-reports/internal/charts"
	"github.com/rcourtman/pulse-reports/internal/grid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
	"golang.org/x/text/language"
)

const envPrefix = "PULSE_REPORTS_"

// defaultDataDir is a var so tests can point it at a temp dir.
var defaultDataDir = "/etc/pulse-reports"

// Config holds the renderer settings shared by every document.
type Config struct {
	DataDir string `validate:"required"`

	LogLevel  string `validate:"oneof=trace debug info warn warning error disabled"`
	LogFormat string `validate:"oneof=auto json console"`

	// Page geometry, in millimetres.
	PageSize    string  `validate:"oneof=A3 A4 A5 Letter Legal"`
	Orientation string  `validate:"oneof=P L"`
	PageMargin  float64 `validate:"min=0,max=60"`
	HeaderSize  float64 `validate:"min=0,max=40"`
	FooterSize  float64 `validate:"min=0,max=40"`

	SlotMargin  grid.Margin
	DefaultGrid grid.Grid

	Palette  []string `validate:"min=1"`
	Locale   string   `validate:"bcp47_language_tag"`
	Timezone string
	ChartDPI float64 `validate:"min=36,max=600"`

	MetricsAddr string `validate:"omitempty,hostname_port"`

	// HistoryDB is the render ledger path. Empty means <DataDir>/history.db,
	// "off" disables the ledger.
	HistoryDB        string
	HistoryRetention time.Duration `validate:"min=0"`

	Location *time.Location `validate:"-"`

	// EnvOverrides records which settings came from the environment.
	EnvOverrides map[string]bool `validate:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir:          defaultDataDir,
		LogLevel:         "info",
		LogFormat:        "auto",
		PageSize:         "A4",
		Orientation:      "L",
		PageMargin:       10,
		HeaderSize:       12,
		FooterSize:       10,
		SlotMargin:       grid.Margin{Horizontal: 6, Vertical: 6},
		DefaultGrid:      grid.Grid{Rows: 2, Cols: 2},
		Palette:          append([]string(nil), charts.DefaultPalette...),
		Locale:           "en",
		Timezone:         "UTC",
		ChartDPI:         150,
		HistoryRetention: 90 * 24 * time.Hour,
		Location:         time.UTC,
		EnvOverrides:     make(map[string]bool),
	}
}

// Load reads .env files and PULSE_REPORTS_* environment variables on top of
// the defaults.
func Load() (*Config, error) {
	dataDir := defaultDataDir
	if dir := os.Getenv(envPrefix + "DATA_DIR"); dir != "" {
		dataDir = dir
	}

	// Load .env file if it exists (for deployment overrides)
	envFile := filepath.Join(dataDir, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			log.Warn().Err(err).Str("file", envFile).Msg("Failed to load .env file")
		} else {
			log.Info().Str("file", envFile).Msg("Loaded .env file for deployment overrides")
		}
	}

	// Also try loading from current directory for development
	if err := godotenv.Load(); err == nil {
		log.Info().Msg("Loaded configuration from .env in current directory")
	}

	cfg := Default()
	cfg.DataDir = dataDir
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := func(name string, dst *string, transform func(string) string) {
		if v := strings.TrimSpace(os.Getenv(envPrefix + name)); v != "" {
			if transform != nil {
				v = transform(v)
			}
			*dst = v
			c.EnvOverrides[name] = true
		}
	}
	num := func(name string, dst *float64) error {
		v := strings.TrimSpace(os.Getenv(envPrefix + name))
		if v == "" {
			return nil
		}
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = f
		c.EnvOverrides[name] = true
		return nil
	}

	str("LOG_LEVEL", &c.LogLevel, strings.ToLower)
	str("LOG_FORMAT", &c.LogFormat, strings.ToLower)
	str("PAGE_SIZE", &c.PageSize, normalizePageSize)
	str("ORIENTATION", &c.Orientation, func(v string) string {
		return strings.ToUpper(v[:1])
	})
	str("LOCALE", &c.Locale, nil)
	str("TIMEZONE", &c.Timezone, nil)
	str("METRICS_ADDR", &c.MetricsAddr, nil)
	str("HISTORY_DB", &c.HistoryDB, nil)

	if v := strings.TrimSpace(os.Getenv(envPrefix + "HISTORY_RETENTION")); v != "" {
		d, err := cast.ToDurationE(v)
		if err != nil {
			return fmt.Errorf("%sHISTORY_RETENTION: %w", envPrefix, err)
		}
		c.HistoryRetention = d
		c.EnvOverrides["HISTORY_RETENTION"] = true
	}

	for name, dst := range map[string]*float64{
		"PAGE_MARGIN":   &c.PageMargin,
		"HEADER_SIZE":   &c.HeaderSize,
		"FOOTER_SIZE":   &c.FooterSize,
		"SLOT_MARGIN_H": &c.SlotMargin.Horizontal,
		"SLOT_MARGIN_V": &c.SlotMargin.Vertical,
		"CHART_DPI":     &c.ChartDPI,
	} {
		if err := num(name, dst); err != nil {
			return err
		}
	}

	if v := strings.TrimSpace(os.Getenv(envPrefix + "GRID")); v != "" {
		g, err := ParseGrid(v)
		if err != nil {
			return err
		}
		c.DefaultGrid = g
		c.EnvOverrides["GRID"] = true
	}

	if v := strings.TrimSpace(os.Getenv(envPrefix + "PALETTE")); v != "" {
		palette, err := charts.ParsePalette(v)
		if err != nil {
			return fmt.Errorf("%sPALETTE: %w", envPrefix, err)
		}
		c.Palette = palette
		c.EnvOverrides["PALETTE"] = true
	}
	return nil
}

// ParseGrid parses a "ROWSxCOLS" grid such as "2x3".
func ParseGrid(value string) (grid.Grid, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(value)), "x")
	if len(parts) != 2 {
		return grid.Grid{}, fmt.Errorf("invalid grid %q: expected ROWSxCOLS", value)
	}
	rows, err := cast.ToIntE(strings.TrimSpace(parts[0]))
	if err != nil {
		return grid.Grid{}, fmt.Errorf("invalid grid rows %q: %w", parts[0], err)
	}
	cols, err := cast.ToIntE(strings.TrimSpace(parts[1]))
	if err != nil {
		return grid.Grid{}, fmt.Errorf("invalid grid cols %q: %w", parts[1], err)
	}
	return grid.Grid{Rows: rows, Cols: cols}, nil
}

func normalizePageSize(v string) string {
	switch strings.ToLower(v) {
	case "a3":
		return "A3"
	case "a4":
		return "A4"
	case "a5":
		return "A5"
	case "letter":
		return "Letter"
	case "legal":
		return "Legal"
	default:
		return v
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks if the configuration is valid and resolves the time zone.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := charts.ParsePalette(strings.Join(c.Palette, ",")); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := language.Parse(c.Locale); err != nil {
		return fmt.Errorf("invalid locale %q: %w", c.Locale, err)
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	c.Location = loc
	return nil
}

// HistoryPath returns the render ledger path, or "" when the ledger is off.
func (c *Config) HistoryPath() string {
	switch strings.ToLower(strings.TrimSpace(c.HistoryDB)) {
	case "off", "none", "false":
		return ""
	case "":
		return filepath.Join(c.DataDir, "history.db")
	}
	return c.HistoryDB
}

// Language returns the parsed locale.
func (c *Config) Language() language.Tag {
	tag, err := language.Parse(c.Locale)
	if err != nil {
		return language.English
	}
	return tag
}
