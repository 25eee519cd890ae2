package reporting

import (
	"github.com/rcourtman/pulse-reports/internal/config"
)

// OptionsFromConfig maps the loaded configuration onto engine options.
func OptionsFromConfig(cfg *config.Config) Options {
	setup := DefaultPageSetup()
	setup.Size = cfg.PageSize
	setup.Orientation = cfg.Orientation
	setup.Margin = cfg.PageMargin
	setup.HeaderSize = cfg.HeaderSize
	setup.FooterSize = cfg.FooterSize
	setup.PageNumbers = cfg.FooterSize > 0

	return Options{
		Page:     setup,
		Margin:   cfg.SlotMargin,
		Palette:  cfg.Palette,
		Language: cfg.Language(),
		Location: cfg.Location,
		DPI:      cfg.ChartDPI,
		Source:   DirSource{Dir: cfg.DataDir},
	}
}
