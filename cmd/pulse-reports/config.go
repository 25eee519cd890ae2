package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
		Long:  `Inspect the Pulse Reports configuration`,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration after defaults, .env files and PULSE_REPORTS_*
environment variables have been applied.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			overrides := make([]string, 0, len(cfg.EnvOverrides))
			for name := range cfg.EnvOverrides {
				overrides = append(overrides, name)
			}
			sort.Strings(overrides)

			view := map[string]any{
				"dataDir":     cfg.DataDir,
				"logLevel":    cfg.LogLevel,
				"logFormat":   cfg.LogFormat,
				"pageSize":    cfg.PageSize,
				"orientation": cfg.Orientation,
				"pageMargin":  cfg.PageMargin,
				"headerSize":  cfg.HeaderSize,
				"footerSize":  cfg.FooterSize,
				"slotMargin":  map[string]float64{"horizontal": cfg.SlotMargin.Horizontal, "vertical": cfg.SlotMargin.Vertical},
				"grid":        fmt.Sprintf("%dx%d", cfg.DefaultGrid.Rows, cfg.DefaultGrid.Cols),
				"palette":     cfg.Palette,
				"locale":      cfg.Locale,
				"timezone":    cfg.Timezone,
				"chartDpi":    cfg.ChartDPI,
				"metricsAddr": cfg.MetricsAddr,
				"historyDb":   cfg.HistoryPath(),
				"retention":   cfg.HistoryRetention.String(),
				"envOverride": overrides,
			}
			out, err := yaml.Marshal(view)
			if err != nil {
				return fmt.Errorf("encode configuration: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})
	return cmd
}
