package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate TEMPLATE...",
		Short: "Check report templates without rendering",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				tpl, err := loadTemplate(path, cfg)
				if err != nil {
					failed++
					fmt.Fprintf(out, "FAIL %s: %v\n", path, err)
					continue
				}
				figures := 0
				for _, layout := range tpl.Layouts {
					figures += len(layout.Figures)
				}
				fmt.Fprintf(out, "OK   %s (%d layouts, %d figures, grid %dx%d)\n",
					path, len(tpl.Layouts), figures, tpl.Grid.Rows, tpl.Grid.Cols)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d templates invalid", failed, len(args))
			}
			return nil
		},
	}
}
