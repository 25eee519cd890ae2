package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rcourtman/pulse-reports/internal/config"
	"github.com/rcourtman/pulse-reports/internal/history"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
)

type historyOptions struct {
	template string
	failed   bool
	since    string
	limit    int
	stats    bool
}

func newHistoryCmd() *cobra.Command {
	var opts historyOptions
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent renders",
		Long: `List renders recorded in the history ledger, newest first.

The ledger lives at <data-dir>/history.db unless PULSE_REPORTS_HISTORY_DB
names another file; PULSE_REPORTS_HISTORY_DB=off disables it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openHistoryStrict(cmd, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if opts.stats {
				return printHistoryStats(cmd, store)
			}

			filter := history.Filter{Limit: opts.limit}
			if opts.template != "" {
				filter.Template = templateKey(opts.template)
			}
			if opts.failed {
				filter.Outcome = history.OutcomeError
			}
			if opts.since != "" {
				d, err := cast.ToDurationE(opts.since)
				if err != nil {
					return fmt.Errorf("--since: %w", err)
				}
				filter.Since = time.Now().Add(-d)
			}

			records, err := store.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No renders recorded")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tTEMPLATE\tKIND\tOUTCOME\tPAGES\tSIZE\tDURATION\tRENDER ID")
			for _, rec := range records {
				outcome := string(rec.Outcome)
				if rec.ErrorType != "" {
					outcome += " (" + rec.ErrorType + ")"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
					humanize.Time(rec.StartedAt),
					rec.Template,
					rec.Kind,
					outcome,
					rec.Pages,
					humanize.Bytes(uint64(rec.Bytes)),
					rec.Duration.Round(time.Millisecond),
					rec.RenderID,
				)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&opts.template, "template", "", "only renders of this template file")
	cmd.Flags().BoolVar(&opts.failed, "failed", false, "only failed renders")
	cmd.Flags().StringVar(&opts.since, "since", "", "only renders newer than this duration (e.g. 24h)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 20, "maximum number of renders to list (0 for all)")
	cmd.Flags().BoolVar(&opts.stats, "stats", false, "print ledger totals instead of renders")

	cmd.AddCommand(newHistoryPruneCmd())
	return cmd
}

func newHistoryPruneCmd() *cobra.Command {
	var olderThan string
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old renders from the history ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			age := cfg.HistoryRetention
			if olderThan != "" {
				if age, err = cast.ToDurationE(olderThan); err != nil {
					return fmt.Errorf("--older-than: %w", err)
				}
			}
			if age <= 0 {
				return errors.New("--older-than must be positive")
			}

			store, err := openHistoryStrict(cmd, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Prune(cmd.Context(), time.Now().Add(-age))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s renders older than %s\n", humanize.Comma(n), age)
			return nil
		},
	}
	cmd.Flags().StringVar(&olderThan, "older-than", "", "age cutoff (default: the configured retention)")
	return cmd
}

// openHistoryStrict opens the ledger for the history commands, where a
// missing ledger is an error. Retention is left to prune.
func openHistoryStrict(cmd *cobra.Command, cfg *config.Config) (*history.Store, error) {
	path := cfg.HistoryPath()
	if path == "" {
		return nil, errors.New("render history is disabled (PULSE_REPORTS_HISTORY_DB=off)")
	}
	return history.Open(cmd.Context(), history.Config{DBPath: path})
}

func printHistoryStats(cmd *cobra.Command, store *history.Store) error {
	stats, err := store.GetStats(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Ledger:   %s (%s)\n", stats.DBPath, humanize.Bytes(uint64(stats.DBSize)))
	fmt.Fprintf(out, "Renders:  %s (%s failed)\n", humanize.Comma(stats.Renders), humanize.Comma(stats.Failures))
	fmt.Fprintf(out, "Pages:    %s\n", humanize.Comma(stats.Pages))
	fmt.Fprintf(out, "Written:  %s\n", humanize.Bytes(uint64(stats.Bytes)))
	if !stats.LastRender.IsZero() {
		fmt.Fprintf(out, "Oldest:   %s\n", humanize.Time(stats.Oldest))
		fmt.Fprintf(out, "Latest:   %s\n", humanize.Time(stats.LastRender))
	}
	return nil
}
