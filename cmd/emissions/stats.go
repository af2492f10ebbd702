package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/warp/emissions-engine/emissions"
)

func newStatsCmd(opts *rootOptions) *cobra.Command {
	var (
		from, to int
		series   []string
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print total, baseline and reduction for a year range",
		Long: `Compares the latest and earliest years in the range, summing the
selected scope totals. Without --from/--to the whole dataset is used.`,
		Example: `  # All years, all scopes
  emissions stats

  # Scope 1 and 2 from 2020 to 2023
  emissions stats --from 2020 --to 2023 --series scope1,scope2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enabled := emissions.DefaultSeries()
			if len(series) > 0 {
				var err error
				if enabled, err = emissions.ParseSeries(series); err != nil {
					return err
				}
			}

			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			all, err := a.inventory.List(cmd.Context())
			if err != nil {
				return err
			}
			start, end := emissions.ResolveRange(all, from, to)
			if start > end {
				return fmt.Errorf("%w: %d > %d", emissions.ErrInvalidRange, start, end)
			}

			filtered := emissions.FilterByRange(all, start, end)
			stats := emissions.ComputeStats(filtered, all, enabled)

			names := make([]string, 0, len(enabled))
			for _, f := range enabled.Fields() {
				names = append(names, f.Label())
			}
			cmd.Printf("Range:      %d-%d (%d years)\n", start, end, len(filtered))
			cmd.Printf("Series:     %s\n", strings.Join(names, ", "))
			cmd.Printf("Total:      %.1f tCO2e (%d)\n", emissions.RoundForDisplay(stats.Total), stats.LatestYear)
			cmd.Printf("Baseline:   %.1f tCO2e (%d)\n", emissions.RoundForDisplay(stats.Baseline), stats.BaselineYear)
			cmd.Printf("Reduction:  %.1f%%\n", emissions.RoundForDisplay(stats.ReductionPercent))
			cmd.Printf("Scopes:     %d tracked\n", stats.TrackedScopeCount)
			return nil
		},
	}

	cmd.Flags().IntVar(&from, "from", 0, "first year (default: earliest recorded)")
	cmd.Flags().IntVar(&to, "to", 0, "last year (default: latest recorded)")
	cmd.Flags().StringSliceVar(&series, "series", nil, "series keys, e.g. scope1,scope2 (default: all scopes)")
	return cmd
}
