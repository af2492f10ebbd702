package main

import (
	"github.com/spf13/cobra"

	"github.com/warp/emissions-engine/emissions"
)

func newSamplesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "samples",
		Short: "List or load demo datasets",
	}
	cmd.AddCommand(newSamplesListCmd(), newSamplesLoadCmd(opts))
	return cmd
}

func newSamplesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List demo datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, s := range emissions.Samples() {
				years := emissions.Dataset(s.Records).Sorted().Years()
				cmd.Printf("%-12s %-24s %d-%d  %s\n", s.ID, s.Name, years[0], years[len(years)-1], s.Description)
			}
			return nil
		},
	}
}

func newSamplesLoadCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "load <id>",
		Short:   "Replace the dataset with a demo dataset",
		Long:    "Replaces every record with the sample's records. Existing data is discarded.",
		Example: `  emissions samples load default`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if err := loadSample(cmd.Context(), a, args[0]); err != nil {
				return err
			}
			cmd.Printf("Loaded sample %s\n", args[0])
			return nil
		},
	}
}
