package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every year as CSV",
		Long:  "Writes the whole dataset with the full column set (Year, scopes, subcategories), ascending by year.",
		Example: `  # Print to stdout
  emissions export

  # Write to a file
  emissions export -o emissions_data.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if output == "" || output == "-" {
				return a.inventory.ExportCSV(cmd.Context(), cmd.OutOrStdout())
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create %s: %w", output, err)
			}
			w := bufio.NewWriter(f)
			if err := a.inventory.ExportCSV(cmd.Context(), w); err != nil {
				f.Close()
				return err
			}
			if err := w.Flush(); err != nil {
				f.Close()
				return fmt.Errorf("write %s: %w", output, err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close %s: %w", output, err)
			}
			a.logger.Info().Str("file", output).Msg("export written")
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", `output file ("-" or empty for stdout)`)
	return cmd
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a CSV file",
		Long: `Parses a CSV file and merges it into the dataset. Existing years are
replaced wholesale. Any invalid row aborts the whole import.`,
		Example: `  emissions import inventory.csv`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			path := args[0]
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open %s: %w", path, err)
			}
			defer f.Close()

			report, err := a.inventory.ImportCSV(cmd.Context(), f, filepath.Base(path))
			if err != nil {
				return fmt.Errorf("import %s: %w", path, err)
			}

			cmd.Printf("Imported %s: %d created %v, %d updated %v\n",
				path,
				len(report.CreatedYears), report.CreatedYears,
				len(report.UpdatedYears), report.UpdatedYears)
			return nil
		},
	}
	return cmd
}
