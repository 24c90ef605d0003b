package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dheyman/epiflux/internal/calendar"
	"github.com/dheyman/epiflux/internal/diffbuilder"
	"github.com/dheyman/epiflux/internal/sources"
	"github.com/dheyman/epiflux/internal/util"
)

var diffbaseCmd = &cobra.Command{
	Use:   "diffbase <snapshot> <base_date> <output.csv.gz>",
	Short: "Export a one-shot cumulative diff-base snapshot from a line-listing file",
	Long: `Folds a single line-listing snapshot into cumulative-to-date totals as of
base_date and writes a gzip-compressed diff-base export.

The export is a standalone file of cumulative totals. The incremental "diff"
command does not read it: it refuses compressed input and expects its own
artifact columns.`,
	Example: `  epiflux diffbase snapshot-2021-04-05.csv 2021-04-05 base-2021-04-05.csv.gz`,
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		snapshotPath, baseDateArg, outPath := args[0], args[1], args[2]

		baseDate, err := util.ParseDate(baseDateArg)
		if err != nil {
			return err
		}

		rc, err := sources.MagicOpen(snapshotPath)
		if err != nil {
			return fmt.Errorf("opening %s: %w", snapshotPath, err)
		}
		defer rc.Close()

		records, err := sources.ReadInfectionSnapshot(rc)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", snapshotPath, err)
		}

		// pad 30 days past the base date so retraction-at-(len-2) never runs
		// off the end of the window.
		idx := calendar.New(calendar.GlobalStart, calendar.AddDays(baseDate, 30))

		base, err := diffbuilder.LoadBase(idx, records)
		if err != nil {
			return fmt.Errorf("folding %s: %w", snapshotPath, err)
		}
		base.Cumulate()

		out := base.WriteAllBase()
		if err := diffbuilder.WriteBaseFile(outPath, out); err != nil {
			return fmt.Errorf("writing %s: %w", outPath, err)
		}

		if !globalFlags.Quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %d rows to %s\n", len(out), outPath)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(diffbaseCmd)
}
