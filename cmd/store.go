package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dheyman/epiflux/internal/render"
	"github.com/dheyman/epiflux/internal/sources"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect locally accumulated pipeline state",
	Long: `Commands for inspecting the merge-provenance ledger and the cached
district/state master-data table.

Use 'epiflux diff' to grow the merge ledger.
Use 'epiflux store load-districts' to populate the district cache.
Use 'epiflux cache stats' for bucket-level storage stats.`,
}

// ─── store merges ─────────────────────────────────────────────────────────────

var storeMergesCmd = &cobra.Command{
	Use:     "merges",
	Short:   "List recorded publication-date merges",
	Example: `  epiflux store merges`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		recs, err := deps.Store.ListMergeRecords()
		if err != nil {
			return fmt.Errorf("reading merge ledger: %w", err)
		}
		if len(recs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No merges recorded.")
			fmt.Fprintln(cmd.OutOrStdout(), "  Use: epiflux diff <artifact> <snapshot> <publication_date>")
			return nil
		}
		return render.MergeLedger(cmd.OutOrStdout(), recs)
	},
}

// ─── store districts ──────────────────────────────────────────────────────────

var storeDistrictsCmd = &cobra.Command{
	Use:     "districts",
	Short:   "List the cached district master-data table",
	Example: `  epiflux store districts`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		districts, err := deps.Store.ListDistricts()
		if err != nil {
			return fmt.Errorf("reading district cache: %w", err)
		}
		if len(districts) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No districts cached.")
			fmt.Fprintln(cmd.OutOrStdout(), "  Use: epiflux store load-districts <file>")
			return nil
		}
		return render.Districts(cmd.OutOrStdout(), districts)
	},
}

// ─── store load-districts ─────────────────────────────────────────────────────

var storeLoadDistrictsCmd = &cobra.Command{
	Use:   "load-districts <file>",
	Short: "Load district/state master data from a CSV (or gzip'd CSV) file",
	Long: `Reads a Robert Koch Institute-style district master-data table and
replaces the cached district table in the local store. Transparently
decompresses .gz inputs.`,
	Example: `  epiflux store load-districts districts.csv
  epiflux store load-districts districts.csv.gz`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rc, err := sources.MagicOpen(args[0])
		if err != nil {
			return fmt.Errorf("opening %s: %w", args[0], err)
		}
		defer rc.Close()

		districts, _, err := sources.ReadDistricts(rc)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", args[0], err)
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		if err := deps.Store.PutDistrictsBatch(districts); err != nil {
			return fmt.Errorf("writing district cache: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Cached %d districts from %s\n", len(districts), args[0])
		return nil
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storeMergesCmd)
	storeCmd.AddCommand(storeDistrictsCmd)
	storeCmd.AddCommand(storeLoadDistrictsCmd)
}
