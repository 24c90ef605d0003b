package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dheyman/epiflux/internal/calendar"
	"github.com/dheyman/epiflux/internal/lineproto"
	"github.com/dheyman/epiflux/internal/model"
	"github.com/dheyman/epiflux/internal/series"
	"github.com/dheyman/epiflux/internal/sources"
	"github.com/dheyman/epiflux/internal/tsdb"
	"github.com/dheyman/epiflux/internal/views"
)

var (
	icuMeasurement string
	icuDryRun      bool
)

// icuKey identifies an ICU occupancy series: state-level if District is
// absent, district-level otherwise, per sources.ReadICU's optional "kreis"
// column.
type icuKey struct {
	State       model.StateID
	District    model.DistrictID
	HasDistrict bool
}

var icuCmd = &cobra.Command{
	Use:   "icu <file>",
	Short: "Ship a DIVI ICU occupancy snapshot to the time-series database",
	Long: `Reads a DIVI ICU occupancy stream and writes one gauge point per day per
(state[, district]) key: current covid cases, current invasive-ventilated
cases, and free/occupied bed counts.

Unlike the case/death/recovered counters, ICU occupancy is reported as an
absolute snapshot per day, not a cumulative total — each field is assigned
directly at its report date rather than accumulated.`,
	Example: `  epiflux icu icu.csv --measurement icu`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if icuMeasurement == "" {
			return fmt.Errorf("--measurement is required")
		}

		rc, err := sources.MagicOpen(args[0])
		if err != nil {
			return err
		}
		defer rc.Close()

		records, err := sources.ReadICU(rc)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", args[0], err)
		}
		if len(records) == 0 {
			return fmt.Errorf("%s has no ICU rows to ship", args[0])
		}

		dates := make([]time.Time, len(records))
		for i, r := range records {
			dates[i] = r.Date
		}
		start, ndays := dateWindow(dates, 0)
		idx := calendar.New(start, calendar.AddDays(start, ndays))

		cases := series.NewWithIndex[icuKey, uint64](idx)
		invasive := series.NewWithIndex[icuKey, uint64](idx)
		bedsFree := series.NewWithIndex[icuKey, uint64](idx)
		bedsOccupied := series.NewWithIndex[icuKey, uint64](idx)

		for _, r := range records {
			slot, ok := idx.DateIndex(r.Date)
			if !ok {
				continue
			}
			k := icuKey{State: r.State}
			if r.District != nil {
				k.District = *r.District
				k.HasDistrict = true
			}
			cases.GetOrCreate(k)[slot] = r.CurrentCovidCases
			invasive.GetOrCreate(k)[slot] = r.CurrentCovidInvasive
			bedsFree.GetOrCreate(k)[slot] = r.BedsFree
			bedsOccupied.GetOrCreate(k)[slot] = r.BedsOccupied
		}

		fields := []tsdb.FieldDescriptor[icuKey]{
			{Name: "icu_cases", View: views.Identity[icuKey, uint64](cases)},
			{Name: "icu_cases_invasive", View: views.Identity[icuKey, uint64](invasive)},
			{Name: "icu_beds_free", View: views.Identity[icuKey, uint64](bedsFree)},
			{Name: "icu_beds_occupied", View: views.Identity[icuKey, uint64](bedsOccupied)},
		}
		fieldNames := make([]string, len(fields))
		for i, f := range fields {
			fieldNames[i] = f.Name
		}

		keySet := cases.Keys()
		keys := make([]tsdb.Key[icuKey], len(keySet))
		for i, k := range keySet {
			tags := []lineproto.KV{
				{Name: "state", Value: lineproto.TagValue(fmt.Sprintf("%d", k.State))},
			}
			if k.HasDistrict {
				tags = append(tags, lineproto.KV{Name: "district", Value: lineproto.TagValue(fmt.Sprintf("%d", k.District))})
			}
			keys[i] = tsdb.Key[icuKey]{Value: k, Tags: tags}
		}

		return runIngestStream(cmd, icuMeasurement, start, ndays, fieldNames, keys, fields, icuDryRun)
	},
}

func init() {
	rootCmd.AddCommand(icuCmd)
	icuCmd.Flags().StringVar(&icuMeasurement, "measurement", "", "target measurement name (required)")
	icuCmd.Flags().BoolVar(&icuDryRun, "dry-run", false, "print the stream plan and exit without writing")
}
