package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dheyman/epiflux/internal/calendar"
	"github.com/dheyman/epiflux/internal/counters"
	"github.com/dheyman/epiflux/internal/lineproto"
	"github.com/dheyman/epiflux/internal/model"
	"github.com/dheyman/epiflux/internal/series"
	"github.com/dheyman/epiflux/internal/sources"
	"github.com/dheyman/epiflux/internal/tsdb"
	"github.com/dheyman/epiflux/internal/views"
)

var (
	hospitalizationMeasurement string
	hospitalizationPopulation  string
	hospitalizationDryRun      bool
)

// hospKey identifies a hospitalization series at (state, age group)
// granularity, matching sources.DestatisRow's own key so population can be
// joined without any further derivation.
type hospKey struct {
	State    model.StateID
	AgeGroup model.AgeGroup
}

var hospitalizationCmd = &cobra.Command{
	Use:   "hospitalization <file>",
	Short: "Derive cumulative/daily hospitalization counters from the 7-day sum stream and ship them to the time-series database",
	Long: `Reads the "7T_Hospitalisierung_Faelle" trailing-7-day hospitalization sum
stream, unrolls it to a daily series and derives the full cumulative/d1/d7/
d7s7 counter group from it, per (state, age group) key.

With --population, joins a destatis demographics reference table broadcast
across every date via a Filled view, so the measurement carries population
alongside the hospitalization counters for downstream rate computation.`,
	Example: `  epiflux hospitalization hosp.csv --measurement hospitalizations
  epiflux hospitalization hosp.csv --measurement hospitalizations --population destatis.csv`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if hospitalizationMeasurement == "" {
			return fmt.Errorf("--measurement is required")
		}

		rc, err := sources.MagicOpen(args[0])
		if err != nil {
			return err
		}
		defer rc.Close()

		records, err := sources.ReadHospitalization(rc)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", args[0], err)
		}
		if len(records) == 0 {
			return fmt.Errorf("%s has no hospitalization rows to ship", args[0])
		}

		dates := make([]time.Time, len(records))
		for i, r := range records {
			dates[i] = r.Date
		}
		start, ndays := dateWindow(dates, 7)
		idx := calendar.New(start, calendar.AddDays(start, ndays))

		rawD7 := series.NewWithIndex[hospKey, uint64](idx)
		for _, r := range records {
			slot, ok := idx.DateIndex(r.Date)
			if !ok {
				continue
			}
			k := hospKey{State: r.State, AgeGroup: r.AgeGroup}
			rawD7.GetOrCreate(k)[slot] = r.CasesD7
		}

		// The upstream feed already reports a trailing 7-day sum rather than
		// a daily increment, so the group must be derived via FromD7
		// (unroll-then-cumsum), not FromD1.
		group := counters.FromD7(rawD7)

		fields := []tsdb.FieldDescriptor[hospKey]{
			{Name: "hosp_cases_cum", View: views.Identity[hospKey, uint64](group.Cum)},
			{Name: "hosp_cases_d1", View: views.Identity[hospKey, uint64](group.D1)},
			{Name: "hosp_cases_d7", View: views.Identity[hospKey, uint64](group.D7)},
			{Name: "hosp_cases_d7s7", View: views.Identity[hospKey, uint64](group.D7S7)},
		}

		if hospitalizationPopulation != "" {
			prc, err := sources.MagicOpen(hospitalizationPopulation)
			if err != nil {
				return err
			}
			defer prc.Close()

			popRows, err := sources.ReadDestatis(prc)
			if err != nil {
				return fmt.Errorf("parsing %s: %w", hospitalizationPopulation, err)
			}

			pop := series.NewWithIndex[hospKey, uint64](idx)
			for _, row := range popRows {
				k := hospKey{State: row.State, AgeGroup: row.AgeGroup}
				pop.GetOrCreate(k)[0] = row.Count
			}
			fields = append(fields, tsdb.FieldDescriptor[hospKey]{
				Name: "population",
				View: views.Filled[hospKey](views.Identity[hospKey, uint64](pop), idx.Start()),
			})
		}

		fieldNames := make([]string, len(fields))
		for i, f := range fields {
			fieldNames[i] = f.Name
		}

		keySet := rawD7.Keys()
		keys := make([]tsdb.Key[hospKey], len(keySet))
		for i, k := range keySet {
			keys[i] = tsdb.Key[hospKey]{
				Value: k,
				Tags: []lineproto.KV{
					{Name: "state", Value: lineproto.TagValue(fmt.Sprintf("%d", k.State))},
					{Name: "age_group", Value: lineproto.TagValue(k.AgeGroup.String())},
				},
			}
		}

		return runIngestStream(cmd, hospitalizationMeasurement, start, ndays, fieldNames, keys, fields, hospitalizationDryRun)
	},
}

func init() {
	rootCmd.AddCommand(hospitalizationCmd)
	hospitalizationCmd.Flags().StringVar(&hospitalizationMeasurement, "measurement", "", "target measurement name (required)")
	hospitalizationCmd.Flags().StringVar(&hospitalizationPopulation, "population", "", "optional destatis population reference table to join as a population field")
	hospitalizationCmd.Flags().BoolVar(&hospitalizationDryRun, "dry-run", false, "print the stream plan and exit without writing")
}
