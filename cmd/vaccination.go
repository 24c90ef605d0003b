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
	vaccinationMeasurement string
	vaccinationDryRun      bool
)

// vaccinationKey identifies a vaccination counter series: district-level, or
// the federal "bundesfoo" total when sources.ReadVaccination reports no
// district (the LandkreisId_Impfort == 17000 sentinel).
type vaccinationKey struct {
	District    model.DistrictID
	HasDistrict bool
	AgeGroup    model.AgeGroup
}

var vaccinationCmd = &cobra.Command{
	Use:   "vaccination <file>",
	Short: "Derive vaccination counter series from a daily dose-count stream and ship them to the time-series database",
	Long: `Reads the vaccination counter stream (one row per day per district/age
group/dose-level reporting a count of doses administered that day) and
derives cumulative/daily counter groups per dose level (first, basic
immunization, full), per ([district, ]age group) key.`,
	Example: `  epiflux vaccination vaccination.csv --measurement vaccinations`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if vaccinationMeasurement == "" {
			return fmt.Errorf("--measurement is required")
		}

		rc, err := sources.MagicOpen(args[0])
		if err != nil {
			return err
		}
		defer rc.Close()

		records, err := sources.ReadVaccination(rc)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", args[0], err)
		}
		if len(records) == 0 {
			return fmt.Errorf("%s has no vaccination rows to ship", args[0])
		}

		dates := make([]time.Time, len(records))
		for i, r := range records {
			dates[i] = r.Date
		}
		start, ndays := dateWindow(dates, 7)
		idx := calendar.New(start, calendar.AddDays(start, ndays))

		first := series.NewWithIndex[vaccinationKey, uint64](idx)
		basic := series.NewWithIndex[vaccinationKey, uint64](idx)
		full := series.NewWithIndex[vaccinationKey, uint64](idx)

		for _, r := range records {
			slot, ok := idx.DateIndex(r.Date)
			if !ok {
				continue
			}
			k := vaccinationKey{AgeGroup: r.AgeGroup}
			if r.District != nil {
				k.District = *r.District
				k.HasDistrict = true
			}
			switch r.Level {
			case model.VaccinationFirst:
				first.GetOrCreate(k)[slot] += r.Count
			case model.VaccinationBasic:
				basic.GetOrCreate(k)[slot] += r.Count
			case model.VaccinationFull:
				full.GetOrCreate(k)[slot] += r.Count
			}
		}

		firstGroup := counters.FromD1(first)
		basicGroup := counters.FromD1(basic)
		fullGroup := counters.FromD1(full)

		fields := []tsdb.FieldDescriptor[vaccinationKey]{
			{Name: "vacc_first_cum", View: views.Identity[vaccinationKey, uint64](firstGroup.Cum)},
			{Name: "vacc_first_d1", View: views.Identity[vaccinationKey, uint64](firstGroup.D1)},
			{Name: "vacc_basic_cum", View: views.Identity[vaccinationKey, uint64](basicGroup.Cum)},
			{Name: "vacc_basic_d1", View: views.Identity[vaccinationKey, uint64](basicGroup.D1)},
			{Name: "vacc_full_cum", View: views.Identity[vaccinationKey, uint64](fullGroup.Cum)},
			{Name: "vacc_full_d1", View: views.Identity[vaccinationKey, uint64](fullGroup.D1)},
		}
		fieldNames := make([]string, len(fields))
		for i, f := range fields {
			fieldNames[i] = f.Name
		}

		seen := make(map[vaccinationKey]struct{})
		for _, k := range first.Keys() {
			seen[k] = struct{}{}
		}
		for _, k := range basic.Keys() {
			seen[k] = struct{}{}
		}
		for _, k := range full.Keys() {
			seen[k] = struct{}{}
		}
		keys := make([]tsdb.Key[vaccinationKey], 0, len(seen))
		for k := range seen {
			tags := []lineproto.KV{
				{Name: "age_group", Value: lineproto.TagValue(k.AgeGroup.String())},
			}
			if k.HasDistrict {
				tags = append(tags, lineproto.KV{Name: "district", Value: lineproto.TagValue(fmt.Sprintf("%d", k.District))})
			}
			keys = append(keys, tsdb.Key[vaccinationKey]{Value: k, Tags: tags})
		}

		return runIngestStream(cmd, vaccinationMeasurement, start, ndays, fieldNames, keys, fields, vaccinationDryRun)
	},
}

func init() {
	rootCmd.AddCommand(vaccinationCmd)
	vaccinationCmd.Flags().StringVar(&vaccinationMeasurement, "measurement", "", "target measurement name (required)")
	vaccinationCmd.Flags().BoolVar(&vaccinationDryRun, "dry-run", false, "print the stream plan and exit without writing")
}
