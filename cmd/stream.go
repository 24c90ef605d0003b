package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dheyman/epiflux/internal/calendar"
	"github.com/dheyman/epiflux/internal/counters"
	"github.com/dheyman/epiflux/internal/diffbuilder"
	"github.com/dheyman/epiflux/internal/lineproto"
	"github.com/dheyman/epiflux/internal/model"
	"github.com/dheyman/epiflux/internal/progress"
	"github.com/dheyman/epiflux/internal/render"
	"github.com/dheyman/epiflux/internal/tsdb"
	"github.com/dheyman/epiflux/internal/util"
	"github.com/dheyman/epiflux/internal/views"
)

var (
	streamMeasurement string
	streamStart       string
	streamDays        int
	streamDryRun      bool
)

var streamCmd = &cobra.Command{
	Use:   "stream <artifact>",
	Short: "Derive per-key daily/weekly counters from a diff artifact and write them to the time-series database",
	Long: `Reads a publication-diff artifact, derives per (district, age group, sex)
key the cumulative/daily/trailing-7-day/prior-week counter series for cases
and the cumulative/daily series for deaths and recovered, adds the frozen
reporting-date 7-day cases and the retracted cases, and streams them as
line-protocol writes.

Use --dry-run to print the stream plan without sending a single request.`,
	Example: `  epiflux stream diff.csv --measurement infections --start 2020-01-01 --days 400
  epiflux stream diff.csv --measurement infections --days 400 --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if streamMeasurement == "" {
			return fmt.Errorf("--measurement is required")
		}
		if streamDays <= 0 {
			return fmt.Errorf("--days must be positive")
		}

		start := calendar.GlobalStart
		if streamStart != "" {
			d, err := util.ParseDate(streamStart)
			if err != nil {
				return err
			}
			start = d
		}

		records, err := diffbuilder.LoadFile(args[0])
		if err != nil {
			return fmt.Errorf("loading artifact: %w", err)
		}
		if len(records) == 0 {
			return fmt.Errorf("%s has no rows to stream", args[0])
		}

		end := calendar.AddDays(start, streamDays)
		idx := calendar.New(calendar.GlobalStart, end)

		builder, err := diffbuilder.LoadExisting(idx, records)
		if err != nil {
			return fmt.Errorf("replaying artifact: %w", err)
		}

		casesGroup := counters.FromD1(builder.CasesByPub)
		deathsGroup := counters.FromD1(builder.DeathsByPub)
		recoveredGroup := counters.FromD1(builder.RecoveredByPub)

		fields := []tsdb.FieldDescriptor[model.PartialCaseKey]{
			{Name: "cases_cum", View: views.Identity[model.PartialCaseKey, uint64](casesGroup.Cum)},
			{Name: "cases_d1", View: views.Identity[model.PartialCaseKey, uint64](casesGroup.D1)},
			{Name: "cases_d7", View: views.Identity[model.PartialCaseKey, uint64](casesGroup.D7)},
			{Name: "cases_d7s7", View: views.Identity[model.PartialCaseKey, uint64](casesGroup.D7S7)},
			{Name: "deaths_cum", View: views.Identity[model.PartialCaseKey, uint64](deathsGroup.Cum)},
			{Name: "deaths_d1", View: views.Identity[model.PartialCaseKey, uint64](deathsGroup.D1)},
			{Name: "recovered_cum", View: views.Identity[model.PartialCaseKey, uint64](recoveredGroup.Cum)},
			{Name: "recovered_d1", View: views.Identity[model.PartialCaseKey, uint64](recoveredGroup.D1)},
			{Name: "cases_rep_d7", View: views.Identity[model.PartialCaseKey, uint64](builder.CasesByRepD7)},
			{Name: "cases_retracted", View: views.Identity[model.PartialCaseKey, uint64](builder.CasesRetracted)},
		}
		fieldNames := make([]string, len(fields))
		for i, f := range fields {
			fieldNames[i] = f.Name
		}

		partialKeys := builder.Keyset()
		keys := make([]tsdb.Key[model.PartialCaseKey], len(partialKeys))
		for i, k := range partialKeys {
			keys[i] = tsdb.Key[model.PartialCaseKey]{
				Value: k,
				Tags: []lineproto.KV{
					{Name: "district", Value: lineproto.TagValue(fmt.Sprintf("%d", k.District))},
					{Name: "age_group", Value: lineproto.TagValue(k.AgeGroup.String())},
					{Name: "sex", Value: lineproto.TagValue(k.Sex.String())},
				},
			}
		}

		chunk := 1
		if len(keys) > 0 {
			chunk = 5000 / len(keys)
			if chunk < 1 {
				chunk = 1
			}
		}

		plan := render.StreamPlan{
			Measurement: streamMeasurement,
			Start:       start,
			Days:        streamDays,
			KeyCount:    len(keys),
			ChunkDays:   chunk,
			FieldNames:  fieldNames,
		}
		if err := render.PrintStreamPlan(cmd.OutOrStdout(), plan); err != nil {
			return err
		}
		if streamDryRun {
			return nil
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		precision := parsePrecision(deps.Config.Precision)

		var sink progress.Sink
		if deps.Config.Quiet {
			sink = progress.NewSummarySink(nopWriter{})
		} else if deps.Config.Verbose {
			sink = progress.NewTTYSink(cmd.ErrOrStderr())
		} else {
			sink = progress.NewSummarySink(cmd.ErrOrStderr())
		}
		meter := progress.NewCount(sink, "stream")

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if err := tsdb.Stream(ctx, deps.Client, streamMeasurement, start, streamDays, precision, keys, fields); err != nil {
			return fmt.Errorf("streaming to tsdb: %w", err)
		}
		meter.Finish(&streamDays)

		if !deps.Config.Quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Streamed %d keys over %d days to measurement %q\n", len(keys), streamDays, streamMeasurement)
		}
		return nil
	},
}

// parsePrecision maps a config precision string to its lineproto.Precision,
// defaulting to seconds for anything unrecognized.
func parsePrecision(s string) lineproto.Precision {
	switch s {
	case "ns":
		return lineproto.Nanoseconds
	case "u", "us":
		return lineproto.Microseconds
	case "ms":
		return lineproto.Milliseconds
	default:
		return lineproto.Seconds
	}
}

func init() {
	rootCmd.AddCommand(streamCmd)
	streamCmd.Flags().StringVar(&streamMeasurement, "measurement", "", "target measurement name (required)")
	streamCmd.Flags().StringVar(&streamStart, "start", "", "first date to stream, YYYY-MM-DD (default: "+calendar.GlobalStart.Format("2006-01-02")+")")
	streamCmd.Flags().IntVar(&streamDays, "days", 0, "number of days to stream (required)")
	streamCmd.Flags().BoolVar(&streamDryRun, "dry-run", false, "print the stream plan and exit without writing")
}
