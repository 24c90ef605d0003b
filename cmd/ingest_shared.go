package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dheyman/epiflux/internal/progress"
	"github.com/dheyman/epiflux/internal/render"
	"github.com/dheyman/epiflux/internal/tsdb"
)

// runIngestStream prints the stream plan and, unless dryRun, ships the given
// keys/fields to the configured database — the shared tail of every ingest
// command (icu/vaccination/hospitalization), factored out of cmd/stream.go's
// RunE so each ancillary stream doesn't re-derive chunking, progress-sink
// selection, and the success message on its own.
func runIngestStream[K comparable](cmd *cobra.Command, measurement string, start time.Time, ndays int, fieldNames []string, keys []tsdb.Key[K], fields []tsdb.FieldDescriptor[K], dryRun bool) error {
	chunk := 1
	if len(keys) > 0 {
		chunk = 5000 / len(keys)
		if chunk < 1 {
			chunk = 1
		}
	}

	plan := render.StreamPlan{
		Measurement: measurement,
		Start:       start,
		Days:        ndays,
		KeyCount:    len(keys),
		ChunkDays:   chunk,
		FieldNames:  fieldNames,
	}
	if err := render.PrintStreamPlan(cmd.OutOrStdout(), plan); err != nil {
		return err
	}
	if dryRun {
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
	if err := tsdb.Stream(ctx, deps.Client, measurement, start, ndays, precision, keys, fields); err != nil {
		return fmt.Errorf("streaming to tsdb: %w", err)
	}
	meter.Finish(&ndays)

	if !deps.Config.Quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Streamed %d keys over %d days to measurement %q\n", len(keys), ndays, measurement)
	}
	return nil
}

// dateWindow returns the half-open [start, start+ndays) calendar window
// covering every date in dates, padded a further `pad` days past the latest
// one so trailing views (Shift/Diff) never run off the end.
func dateWindow(dates []time.Time, pad int) (start time.Time, ndays int) {
	if len(dates) == 0 {
		return time.Time{}, 0
	}
	start, end := dates[0], dates[0]
	for _, d := range dates[1:] {
		if d.Before(start) {
			start = d
		}
		if d.After(end) {
			end = d
		}
	}
	end = end.AddDate(0, 0, pad)
	ndays = int(end.Sub(start).Hours()/24) + 1
	return start, ndays
}
