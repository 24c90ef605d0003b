package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dheyman/epiflux/internal/lineproto"
	"github.com/dheyman/epiflux/internal/sources"
)

var holidaysMeasurement string

var holidaysCmd = &cobra.Command{
	Use:   "holidays <file>",
	Short: "Ship a public-holiday interval file to the time-series database as discrete events",
	Long: `Reads a holiday-interval stream (state id, name, start, end) and writes one
line-protocol point per interval, tagged by state and holiday name, to the
configured measurement. Unlike the daily series stream emits, this is an
event measurement: one point per holiday, not one point per day.`,
	Example: `  epiflux holidays holidays.csv --measurement holidays`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if holidaysMeasurement == "" {
			return fmt.Errorf("--measurement is required")
		}

		rc, err := sources.MagicOpen(args[0])
		if err != nil {
			return err
		}
		defer rc.Close()

		records, err := sources.ReadHolidays(rc)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", args[0], err)
		}
		if len(records) == 0 {
			return fmt.Errorf("%s has no holiday intervals to ship", args[0])
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		precision := parsePrecision(deps.Config.Precision)

		var sb strings.Builder
		for _, h := range records {
			days := int64(h.End.Sub(h.Start).Hours() / 24)
			r := lineproto.Readout{
				Measurement: holidaysMeasurement,
				Tags: []lineproto.KV{
					{Name: "state", Value: lineproto.TagValue(strconv.FormatUint(uint64(h.State), 10))},
					{Name: "holiday", Value: lineproto.TagValue(h.Holiday)},
				},
				Fields: []lineproto.KV{
					{Name: "active", Value: lineproto.IntValue(1)},
					{Name: "days", Value: lineproto.IntValue(days)},
				},
				Timestamp: h.Start,
				Precision: precision,
			}
			if err := r.Write(&sb); err != nil {
				return fmt.Errorf("encoding %s: %w", h.Holiday, err)
			}
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if err := deps.Client.Post(ctx, sb.String()); err != nil {
			return fmt.Errorf("writing holiday events: %w", err)
		}

		if !deps.Config.Quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Shipped %d holiday events to measurement %q\n", len(records), holidaysMeasurement)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(holidaysCmd)
	holidaysCmd.Flags().StringVar(&holidaysMeasurement, "measurement", "", "target measurement name (required)")
}
