// Package cmd implements the epiflux CLI command tree.
// This file defines the root command and registers all global persistent flags.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dheyman/epiflux/internal/app"
	"github.com/dheyman/epiflux/internal/calendar"
	"github.com/dheyman/epiflux/internal/config"
)

// globalFlags holds the parsed values of all persistent (global) flags.
// buildDeps folds them into the Config that commands receive through their
// deps; a few commands (diffbase, version, config get) also read it directly.
var globalFlags struct {
	TSDBURL  string
	Database string
	Format   string
	Quiet    bool
	Verbose  bool
	Debug    bool
}

// rootCmd is the base command. Running `epiflux` with no subcommand
// prints help.
var rootCmd = &cobra.Command{
	Use:   "epiflux",
	Short: "epiflux — epidemiological record ingestion and diff pipeline",
	Long: `epiflux ingests government-published epidemiological record streams
(infection line-listings, ICU occupancy, vaccination counters, hospitalization
sums, demographics, holiday intervals) and emits dense daily per-key time
series into a line-protocol time-series database.

It also maintains a durable publication-diff artifact: a re-derivable
per-publication tabulation that survives across incremental runs so that
late corrections in the upstream feed are preserved.

Quick start:
  epiflux config init
  epiflux diff diff.csv snapshot-2021-04-05.csv 2021-04-05
  epiflux stream diff.csv --measurement infections --start 2020-01-01 --days 30`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// buildDeps resolves config and constructs the dependency container. Called
// at the start of each command's RunE.
func buildDeps() (*app.Deps, error) {
	cfg, err := config.Load(config.Flags{
		TSDBURL:  globalFlags.TSDBURL,
		Database: globalFlags.Database,
	})
	if err != nil {
		return nil, err
	}
	cfg.Quiet = globalFlags.Quiet
	cfg.Verbose = globalFlags.Verbose
	cfg.Debug = globalFlags.Debug

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if !cfg.CalendarStart.IsZero() {
		calendar.GlobalStart = cfg.CalendarStart
	}

	return app.New(cfg)
}

func init() {
	pf := rootCmd.PersistentFlags()

	pf.StringVar(&globalFlags.TSDBURL, "tsdb-url", "",
		"time-series database URL (overrides env INFLUXDB_URL and config.json)")
	pf.StringVar(&globalFlags.Database, "database", "",
		"target database name (default: epiflux)")
	pf.StringVar(&globalFlags.Format, "format", "text",
		"output format for commands that support it: text|json|jsonl")
	pf.BoolVar(&globalFlags.Quiet, "quiet", false,
		"suppress all non-error output")
	pf.BoolVar(&globalFlags.Verbose, "verbose", false,
		"show progress and timing detail")
	pf.BoolVar(&globalFlags.Debug, "debug", false,
		"log HTTP requests and responses (credentials redacted)")
}
