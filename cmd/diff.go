package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dheyman/epiflux/internal/calendar"
	"github.com/dheyman/epiflux/internal/diffbuilder"
	"github.com/dheyman/epiflux/internal/model"
	"github.com/dheyman/epiflux/internal/progress"
	"github.com/dheyman/epiflux/internal/render"
	"github.com/dheyman/epiflux/internal/sources"
	"github.com/dheyman/epiflux/internal/store"
	"github.com/dheyman/epiflux/internal/util"
)

var diffForce bool

var diffCmd = &cobra.Command{
	Use:   "diff <artifact> (<snapshot> <publication_date>)...",
	Short: "Fold one or more dated line-listing snapshots into the publication-diff artifact",
	Long: `Loads the existing publication-diff artifact (if any), applies each given
snapshot in order at its publication date, and rewrites the artifact
atomically.

Each snapshot/publication_date pair is applied in the order given; repeated
invocations are expected to grow the same artifact across runs. A publication
date that has already been merged is refused unless --force is given.`,
	Example: `  epiflux diff diff.csv snapshot-2021-04-05.csv 2021-04-05
  epiflux diff diff.csv s1.csv 2021-04-04 s2.csv.gz 2021-04-05`,
	Args: cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		artifactPath := args[0]
		pairs := args[1:]
		if len(pairs)%2 != 0 {
			return fmt.Errorf("snapshots must be given in (snapshot, publication_date) pairs")
		}

		existing, err := diffbuilder.LoadFile(artifactPath)
		if err != nil {
			return fmt.Errorf("loading existing artifact: %w", err)
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		type pending struct {
			path    string
			pubDate string
		}
		var jobs []pending
		maxDate := calendar.GlobalStart
		for i := 0; i < len(pairs); i += 2 {
			jobs = append(jobs, pending{path: pairs[i], pubDate: pairs[i+1]})
			d, err := util.ParseDate(pairs[i+1])
			if err != nil {
				return err
			}
			if d.After(maxDate) {
				maxDate = d
			}
		}
		for _, rec := range existing {
			if rec.Date.After(maxDate) {
				maxDate = rec.Date
			}
		}
		// pad 30 days past the furthest date we've seen so the publication
		// slot (pubDate-1), the retraction slot before it and any delay
		// lookback always stay in range.
		idx := calendar.New(calendar.GlobalStart, calendar.AddDays(maxDate, 30))

		builder, err := diffbuilder.LoadExisting(idx, existing)
		if err != nil {
			return fmt.Errorf("replaying existing artifact: %w", err)
		}

		pubDates := make([]time.Time, len(jobs))
		for i, job := range jobs {
			d, err := util.ParseDate(job.pubDate)
			if err != nil {
				return err
			}
			pubDates[i] = d
			if !diffForce {
				merged, err := deps.Store.HasMerged(d)
				if err != nil {
					return fmt.Errorf("checking merge ledger: %w", err)
				}
				if merged {
					return fmt.Errorf("publication date %s already merged (use --force to re-apply)", job.pubDate)
				}
			}
		}

		// Snapshot files are independent to parse (no ordering constraint
		// until MergeSnapshot is applied), so decode them concurrently and
		// merge sequentially afterward.
		parsed := make([][]model.InfectionRecord, len(jobs))
		g, gctx := errgroup.WithContext(cmd.Context())
		for i, job := range jobs {
			i, job := i, job
			g.Go(func() error {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				rc, err := sources.MagicOpen(job.path)
				if err != nil {
					return fmt.Errorf("opening %s: %w", job.path, err)
				}
				defer rc.Close()
				records, err := sources.ReadInfectionSnapshot(rc)
				if err != nil {
					return fmt.Errorf("parsing %s: %w", job.path, err)
				}
				parsed[i] = records
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		var sink progress.Sink
		if deps.Config.Quiet {
			sink = progress.NewSummarySink(nopWriter{})
		} else if deps.Config.Verbose {
			sink = progress.NewTTYSink(cmd.ErrOrStderr())
		} else {
			sink = progress.NewSummarySink(cmd.ErrOrStderr())
		}
		meter := progress.NewStep(sink, "merge", len(jobs))

		for i, job := range jobs {
			if err := builder.MergeSnapshot(parsed[i], pubDates[i]); err != nil {
				return fmt.Errorf("merging %s at %s: %w", job.path, job.pubDate, err)
			}
			meter.Update(i + 1)
		}
		meter.Finish(nil)

		out := builder.Writeback()
		if err := diffbuilder.WriteFile(artifactPath, out); err != nil {
			return fmt.Errorf("writing artifact: %w", err)
		}

		// the ledger entry is written only once the artifact rewrite has
		// succeeded; a crash before this point leaves the date re-appliable.
		for i, job := range jobs {
			if err := deps.Store.PutMergeRecord(store.MergeRecord{
				PublicationDate: pubDates[i],
				SnapshotPath:    job.path,
				RecordCount:     len(parsed[i]),
			}); err != nil {
				return fmt.Errorf("recording merge: %w", err)
			}
		}

		if !deps.Config.Quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %d rows to %s\n\n", len(out), artifactPath)
			return render.DiffStats(cmd.OutOrStdout(), out)
		}
		return nil
	},
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func init() {
	rootCmd.AddCommand(diffCmd)
	diffCmd.Flags().BoolVar(&diffForce, "force", false, "re-apply a publication date that was already merged")
}
