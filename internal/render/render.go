// Package render converts pipeline state into human-readable summary tables
// for the CLI's `diff` (merge statistics), `stream` (stream plan), `store
// merges`, and `store districts` commands, narrowed to the handful of summary views an offline batch
// pipeline actually needs — there is no
// series-observation or search-result table here, since this pipeline has
// no interactive query surface.
package render

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/dheyman/epiflux/internal/model"
	"github.com/dheyman/epiflux/internal/store"
)

func newTable(w io.Writer, header []string) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)
	return tw
}

// DiffStats renders the per-district row counts and classification totals
// of a diff artifact: one row per district, aggregating across age group
// and sex.
func DiffStats(w io.Writer, records []model.DiffRecord) error {
	type totals struct {
		rows, cases, deaths, recovered, retracted uint64
	}
	byDistrict := make(map[model.DistrictID]*totals)
	var order []model.DistrictID
	for _, r := range records {
		t, ok := byDistrict[r.District]
		if !ok {
			t = &totals{}
			byDistrict[r.District] = t
			order = append(order, r.District)
		}
		t.rows++
		t.cases += r.Cases
		t.deaths += r.Deaths
		t.recovered += r.Recovered
		t.retracted += r.CasesRetracted
	}

	tw := newTable(w, []string{"DISTRICT", "ROWS", "CASES", "DEATHS", "RECOVERED", "RETRACTED"})
	tw.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
	})
	for _, d := range order {
		t := byDistrict[d]
		tw.Append([]string{
			fmt.Sprintf("%d", d),
			fmt.Sprintf("%d", t.rows),
			fmt.Sprintf("%d", t.cases),
			fmt.Sprintf("%d", t.deaths),
			fmt.Sprintf("%d", t.recovered),
			fmt.Sprintf("%d", t.retracted),
		})
	}
	tw.Render()
	return nil
}

// StreamPlan summarizes what a `stream` invocation is about to do, before
// it spends a single HTTP request.
type StreamPlan struct {
	Measurement string
	Start       time.Time
	Days        int
	KeyCount    int
	ChunkDays   int
	FieldNames  []string
}

// PrintStreamPlan renders a stream plan as a field/value table.
func PrintStreamPlan(w io.Writer, p StreamPlan) error {
	tw := newTable(w, []string{"FIELD", "VALUE"})
	tw.Append([]string{"measurement", p.Measurement})
	tw.Append([]string{"start", p.Start.Format("2006-01-02")})
	tw.Append([]string{"end", p.Start.AddDate(0, 0, p.Days-1).Format("2006-01-02")})
	tw.Append([]string{"days", fmt.Sprintf("%d", p.Days)})
	tw.Append([]string{"keys", fmt.Sprintf("%d", p.KeyCount)})
	tw.Append([]string{"chunk_days", fmt.Sprintf("%d", p.ChunkDays)})
	tw.Append([]string{"fields", fmt.Sprintf("%v", p.FieldNames)})
	tw.Render()
	return nil
}

// MergeLedger renders the merge-provenance ledger as a table, most recent
// merge last.
func MergeLedger(w io.Writer, records []store.MergeRecord) error {
	tw := newTable(w, []string{"PUBLICATION DATE", "SNAPSHOT", "RECORDS", "MERGED AT"})
	for _, r := range records {
		tw.Append([]string{
			r.PublicationDate.Format("2006-01-02"),
			r.SnapshotPath,
			fmt.Sprintf("%d", r.RecordCount),
			r.MergedAt.Format(time.RFC3339),
		})
	}
	tw.Render()
	return nil
}

// Districts renders the district master-data cache as a table.
func Districts(w io.Writer, districts []model.District) error {
	tw := newTable(w, []string{"ID", "NAME", "STATE", "POPULATION"})
	tw.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT,
	})
	for _, d := range districts {
		tw.Append([]string{
			fmt.Sprintf("%d", d.ID),
			d.Name,
			fmt.Sprintf("%d", d.StateID),
			fmt.Sprintf("%d", d.Population),
		})
	}
	tw.Render()
	return nil
}

// BucketStats renders store.Stats output as a table.
func BucketStats(w io.Writer, stats []store.BucketStats) error {
	tw := newTable(w, []string{"BUCKET", "ROWS", "BYTES"})
	tw.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT})
	for _, bs := range stats {
		tw.Append([]string{bs.Name, fmt.Sprintf("%d", bs.Count), fmt.Sprintf("%d", bs.Bytes)})
	}
	tw.Render()
	return nil
}
