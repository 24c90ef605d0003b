package diffbuilder

import (
	"fmt"
	"time"

	"github.com/dheyman/epiflux/internal/calendar"
	"github.com/dheyman/epiflux/internal/epierr"
	"github.com/dheyman/epiflux/internal/model"
	"github.com/dheyman/epiflux/internal/series"
)

// DelayCutoff is the number of days at or under which a newly-reported case
// counts as "delayed" rather than "late".
const DelayCutoff = 28

// Builder holds the nine keyed counter stores the publication-diff merge
// algorithm operates on. All nine share one calendar.
type Builder struct {
	idx calendar.Index

	CasesByPub     *series.TimeSeries[model.PartialCaseKey, uint64]
	CasesDelayed   *series.TimeSeries[model.PartialCaseKey, uint64]
	CaseDelayTotal *series.TimeSeries[model.PartialCaseKey, uint64]
	LateCases      *series.TimeSeries[model.PartialCaseKey, uint64]
	DeathsByPub    *series.TimeSeries[model.PartialCaseKey, uint64]
	RecoveredByPub *series.TimeSeries[model.PartialCaseKey, uint64]
	CasesByRepBuf  *series.TimeSeries[model.PartialCaseKey, uint64]
	CasesByRepD7   *series.TimeSeries[model.PartialCaseKey, uint64]
	CasesRetracted *series.TimeSeries[model.PartialCaseKey, uint64]
}

// New returns an empty Builder spanning the given calendar window.
func New(idx calendar.Index) *Builder {
	b := &Builder{idx: idx}
	b.CasesByPub = series.NewWithIndex[model.PartialCaseKey, uint64](idx)
	b.CasesDelayed = series.NewWithIndex[model.PartialCaseKey, uint64](idx)
	b.CaseDelayTotal = series.NewWithIndex[model.PartialCaseKey, uint64](idx)
	b.LateCases = series.NewWithIndex[model.PartialCaseKey, uint64](idx)
	b.DeathsByPub = series.NewWithIndex[model.PartialCaseKey, uint64](idx)
	b.RecoveredByPub = series.NewWithIndex[model.PartialCaseKey, uint64](idx)
	b.CasesByRepBuf = series.NewWithIndex[model.PartialCaseKey, uint64](idx)
	b.CasesByRepD7 = series.NewWithIndex[model.PartialCaseKey, uint64](idx)
	b.CasesRetracted = series.NewWithIndex[model.PartialCaseKey, uint64](idx)
	return b
}

// LoadExisting projects an existing diff artifact's rows into the nine
// stores, at slot = date_index(row.date). CasesByRepBuf is never populated
// from the artifact: it is an ephemeral per-merge buffer, not part of the
// persisted schema.
func LoadExisting(idx calendar.Index, records []model.DiffRecord) (*Builder, error) {
	b := New(idx)
	for _, rec := range records {
		slot, ok := idx.DateIndex(rec.Date)
		if !ok {
			return nil, epierr.New(epierr.Range, fmt.Sprintf("diff artifact row date %s outside calendar window", rec.Date.Format("2006-01-02")))
		}
		key := model.PartialCaseKey{District: rec.District, AgeGroup: rec.AgeGroup, Sex: rec.Sex}
		b.CasesByPub.GetOrCreate(key)[slot] = rec.Cases
		b.CasesDelayed.GetOrCreate(key)[slot] = rec.CasesDelayed
		b.CaseDelayTotal.GetOrCreate(key)[slot] = rec.DelayTotal
		b.LateCases.GetOrCreate(key)[slot] = rec.LateCases
		b.DeathsByPub.GetOrCreate(key)[slot] = rec.Deaths
		b.RecoveredByPub.GetOrCreate(key)[slot] = rec.Recovered
		b.CasesByRepD7.GetOrCreate(key)[slot] = rec.CasesRepD7
		b.CasesRetracted.GetOrCreate(key)[slot] = rec.CasesRetracted
	}
	return b, nil
}

// MergeSnapshot applies one dated line-listing snapshot. Snapshots must be
// passed in non-decreasing publication-date order across repeated calls:
// each call overwrites CasesByRepD7 only at its own publication slot.
func (b *Builder) MergeSnapshot(records []model.InfectionRecord, publicationDate time.Time) error {
	pPrime := calendar.AddDays(publicationDate, -1)
	slotPub, ok := b.idx.DateIndex(pPrime)
	if !ok {
		return epierr.New(epierr.Range, fmt.Sprintf("publication date %s (effective %s) outside calendar window", publicationDate.Format("2006-01-02"), pPrime.Format("2006-01-02")))
	}

	b.CasesByRepBuf = series.NewWithIndex[model.PartialCaseKey, uint64](b.idx)

	for _, r := range records {
		key := model.PartialCaseKey{District: r.District, AgeGroup: r.AgeGroup, Sex: r.Sex}
		if err := b.applyCase(key, r, slotPub, pPrime); err != nil {
			return err
		}
		if err := applyVital(b.DeathsByPub, key, slotPub, r.DeathFlag, r.DeathCount, "death"); err != nil {
			return err
		}
		if err := applyVital(b.RecoveredByPub, key, slotPub, r.RecoveredFlag, r.RecoveredCount, "recovered"); err != nil {
			return err
		}
	}

	b.freezeRepD7(slotPub)
	return nil
}

func (b *Builder) applyCase(key model.PartialCaseKey, r model.InfectionRecord, slotPub int, pPrime time.Time) error {
	switch r.CaseFlag {
	case model.NewlyReported:
		if r.CaseCount < 0 {
			return epierr.New(epierr.Decode, "newly-reported case carries a negative count")
		}
		count := uint64(r.CaseCount)
		slotRep, ok := b.idx.DateIndex(r.ReportDate)
		if !ok {
			return epierr.New(epierr.Range, fmt.Sprintf("report date %s is outside the calendar window", r.ReportDate.Format("2006-01-02")))
		}
		b.CasesByPub.GetOrCreate(key)[slotPub] += count

		delay := calendar.DaysBetween(r.ReportDate, pPrime)
		if delay < 0 {
			return epierr.New(epierr.Arithmetic, fmt.Sprintf("report date %s is after publication date %s", r.ReportDate.Format("2006-01-02"), pPrime.Format("2006-01-02")))
		}
		if delay <= DelayCutoff {
			b.CasesDelayed.GetOrCreate(key)[slotPub] += count
			b.CaseDelayTotal.GetOrCreate(key)[slotPub] += uint64(delay) * count
		} else {
			b.LateCases.GetOrCreate(key)[slotPub] += count
		}
		b.CasesByRepBuf.GetOrCreate(key)[slotRep] += count

	case model.Retracted:
		if r.CaseCount >= 0 {
			return epierr.New(epierr.Decode, "retracted case carries a non-negative count")
		}
		if slotPub-1 < 0 {
			return nil
		}
		mag := uint64(-r.CaseCount)
		row := b.CasesByPub.GetOrCreate(key)
		row[slotPub-1] = series.SaturatingSubU64(row[slotPub-1], mag)
		b.CasesRetracted.GetOrCreate(key)[slotPub-1] += mag

	case model.Consistent:
		if r.CaseCount < 0 {
			return epierr.New(epierr.Decode, "consistent case carries a negative count")
		}
		slotRep, ok := b.idx.DateIndex(r.ReportDate)
		if !ok {
			return epierr.New(epierr.Range, fmt.Sprintf("report date %s is outside the calendar window", r.ReportDate.Format("2006-01-02")))
		}
		b.CasesByRepBuf.GetOrCreate(key)[slotRep] += uint64(r.CaseCount)

	case model.NotApplicable:
		// neither the publication axis nor the reporting buffer is touched.
	}
	return nil
}

// applyVital applies the newly-reported/retracted/consistent classification
// to a deaths or recovered store: analogous to case handling, but without
// the reporting-date buffer and without delay/late bookkeeping. Malformed
// sign/flag combinations are fatal decode errors, exactly as for cases.
func applyVital(store *series.TimeSeries[model.PartialCaseKey, uint64], key model.PartialCaseKey, slotPub int, flag model.ReportFlag, count int64, what string) error {
	switch flag {
	case model.NewlyReported:
		if count < 0 {
			return epierr.New(epierr.Decode, "newly-reported "+what+" carries a negative count")
		}
		store.GetOrCreate(key)[slotPub] += uint64(count)
	case model.Retracted:
		if count >= 0 {
			return epierr.New(epierr.Decode, "retracted "+what+" carries a non-negative count")
		}
		if slotPub-1 < 0 {
			return nil
		}
		row := store.GetOrCreate(key)
		row[slotPub-1] = series.SaturatingSubU64(row[slotPub-1], uint64(-count))
	case model.Consistent:
		if count < 0 {
			return epierr.New(epierr.Decode, "consistent "+what+" carries a negative count")
		}
	}
	return nil
}

// freezeRepD7 cumulates CasesByRepBuf in place on a private copy, derives
// its trailing 7-day sum, and writes that sum's value at slotPub into
// CasesByRepD7 for every key present in the buffer — a snapshot of the
// reporting-date d7 frozen at the moment of publication. The first 7 slots
// of a trailing 7-day sum are defined as zero, so a publication inside the
// calendar's opening week freezes a zero, not the raw cumulative.
func (b *Builder) freezeRepD7(slotPub int) {
	cum := cloneSeries(b.CasesByRepBuf)
	series.Cumsum(cum)
	for _, k := range cum.Keys() {
		row, _ := cum.Get(k)
		var v uint64
		if slotPub-7 >= 0 {
			v = row[slotPub] - row[slotPub-7]
		}
		dst := b.CasesByRepD7.GetOrCreate(k)
		dst[slotPub] = v
	}
}

func cloneSeries(src *series.TimeSeries[model.PartialCaseKey, uint64]) *series.TimeSeries[model.PartialCaseKey, uint64] {
	dst := series.NewWithIndex[model.PartialCaseKey, uint64](src.Index())
	for _, k := range src.Keys() {
		row, _ := src.Get(k)
		copy(dst.GetOrCreate(k), row)
	}
	return dst
}

// Keyset returns the union of keys present across every store except the
// ephemeral CasesByRepBuf.
func (b *Builder) Keyset() []model.PartialCaseKey {
	seen := make(map[model.PartialCaseKey]struct{})
	for _, store := range []*series.TimeSeries[model.PartialCaseKey, uint64]{
		b.CasesByPub, b.CasesDelayed, b.CaseDelayTotal, b.LateCases,
		b.DeathsByPub, b.RecoveredByPub, b.CasesByRepD7, b.CasesRetracted,
	} {
		for _, k := range store.Keys() {
			seen[k] = struct{}{}
		}
	}
	out := make([]model.PartialCaseKey, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	return out
}

// Writeback renders the current state into the row set the CSV codec
// writes: one row per (date, key) where any of cases/deaths/recovered/
// cases_rep_d7/cases_retracted is non-zero at that slot.
func (b *Builder) Writeback() []model.DiffRecord {
	var out []model.DiffRecord
	keys := b.Keyset()
	for i := 0; i < b.idx.Len(); i++ {
		date, ok := b.idx.IndexDate(i)
		if !ok {
			continue
		}
		for _, k := range keys {
			cases, _ := b.CasesByPub.GetValue(k, i)
			deaths, _ := b.DeathsByPub.GetValue(k, i)
			recovered, _ := b.RecoveredByPub.GetValue(k, i)
			repD7, _ := b.CasesByRepD7.GetValue(k, i)
			retracted, _ := b.CasesRetracted.GetValue(k, i)
			if cases == 0 && deaths == 0 && recovered == 0 && repD7 == 0 && retracted == 0 {
				continue
			}
			delayed, _ := b.CasesDelayed.GetValue(k, i)
			delayTotal, _ := b.CaseDelayTotal.GetValue(k, i)
			late, _ := b.LateCases.GetValue(k, i)
			out = append(out, model.DiffRecord{
				Date:           date,
				District:       k.District,
				AgeGroup:       k.AgeGroup,
				Sex:            k.Sex,
				DelayTotal:     delayTotal,
				CasesDelayed:   delayed,
				LateCases:      late,
				Cases:          cases,
				Deaths:         deaths,
				Recovered:      recovered,
				CasesRepD7:     repD7,
				CasesRetracted: retracted,
			})
		}
	}
	return out
}
