package diffbuilder

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/dheyman/epiflux/internal/calendar"
	"github.com/dheyman/epiflux/internal/epierr"
	"github.com/dheyman/epiflux/internal/model"
	"github.com/dheyman/epiflux/internal/series"
)

// BaseHeader is the diff-base export's fixed column order. Unlike the
// incremental diff artifact, these are cumulative totals and there is no
// delay/late/retraction/reporting-d7 bookkeeping.
var BaseHeader = []string{
	"Datum", "LandkreisId", "Altersgruppe", "Geschlecht",
	"AnzahlFall", "AnzahlTodesfall", "AnzahlGenesen",
}

// Base accumulates a one-shot cumulative export of case/death/recovered
// totals. It exists to seed a new deployment's diff artifact
// without replaying the full incremental snapshot history: a single pass
// over one line-listing snapshot produces cumulative-to-date totals as of
// the snapshot's own report dates, rather than the publication-indexed
// per-publication deltas the incremental Builder maintains.
type Base struct {
	idx calendar.Index

	CasesByPubCum     *series.TimeSeries[model.PartialCaseKey, uint64]
	DeathsByPubCum    *series.TimeSeries[model.PartialCaseKey, uint64]
	RecoveredByPubCum *series.TimeSeries[model.PartialCaseKey, uint64]
}

// NewBase returns an empty Base spanning the given calendar window.
func NewBase(idx calendar.Index) *Base {
	return &Base{
		idx:               idx,
		CasesByPubCum:     series.NewWithIndex[model.PartialCaseKey, uint64](idx),
		DeathsByPubCum:    series.NewWithIndex[model.PartialCaseKey, uint64](idx),
		RecoveredByPubCum: series.NewWithIndex[model.PartialCaseKey, uint64](idx),
	}
}

// Submit folds one infection-record row into the cumulative totals.
// Consistent rows add their count at the row's own report-date slot.
// Retracted rows must still be included — the diff tooling built on top of
// a base export will subtract retractions again during its own incremental
// merge, so omitting them here would under-count — but a retraction's count
// is placed at the second-to-last slot, never searched against the row's
// own date. NewlyReported and NotApplicable rows contribute nothing: only a
// Consistent flag reflects a row already folded into the upstream's own
// cumulative count, and a Retracted flag is the only other classification a
// base export (which predates any reporting axis) ever needs to react to.
func (b *Base) Submit(rec model.InfectionRecord) error {
	slot, ok := b.idx.DateIndex(rec.ReportDate)
	if !ok {
		return epierr.New(epierr.Range, "diff-base row report date "+rec.ReportDate.Format("2006-01-02")+" outside calendar window")
	}
	k := model.PartialCaseKey{District: rec.District, AgeGroup: rec.AgeGroup, Sex: rec.Sex}

	caseIdx, caseCount, err := baseDelta(slot, b.idx.Len(), rec.CaseFlag, rec.CaseCount)
	if err != nil {
		return err
	}
	deathIdx, deathCount, err := baseDelta(slot, b.idx.Len(), rec.DeathFlag, rec.DeathCount)
	if err != nil {
		return err
	}
	recoveredIdx, recoveredCount, err := baseDelta(slot, b.idx.Len(), rec.RecoveredFlag, rec.RecoveredCount)
	if err != nil {
		return err
	}

	b.CasesByPubCum.GetOrCreate(k)[caseIdx] += caseCount
	b.DeathsByPubCum.GetOrCreate(k)[deathIdx] += deathCount
	b.RecoveredByPubCum.GetOrCreate(k)[recoveredIdx] += recoveredCount
	return nil
}

// baseDelta resolves the (slot, count) pair a single case/death/recovered
// field of one row contributes: Consistent contributes its count at the
// row's own slot, Retracted contributes the negated (now positive) count at
// the window's second-to-last slot, and everything else contributes
// nothing.
func baseDelta(slot, length int, flag model.ReportFlag, count int64) (int, uint64, error) {
	switch flag {
	case model.Consistent:
		if count < 0 {
			return 0, 0, epierr.New(epierr.Decode, "consistent diff-base row carries a negative count")
		}
		return slot, uint64(count), nil
	case model.Retracted:
		if count >= 0 {
			return 0, 0, epierr.New(epierr.Decode, "retracted diff-base row carries a non-negative count")
		}
		if length-2 < 0 {
			return 0, 0, nil
		}
		return length - 2, uint64(-count), nil
	default:
		return slot, 0, nil
	}
}

// LoadBase folds every row of a line-listing snapshot into a fresh Base.
func LoadBase(idx calendar.Index, records []model.InfectionRecord) (*Base, error) {
	b := NewBase(idx)
	for _, rec := range records {
		if err := b.Submit(rec); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Cumulate runs an in-place prefix sum over all three stores, turning the
// per-report-date deltas Submit accumulated into running cumulative
// totals.
func (b *Base) Cumulate() {
	series.Cumsum(b.CasesByPubCum)
	series.Cumsum(b.DeathsByPubCum)
	series.Cumsum(b.RecoveredByPubCum)
}

// Keyset returns the union of keys present across the three stores.
func (b *Base) Keyset() []model.PartialCaseKey {
	seen := make(map[model.PartialCaseKey]struct{})
	for _, store := range []*series.TimeSeries[model.PartialCaseKey, uint64]{
		b.CasesByPubCum, b.DeathsByPubCum, b.RecoveredByPubCum,
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

// WriteAllBase renders the cumulated state into rows, one per (date, key)
// where any of the cases/deaths/recovered cumulative totals is non-zero at
// that slot.
func (b *Base) WriteAllBase() []model.DiffBaseRecord {
	var out []model.DiffBaseRecord
	keys := b.Keyset()
	for i := 0; i < b.idx.Len(); i++ {
		date, ok := b.idx.IndexDate(i)
		if !ok {
			continue
		}
		for _, k := range keys {
			casesCum, _ := b.CasesByPubCum.GetValue(k, i)
			deathsCum, _ := b.DeathsByPubCum.GetValue(k, i)
			recoveredCum, _ := b.RecoveredByPubCum.GetValue(k, i)
			if casesCum == 0 && deathsCum == 0 && recoveredCum == 0 {
				continue
			}
			out = append(out, model.DiffBaseRecord{
				Date:         date,
				District:     k.District,
				AgeGroup:     k.AgeGroup,
				Sex:          k.Sex,
				CasesCum:     casesCum,
				DeathsCum:    deathsCum,
				RecoveredCum: recoveredCum,
			})
		}
	}
	return out
}

// WriteBaseCSV encodes diff-base rows to w in the order given.
func WriteBaseCSV(w io.Writer, records []model.DiffBaseRecord) error {
	bw := bufio.NewWriter(w)
	cw := csv.NewWriter(bw)
	if err := cw.Write(BaseHeader); err != nil {
		return epierr.Wrap(epierr.IO, "diff-base header", err)
	}
	row := make([]string, len(BaseHeader))
	for _, rec := range records {
		row[0] = rec.Date.Format("2006-01-02")
		row[1] = strconv.FormatUint(uint64(rec.District), 10)
		row[2] = rec.AgeGroup.String()
		row[3] = rec.Sex.String()
		row[4] = strconv.FormatUint(rec.CasesCum, 10)
		row[5] = strconv.FormatUint(rec.DeathsCum, 10)
		row[6] = strconv.FormatUint(rec.RecoveredCum, 10)
		if err := cw.Write(row); err != nil {
			return epierr.Wrap(epierr.IO, "diff-base row", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return epierr.Wrap(epierr.IO, "diff-base flush", err)
	}
	return bw.Flush()
}

// WriteBaseFile writes a gzip-compressed diff-base export to path. Unlike
// the incremental diff artifact — which refuses
// compressed input precisely so it is never confused with its own output —
// the base export is deliberately compressed: it is a one-shot bulk seed
// file, not something the incremental builder ever re-reads as an artifact.
func WriteBaseFile(path string, records []model.DiffBaseRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return epierr.Wrap(epierr.IO, "create diff-base file", err)
	}
	gz, err := gzip.NewWriterLevel(f, gzip.BestCompression)
	if err != nil {
		f.Close()
		return epierr.Wrap(epierr.IO, "gzip writer for diff-base file", err)
	}
	if err := WriteBaseCSV(gz, records); err != nil {
		gz.Close()
		f.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		f.Close()
		return epierr.Wrap(epierr.IO, "close diff-base gzip stream", err)
	}
	return f.Close()
}
