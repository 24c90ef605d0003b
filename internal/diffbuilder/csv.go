// Package diffbuilder implements the incremental publication-diff builder
// and the CSV codec for its durable artifact.
package diffbuilder

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dheyman/epiflux/internal/epierr"
	"github.com/dheyman/epiflux/internal/model"
)

// Header is the diff artifact's fixed column order.
var Header = []string{
	"Datum", "LandkreisId", "Altersgruppe", "Geschlecht",
	"VerzugGesamt", "AnzahlFallVerzoegert", "AnzahlFallVerspaetet",
	"AnzahlFall", "AnzahlTodesfall", "AnzahlGenesen",
	"AnzahlFallRepD7", "AnzahlFallRueckgezogen",
}

// ReadCSV decodes diff-artifact rows from r.
func ReadCSV(r io.Reader) ([]model.DiffRecord, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, epierr.Wrap(epierr.Decode, "diff artifact header", err)
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}

	var out []model.DiffRecord
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, epierr.Wrap(epierr.Decode, "diff artifact row", err)
		}
		rec, err := decodeRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func checkHeader(got []string) error {
	if len(got) != len(Header) {
		return epierr.New(epierr.Decode, fmt.Sprintf("diff artifact header: expected %d columns, got %d", len(Header), len(got)))
	}
	for i, h := range Header {
		if got[i] != h {
			return epierr.New(epierr.Decode, fmt.Sprintf("diff artifact header: column %d: expected %q got %q", i, h, got[i]))
		}
	}
	return nil
}

func decodeRow(row []string) (model.DiffRecord, error) {
	var rec model.DiffRecord
	date, err := time.Parse("2006-01-02", row[0])
	if err != nil {
		return rec, epierr.Wrap(epierr.Decode, "Datum", err)
	}
	rec.Date = date

	district, err := strconv.ParseUint(row[1], 10, 32)
	if err != nil {
		return rec, epierr.Wrap(epierr.Decode, "LandkreisId", err)
	}
	rec.District = model.DistrictID(district)

	ag, err := model.ParseAgeGroup(row[2])
	if err != nil {
		return rec, epierr.Wrap(epierr.Decode, "Altersgruppe", err)
	}
	rec.AgeGroup = ag

	sex, err := model.ParseSex(row[3])
	if err != nil {
		return rec, epierr.Wrap(epierr.Decode, "Geschlecht", err)
	}
	rec.Sex = sex

	fields := []*uint64{
		&rec.DelayTotal, &rec.CasesDelayed, &rec.LateCases,
		&rec.Cases, &rec.Deaths, &rec.Recovered,
		&rec.CasesRepD7, &rec.CasesRetracted,
	}
	for i, dst := range fields {
		v, err := strconv.ParseUint(row[4+i], 10, 64)
		if err != nil {
			return rec, epierr.Wrap(epierr.Decode, Header[4+i], err)
		}
		*dst = v
	}
	return rec, nil
}

// WriteCSV encodes diff-artifact rows to w, in the order given.
func WriteCSV(w io.Writer, records []model.DiffRecord) error {
	bw := bufio.NewWriter(w)
	cw := csv.NewWriter(bw)
	if err := cw.Write(Header); err != nil {
		return epierr.Wrap(epierr.IO, "diff artifact header", err)
	}
	row := make([]string, len(Header))
	for _, rec := range records {
		row[0] = rec.Date.Format("2006-01-02")
		row[1] = strconv.FormatUint(uint64(rec.District), 10)
		row[2] = rec.AgeGroup.String()
		row[3] = rec.Sex.String()
		row[4] = strconv.FormatUint(rec.DelayTotal, 10)
		row[5] = strconv.FormatUint(rec.CasesDelayed, 10)
		row[6] = strconv.FormatUint(rec.LateCases, 10)
		row[7] = strconv.FormatUint(rec.Cases, 10)
		row[8] = strconv.FormatUint(rec.Deaths, 10)
		row[9] = strconv.FormatUint(rec.Recovered, 10)
		row[10] = strconv.FormatUint(rec.CasesRepD7, 10)
		row[11] = strconv.FormatUint(rec.CasesRetracted, 10)
		if err := cw.Write(row); err != nil {
			return epierr.Wrap(epierr.IO, "diff artifact row", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return epierr.Wrap(epierr.IO, "diff artifact flush", err)
	}
	return bw.Flush()
}

// LoadFile reads an existing diff artifact from disk. A missing file is not
// an error (returns nil, nil); a compressed file is refused outright, as a
// safeguard against overwriting a source snapshot with its own output.
func LoadFile(path string) ([]model.DiffRecord, error) {
	if strings.HasSuffix(path, ".gz") {
		return nil, epierr.New(epierr.Decode, "diff artifact must be uncompressed: refusing "+path)
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, epierr.Wrap(epierr.IO, "open diff artifact", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// WriteFile writes the diff artifact to a temp path and renames it into
// place, so a crash mid-write never leaves a partial artifact at the
// canonical path.
func WriteFile(path string, records []model.DiffRecord) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return epierr.Wrap(epierr.IO, "create diff artifact temp file", err)
	}
	if err := WriteCSV(f, records); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return epierr.Wrap(epierr.IO, "close diff artifact temp file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return epierr.Wrap(epierr.IO, "rename diff artifact into place", err)
	}
	return nil
}
