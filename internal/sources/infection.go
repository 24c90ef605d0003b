package sources

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/dheyman/epiflux/internal/epierr"
	"github.com/dheyman/epiflux/internal/model"
)

// infectionColumns are the required header names for a snapshot CSV.
var infectionColumns = []string{
	"IdLandkreis", "Altersgruppe", "Geschlecht", "Meldedatum", "Refdatum",
	"IstErkrankungsbeginn", "NeuerFall", "NeuerTodesfall", "NeuGenesen",
	"AnzahlFall", "AnzahlTodesfall", "AnzahlGenesen",
}

// ReadInfectionSnapshot decodes one line-listing snapshot. The infection
// stream is fatal on both decode and range errors — callers must not
// attempt to skip and continue.
func ReadInfectionSnapshot(r io.Reader) ([]model.InfectionRecord, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, epierr.Wrap(epierr.Decode, "snapshot header", err)
	}
	idx, err := columnIndex(header, infectionColumns)
	if err != nil {
		return nil, err
	}

	var out []model.InfectionRecord
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, epierr.Wrap(epierr.Decode, "snapshot row", err)
		}
		rec, err := decodeInfectionRow(row, idx)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func columnIndex(header, want []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	for _, w := range want {
		if _, ok := idx[w]; !ok {
			return nil, epierr.New(epierr.Decode, "snapshot header missing required column "+w)
		}
	}
	return idx, nil
}

func decodeInfectionRow(row []string, idx map[string]int) (model.InfectionRecord, error) {
	var rec model.InfectionRecord

	district, err := model.ParseMaybeDistrictID(row[idx["IdLandkreis"]])
	if err != nil {
		return rec, epierr.Wrap(epierr.Decode, "IdLandkreis", err)
	}
	if district != nil {
		rec.District = RemapBerlin(*district)
	}

	ag, err := model.ParseAgeGroup(row[idx["Altersgruppe"]])
	if err != nil {
		return rec, epierr.Wrap(epierr.Decode, "Altersgruppe", err)
	}
	rec.AgeGroup = ag

	sex, err := model.ParseSex(row[idx["Geschlecht"]])
	if err != nil {
		return rec, epierr.Wrap(epierr.Decode, "Geschlecht", err)
	}
	rec.Sex = sex

	rec.ReportDate, err = model.ParseLegacyDate(row[idx["Meldedatum"]])
	if err != nil {
		return rec, epierr.Wrap(epierr.Decode, "Meldedatum", err)
	}
	rec.ReferenceDate, err = model.ParseLegacyDate(row[idx["Refdatum"]])
	if err != nil {
		return rec, epierr.Wrap(epierr.Decode, "Refdatum", err)
	}

	onset, err := strconv.Atoi(row[idx["IstErkrankungsbeginn"]])
	if err != nil {
		return rec, epierr.Wrap(epierr.Decode, "IstErkrankungsbeginn", err)
	}
	rec.IsOnsetDate = onset != 0

	rec.CaseFlag, err = model.ParseReportFlag(row[idx["NeuerFall"]])
	if err != nil {
		return rec, epierr.Wrap(epierr.Decode, "NeuerFall", err)
	}
	rec.DeathFlag, err = model.ParseReportFlag(row[idx["NeuerTodesfall"]])
	if err != nil {
		return rec, epierr.Wrap(epierr.Decode, "NeuerTodesfall", err)
	}
	rec.RecoveredFlag, err = model.ParseReportFlag(row[idx["NeuGenesen"]])
	if err != nil {
		return rec, epierr.Wrap(epierr.Decode, "NeuGenesen", err)
	}

	rec.CaseCount, err = strconv.ParseInt(row[idx["AnzahlFall"]], 10, 64)
	if err != nil {
		return rec, epierr.Wrap(epierr.Decode, "AnzahlFall", err)
	}
	rec.DeathCount, err = strconv.ParseInt(row[idx["AnzahlTodesfall"]], 10, 64)
	if err != nil {
		return rec, epierr.Wrap(epierr.Decode, "AnzahlTodesfall", err)
	}
	rec.RecoveredCount, err = strconv.ParseInt(row[idx["AnzahlGenesen"]], 10, 64)
	if err != nil {
		return rec, epierr.Wrap(epierr.Decode, "AnzahlGenesen", err)
	}

	if !rec.CaseFlag.Valid() || !rec.DeathFlag.Valid() || !rec.RecoveredFlag.Valid() {
		return rec, epierr.New(epierr.Decode, fmt.Sprintf("invalid flag combination in row for district %d", rec.District))
	}
	return rec, nil
}
