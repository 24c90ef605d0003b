package sources

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/dheyman/epiflux/internal/epierr"
	"github.com/dheyman/epiflux/internal/model"
)

// bundesfooDistrictID is the synthetic "federal total" row id the
// vaccination feed uses for doses not attributable to a single district
// (LandkreisId_Impfort == "17000"). It has no district join and is
// represented as a nil District rather than a DistrictID value.
const bundesfooDistrictID = 17000

var vaccinationColumns = []string{"Impfdatum", "LandkreisId_Impfort", "Altersgruppe", "Impfschutz", "Anzahl"}

// ReadVaccination decodes the vaccination counter stream.
func ReadVaccination(r io.Reader) ([]model.VaccinationRecord, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, epierr.Wrap(epierr.Decode, "vaccination header", err)
	}
	idx, err := columnIndex(header, vaccinationColumns)
	if err != nil {
		return nil, err
	}

	var out []model.VaccinationRecord
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, epierr.Wrap(epierr.Decode, "vaccination row", err)
		}
		rec, err := decodeVaccinationRow(row, idx)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func decodeVaccinationRow(row []string, idx map[string]int) (model.VaccinationRecord, error) {
	var rec model.VaccinationRecord

	date, err := model.ParseLegacyDate(row[idx["Impfdatum"]])
	if err != nil {
		return rec, epierr.Wrap(epierr.Decode, "Impfdatum", err)
	}
	rec.Date = date

	rawID, err := strconv.ParseUint(strings.TrimSpace(row[idx["LandkreisId_Impfort"]]), 10, 32)
	if err != nil {
		return rec, epierr.Wrap(epierr.Decode, "LandkreisId_Impfort", err)
	}
	if rawID != bundesfooDistrictID {
		d := RemapBerlin(model.DistrictID(rawID))
		rec.District = &d
	}

	ag, err := model.ParseAgeGroup(row[idx["Altersgruppe"]])
	if err != nil {
		return rec, epierr.Wrap(epierr.Decode, "Altersgruppe", err)
	}
	rec.AgeGroup = ag

	level, err := parseVaccinationLevel(row[idx["Impfschutz"]])
	if err != nil {
		return rec, epierr.Wrap(epierr.Decode, "Impfschutz", err)
	}
	rec.Level = level

	count, err := strconv.ParseUint(row[idx["Anzahl"]], 10, 64)
	if err != nil {
		return rec, epierr.Wrap(epierr.Decode, "Anzahl", err)
	}
	rec.Count = count
	return rec, nil
}

// parseVaccinationLevel parses the numeric Impfschutz code: 1 is the first
// dose, 2 basic immunization, 3 the full/booster level.
func parseVaccinationLevel(s string) (model.VaccinationLevel, error) {
	switch strings.TrimSpace(s) {
	case "1":
		return model.VaccinationFirst, nil
	case "2":
		return model.VaccinationBasic, nil
	case "3":
		return model.VaccinationFull, nil
	default:
		return 0, epierr.New(epierr.Decode, "unrecognized Impfschutz value "+s)
	}
}
