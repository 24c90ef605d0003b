package sources

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/dheyman/epiflux/internal/epierr"
	"github.com/dheyman/epiflux/internal/model"
)

var icuColumns = []string{
	"datum", "bundesland", "kreis", "anzahl_standorte", "anzahl_meldebereiche",
	"faelle_covid_aktuell", "faelle_covid_aktuell_invasiv_beatmet",
	"betten_frei", "betten_belegt", "betten_belegt_nur_erwachsen", "betten_frei_nur_erwachsen",
}

// ReadICU decodes a DIVI ICU occupancy snapshot. A row's "kreis"
// (district) column is optional: an empty value means the row reports at
// state granularity only, represented by a nil District.
func ReadICU(r io.Reader) ([]model.ICULoadRecord, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, epierr.Wrap(epierr.Decode, "icu header", err)
	}
	idx, err := columnIndex(header, icuColumns)
	if err != nil {
		return nil, err
	}

	var out []model.ICULoadRecord
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, epierr.Wrap(epierr.Decode, "icu row", err)
		}
		rec, err := decodeICURow(row, idx)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func decodeICURow(row []string, idx map[string]int) (model.ICULoadRecord, error) {
	var rec model.ICULoadRecord

	date, err := model.ParseLegacyDate(row[idx["datum"]])
	if err != nil {
		return rec, epierr.Wrap(epierr.Decode, "datum", err)
	}
	rec.Date = date

	stateID, err := strconv.ParseUint(row[idx["bundesland"]], 10, 32)
	if err != nil {
		return rec, epierr.Wrap(epierr.Decode, "bundesland", err)
	}
	rec.State = model.StateID(stateID)

	if kreis := strings.TrimSpace(row[idx["kreis"]]); kreis != "" {
		id, err := strconv.ParseUint(kreis, 10, 32)
		if err != nil {
			return rec, epierr.Wrap(epierr.Decode, "kreis", err)
		}
		d := RemapBerlin(model.DistrictID(id))
		rec.District = &d
	}

	fields := []struct {
		col string
		dst *uint64
	}{
		{"anzahl_standorte", &rec.Locations},
		{"anzahl_meldebereiche", &rec.ReportingAreas},
		{"faelle_covid_aktuell", &rec.CurrentCovidCases},
		{"faelle_covid_aktuell_invasiv_beatmet", &rec.CurrentCovidInvasive},
		{"betten_frei", &rec.BedsFree},
		{"betten_belegt", &rec.BedsOccupied},
		{"betten_belegt_nur_erwachsen", &rec.BedsOccupiedAdultOnly},
		{"betten_frei_nur_erwachsen", &rec.BedsFreeAdultOnly},
	}
	for _, f := range fields {
		v, err := strconv.ParseUint(row[idx[f.col]], 10, 64)
		if err != nil {
			return rec, epierr.Wrap(epierr.Decode, f.col, err)
		}
		*f.dst = v
	}
	return rec, nil
}
