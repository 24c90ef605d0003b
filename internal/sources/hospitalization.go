package sources

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/dheyman/epiflux/internal/epierr"
	"github.com/dheyman/epiflux/internal/model"
)

var hospitalizationColumns = []string{"Datum", "Bundesland_Id", "Altersgruppe", "7T_Hospitalisierung_Faelle"}

// ReadHospitalization decodes the 7-day hospitalization sum stream. A row
// with Bundesland_Id 0 is the national total and is skipped; the pipeline
// only streams state-level hospitalization series. A row whose count cannot
// be parsed as a plain integer (the upstream feed occasionally emits
// placeholder text for not-yet-finalized recent days) is skipped rather
// than treated as a fatal decode error.
func ReadHospitalization(r io.Reader) ([]model.HospitalizationRecord, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, epierr.Wrap(epierr.Decode, "hospitalization header", err)
	}
	idx, err := columnIndex(header, hospitalizationColumns)
	if err != nil {
		return nil, err
	}

	var out []model.HospitalizationRecord
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, epierr.Wrap(epierr.Decode, "hospitalization row", err)
		}

		stateID, err := strconv.ParseUint(row[idx["Bundesland_Id"]], 10, 32)
		if err != nil {
			return nil, epierr.Wrap(epierr.Decode, "Bundesland_Id", err)
		}
		if stateID == 0 {
			continue
		}

		count, err := strconv.ParseUint(row[idx["7T_Hospitalisierung_Faelle"]], 10, 64)
		if err != nil {
			continue
		}

		date, err := model.ParseLegacyDate(row[idx["Datum"]])
		if err != nil {
			return nil, epierr.Wrap(epierr.Decode, "Datum", err)
		}
		ag, err := model.ParseAgeGroup(row[idx["Altersgruppe"]])
		if err != nil {
			return nil, epierr.Wrap(epierr.Decode, "Altersgruppe", err)
		}

		out = append(out, model.HospitalizationRecord{
			Date:     date,
			State:    model.StateID(stateID),
			AgeGroup: ag,
			CasesD7:  count,
		})
	}
	return out, nil
}
