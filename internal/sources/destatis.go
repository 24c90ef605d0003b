package sources

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/dheyman/epiflux/internal/epierr"
	"github.com/dheyman/epiflux/internal/model"
)

var destatisColumns = []string{"Bundesland_Id", "Altersgruppe", "Anzahl"}

// ReadDestatis decodes the population/demographics reference table. This
// table is static reference data, not a time series: it has no date column and
// is joined against a series by (State, AgeGroup) alone.
func ReadDestatis(r io.Reader) ([]model.DestatisRow, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, epierr.Wrap(epierr.Decode, "destatis header", err)
	}
	idx, err := columnIndex(header, destatisColumns)
	if err != nil {
		return nil, err
	}

	var out []model.DestatisRow
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, epierr.Wrap(epierr.Decode, "destatis row", err)
		}

		stateID, err := strconv.ParseUint(row[idx["Bundesland_Id"]], 10, 32)
		if err != nil {
			return nil, epierr.Wrap(epierr.Decode, "Bundesland_Id", err)
		}
		ag, err := model.ParseAgeGroup(row[idx["Altersgruppe"]])
		if err != nil {
			return nil, epierr.Wrap(epierr.Decode, "Altersgruppe", err)
		}
		count, err := strconv.ParseUint(row[idx["Anzahl"]], 10, 64)
		if err != nil {
			return nil, epierr.Wrap(epierr.Decode, "Anzahl", err)
		}

		out = append(out, model.DestatisRow{
			State:    model.StateID(stateID),
			AgeGroup: ag,
			Count:    count,
		})
	}
	return out, nil
}
