package sources

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/dheyman/epiflux/internal/epierr"
	"github.com/dheyman/epiflux/internal/model"
)

// berlinDistrictIDs are the twelve Berlin Bezirk ids the upstream feed
// reports individually; the district master-data join collapses them into
// the single synthetic district 11000.
var berlinDistrictIDs = []model.DistrictID{11001, 11002, 11003, 11004, 11005, 11006, 11007, 11008, 11009, 11010, 11011, 11012}

const berlinDistrictID model.DistrictID = 11000

var districtColumns = []string{"IdLandkreis", "Landkreis", "IdBundesland", "Bundesland", "Einwohner"}

// ReadDistricts decodes the district/state master-data table and folds the
// twelve Berlin Bezirke into one synthetic district, summing their
// populations, so every downstream join sees 11000 and never the individual
// Bezirk ids.
func ReadDistricts(r io.Reader) ([]model.District, []model.State, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, nil, epierr.Wrap(epierr.Decode, "district header", err)
	}
	idx, err := columnIndex(header, districtColumns)
	if err != nil {
		return nil, nil, err
	}

	states := make(map[model.StateID]string)
	var districts []model.District
	var berlinPop uint64
	sawBerlin := false

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, epierr.Wrap(epierr.Decode, "district row", err)
		}

		id, err := strconv.ParseUint(row[idx["IdLandkreis"]], 10, 32)
		if err != nil {
			return nil, nil, epierr.Wrap(epierr.Decode, "IdLandkreis", err)
		}
		stateID, err := strconv.ParseUint(row[idx["IdBundesland"]], 10, 32)
		if err != nil {
			return nil, nil, epierr.Wrap(epierr.Decode, "IdBundesland", err)
		}
		pop, err := strconv.ParseUint(row[idx["Einwohner"]], 10, 64)
		if err != nil {
			return nil, nil, epierr.Wrap(epierr.Decode, "Einwohner", err)
		}
		states[model.StateID(stateID)] = strings.TrimSpace(row[idx["Bundesland"]])

		did := model.DistrictID(id)
		if isBerlinBezirk(did) {
			sawBerlin = true
			berlinPop += pop
			continue
		}
		districts = append(districts, model.District{
			ID:         did,
			StateID:    model.StateID(stateID),
			Name:       strings.TrimSpace(row[idx["Landkreis"]]),
			Population: pop,
		})
	}

	if sawBerlin {
		districts = append(districts, model.District{
			ID:         berlinDistrictID,
			StateID:    11,
			Name:       "Berlin",
			Population: berlinPop,
		})
	}

	var out []model.State
	for id, name := range states {
		out = append(out, model.State{ID: id, Name: name})
	}
	return districts, out, nil
}

func isBerlinBezirk(id model.DistrictID) bool {
	for _, b := range berlinDistrictIDs {
		if b == id {
			return true
		}
	}
	return false
}

// RemapBerlin maps an individual Berlin Bezirk id to the synthetic district
// 11000, and passes every other district id through unchanged. Every stream
// reader that carries a raw district id (infection, ICU, vaccination) must
// run its ids through this before keying a series.
func RemapBerlin(id model.DistrictID) model.DistrictID {
	if isBerlinBezirk(id) {
		return berlinDistrictID
	}
	return id
}
