package sources

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/dheyman/epiflux/internal/epierr"
	"github.com/dheyman/epiflux/internal/model"
)

// minHolidaySpanDays is the shortest interval worth emitting as a holiday
// marker; single free days produce too much line-protocol noise relative to
// their analytical value.
const minHolidaySpanDays = 3

var holidayColumns = []string{"Bundesland_Id", "Name", "Start", "Ende"}

// ReadHolidays decodes the holiday-interval stream, dropping any interval
// shorter than minHolidaySpanDays.
func ReadHolidays(r io.Reader) ([]model.HolidayRecord, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, epierr.Wrap(epierr.Decode, "holiday header", err)
	}
	idx, err := columnIndex(header, holidayColumns)
	if err != nil {
		return nil, err
	}

	var out []model.HolidayRecord
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, epierr.Wrap(epierr.Decode, "holiday row", err)
		}

		stateID, err := strconv.ParseUint(row[idx["Bundesland_Id"]], 10, 32)
		if err != nil {
			return nil, epierr.Wrap(epierr.Decode, "Bundesland_Id", err)
		}
		start, err := model.ParseLegacyDate(row[idx["Start"]])
		if err != nil {
			return nil, epierr.Wrap(epierr.Decode, "Start", err)
		}
		end, err := model.ParseLegacyDate(row[idx["Ende"]])
		if err != nil {
			return nil, epierr.Wrap(epierr.Decode, "Ende", err)
		}

		if end.Sub(start).Hours() < 24*minHolidaySpanDays {
			continue
		}

		out = append(out, model.HolidayRecord{
			State:   model.StateID(stateID),
			Holiday: row[idx["Name"]],
			Start:   start,
			End:     end,
		})
	}
	return out, nil
}
