package tsdb

import (
	"context"
	"strings"
	"time"

	"github.com/dheyman/epiflux/internal/calendar"
	"github.com/dheyman/epiflux/internal/lineproto"
	"github.com/dheyman/epiflux/internal/views"
)

// FieldDescriptor pairs a lazy view with the field name it should be
// emitted under.
type FieldDescriptor[K comparable] struct {
	Name string
	View views.View[K]
}

// Key pairs a domain key with its pre-serialized tag bytes, built once by
// the caller so the streamer never re-derives tags per date.
type Key[K comparable] struct {
	Value K
	Tags  []lineproto.KV
}

// Stream walks [start, start+ndays) in chunks of roughly 5,000 samples per
// POST, assembling and flushing line-protocol frames.
func Stream[K comparable](ctx context.Context, client *Client, measurement string, start time.Time, ndays int, precision lineproto.Precision, keys []Key[K], fields []FieldDescriptor[K]) error {
	chunk := 1
	if len(keys) > 0 {
		chunk = 5000 / len(keys)
		if chunk < 1 {
			chunk = 1
		}
	}

	var sb strings.Builder
	daysInChunk := 0
	flush := func() error {
		if sb.Len() == 0 {
			daysInChunk = 0
			return nil
		}
		body := sb.String()
		sb.Reset()
		daysInChunk = 0
		return client.Post(ctx, body)
	}

	for day := 0; day < ndays; day++ {
		d := calendar.AddDays(start, day)
		for _, k := range keys {
			r := lineproto.Readout{
				Measurement: measurement,
				Tags:        k.Tags,
				Timestamp:   d,
				Precision:   precision,
			}
			for _, fd := range fields {
				v, ok := fd.View.Getf(k.Value, d)
				if !ok {
					continue
				}
				r.Fields = append(r.Fields, lineproto.KV{Name: fd.Name, Value: lineproto.FloatValue(v)})
			}
			if len(r.Fields) == 0 {
				continue
			}
			if err := r.Write(&sb); err != nil {
				return err
			}
		}
		daysInChunk++
		if daysInChunk >= chunk {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}
