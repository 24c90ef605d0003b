// Package calendar implements the engine's only temporal primitive: a
// half-open day range with an invertible bijection between calendar dates
// and integer slots. Every other package builds on top of this index rather
// than re-deriving day arithmetic of its own.
package calendar

import "time"

// GlobalStart is the default epoch used across the pipeline (2020-01-01),
// matching the upstream feed's own reporting start.
var GlobalStart = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

// Index is a half-open day range [Start, End) with integer slot
// i = (d - Start) in whole days, 0 <= i < Len().
type Index struct {
	start time.Time
	end   time.Time
}

// New returns an Index spanning [start, end). Both are truncated to
// midnight UTC so slot arithmetic never trips over time-of-day or location.
func New(start, end time.Time) Index {
	return Index{start: truncate(start), end: truncate(end)}
}

func truncate(t time.Time) time.Time {
	t = t.UTC()
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Start returns the index's epoch day.
func (idx Index) Start() time.Time { return idx.start }

// End returns the index's exclusive upper bound.
func (idx Index) End() time.Time { return idx.end }

// Len returns the number of slots in the index.
func (idx Index) Len() int {
	n := int(idx.end.Sub(idx.start) / day)
	if n < 0 {
		return 0
	}
	return n
}

// DateIndex maps a date to its slot. ok is false when d falls outside
// [Start, End).
func (idx Index) DateIndex(d time.Time) (i int, ok bool) {
	d = truncate(d)
	if d.Before(idx.start) || !d.Before(idx.end) {
		return 0, false
	}
	return int(d.Sub(idx.start) / day), true
}

// IndexDate maps a slot back to its date. ok is false when i is outside
// [0, Len()).
func (idx Index) IndexDate(i int) (d time.Time, ok bool) {
	if i < 0 || i >= idx.Len() {
		return time.Time{}, false
	}
	return idx.start.Add(time.Duration(i) * day), true
}

// AddDays returns d shifted by n calendar days (n may be negative).
func AddDays(d time.Time, n int) time.Time {
	return truncate(d).Add(time.Duration(n) * day)
}

// DaysBetween returns the number of whole days from a to b (b - a).
func DaysBetween(a, b time.Time) int {
	return int(truncate(b).Sub(truncate(a)) / day)
}
