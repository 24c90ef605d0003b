// Package counters implements the counter group: the cum/d1/d7/d7s7
// quadruple derived from a single daily-increment or trailing-weekly-sum
// input series.
package counters

import (
	"github.com/dheyman/epiflux/internal/calendar"
	"github.com/dheyman/epiflux/internal/series"
)

// Group holds the four derived series for one logical counter: cumulative,
// daily increment, trailing 7-day sum, and that sum shifted 7 days forward
// (the previous week's trailing sum, aligned to the current date).
type Group[K comparable] struct {
	Cum  *series.TimeSeries[K, uint64]
	D1   *series.TimeSeries[K, uint64]
	D7   *series.TimeSeries[K, uint64]
	D7S7 *series.TimeSeries[K, uint64]
}

// FromD1 builds a Group from a daily-increment series: cumsum, then
// re-derive d1/d7/d7s7 from independent copies of the cumulative series so
// the original d1 input is never mutated by the caller's own reference.
func FromD1[K comparable](d1 *series.TimeSeries[K, uint64]) *Group[K] {
	cum := cloneSeries(d1)
	series.Cumsum(cum)

	d1copy := cloneSeries(cum)
	if err := series.Diff(d1copy, 1); err != nil {
		panic(err)
	}

	d7 := cloneSeries(cum)
	if err := series.Diff(d7, 7); err != nil {
		panic(err)
	}

	d7s7 := cloneSeries(d7)
	series.ShiftFwd(d7s7, 7)

	return &Group[K]{Cum: cum, D1: d1copy, D7: d7, D7S7: d7s7}
}

// FromD7 builds a Group from a trailing-7-day-sum series: unroll it to a
// daily series first, then proceed exactly as FromD1.
func FromD7[K comparable](d7 *series.TimeSeries[K, uint64]) *Group[K] {
	daily := series.Unrolled[K](d7, 7)
	return FromD1(daily)
}

func cloneSeries[K comparable](src *series.TimeSeries[K, uint64]) *series.TimeSeries[K, uint64] {
	dst := series.NewWithIndex[K, uint64](src.Index())
	for _, k := range src.Keys() {
		row, _ := src.Get(k)
		dstRow := dst.GetOrCreate(k)
		copy(dstRow, row)
	}
	return dst
}

// Rekeyed maps every series in the group through f, fan-in aggregating per
// series.Rekeyed's contract, and returns a new Group sharing the remapped
// keyspace.
func Rekeyed[K comparable, U comparable](g *Group[K], f func(K) (U, bool)) *Group[U] {
	return &Group[U]{
		Cum:  series.Rekeyed[K, U, uint64](g.Cum, f),
		D1:   series.Rekeyed[K, U, uint64](g.D1, f),
		D7:   series.Rekeyed[K, U, uint64](g.D7, f),
		D7S7: series.Rekeyed[K, U, uint64](g.D7S7, f),
	}
}

// Index returns the calendar all four series share.
func (g *Group[K]) Index() calendar.Index { return g.Cum.Index() }
