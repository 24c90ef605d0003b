// Package views implements the composable lazy read layer over time series:
// a uniform "value at (key, date)" contract that the streaming submitter
// queries without ever materializing an intermediate buffer. Every
// combinator is a thin wrapper holding a reference to the next; no view
// computes anything until Getf is called.
package views

import (
	"time"

	"github.com/dheyman/epiflux/internal/calendar"
	"github.com/dheyman/epiflux/internal/series"
)

// View is a read-only "value at (key, date)" contract. Absence (ok=false)
// means "do not emit this field for this (key, date)".
type View[K comparable] interface {
	Getf(k K, d time.Time) (float64, bool)
}

// identity wraps a raw TimeSeries, converting to float64 on read. A present
// key with a zero slot yields 0, not absence; absence only occurs when the
// date is out of range or the key was never created.
type identity[K comparable, V series.Numeric] struct {
	ts *series.TimeSeries[K, V]
}

// Identity returns a View reading directly from a TimeSeries.
func Identity[K comparable, V series.Numeric](ts *series.TimeSeries[K, V]) View[K] {
	return identity[K, V]{ts: ts}
}

func (v identity[K, V]) Getf(k K, d time.Time) (float64, bool) {
	i, ok := v.ts.DateIndex(d)
	if !ok {
		return 0, false
	}
	val, ok := v.ts.GetValue(k, i)
	if !ok {
		return 0, false
	}
	return float64(val), true
}

// shift implements Shift(inner, by): getf(k,d) = inner.getf(k, d+by),
// restricted to an optional range [r0, r1) outside of which it returns
// absence, with an optional pad value substituted for inner absence.
type shift[K comparable] struct {
	inner    View[K]
	by       int
	hasRange bool
	r0, r1   time.Time
	hasPad   bool
	pad      float64
}

// ShiftOption configures Shift.
type ShiftOption[K comparable] func(*shift[K])

// WithRange restricts Shift to dates within [r0, r1); outside this range
// Getf returns absence regardless of the inner view.
func WithRange[K comparable](r0, r1 time.Time) ShiftOption[K] {
	return func(s *shift[K]) { s.hasRange = true; s.r0 = r0; s.r1 = r1 }
}

// WithPad substitutes pad whenever the inner view is absent.
func WithPad[K comparable](pad float64) ShiftOption[K] {
	return func(s *shift[K]) { s.hasPad = true; s.pad = pad }
}

// Shift returns a View reading the inner view at d+by days.
func Shift[K comparable](inner View[K], by int, opts ...ShiftOption[K]) View[K] {
	s := &shift[K]{inner: inner, by: by}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *shift[K]) Getf(k K, d time.Time) (float64, bool) {
	if s.hasRange && (d.Before(s.r0) || !d.Before(s.r1)) {
		return 0, false
	}
	v, ok := s.inner.Getf(k, calendar.AddDays(d, s.by))
	if !ok {
		if s.hasPad {
			return s.pad, true
		}
		return 0, false
	}
	return v, true
}

// clamp implements Clamp(inner, r0, r1): absence outside [r0, r1), inner
// value otherwise.
type clamp[K comparable] struct {
	inner  View[K]
	r0, r1 time.Time
}

// Clamp returns a View restricting inner to the half-open range [r0, r1).
func Clamp[K comparable](inner View[K], r0, r1 time.Time) View[K] {
	return clamp[K]{inner: inner, r0: r0, r1: r1}
}

func (c clamp[K]) Getf(k K, d time.Time) (float64, bool) {
	if d.Before(c.r0) || !d.Before(c.r1) {
		return 0, false
	}
	return c.inner.Getf(k, d)
}

// diff implements Diff(inner, w, pad): inner.getf(k,d) - (inner.getf(k,d-w)
// or pad); absent when d itself is absent, or when d-w is absent and no pad
// is set.
type diff[K comparable] struct {
	inner  View[K]
	w      int
	hasPad bool
	pad    float64
}

// DiffOption configures Diff.
type DiffOption[K comparable] func(*diff[K])

// DiffPad substitutes pad whenever inner is absent at d-w.
func DiffPad[K comparable](pad float64) DiffOption[K] {
	return func(df *diff[K]) { df.hasPad = true; df.pad = pad }
}

// Diff returns a View computing a trailing w-day difference of inner.
func Diff[K comparable](inner View[K], w int, opts ...DiffOption[K]) View[K] {
	df := &diff[K]{inner: inner, w: w}
	for _, o := range opts {
		o(df)
	}
	return df
}

func (df *diff[K]) Getf(k K, d time.Time) (float64, bool) {
	cur, ok := df.inner.Getf(k, d)
	if !ok {
		return 0, false
	}
	prev, ok := df.inner.Getf(k, calendar.AddDays(d, -df.w))
	if !ok {
		if !df.hasPad {
			return 0, false
		}
		prev = df.pad
	}
	return cur - prev, true
}

// movingSum implements MovingSum(inner, w): sum of inner over [d-w+1, d],
// absent if d itself is absent, treating intermediate absences as zero.
type movingSum[K comparable] struct {
	inner View[K]
	w     int
}

// MovingSum returns a View summing inner over a trailing w-day window.
func MovingSum[K comparable](inner View[K], w int) View[K] {
	return movingSum[K]{inner: inner, w: w}
}

func (m movingSum[K]) Getf(k K, d time.Time) (float64, bool) {
	if _, ok := m.inner.Getf(k, d); !ok {
		return 0, false
	}
	var total float64
	for offset := 0; offset < m.w; offset++ {
		v, ok := m.inner.Getf(k, calendar.AddDays(d, -offset))
		if ok {
			total += v
		}
	}
	return total, true
}

// filled implements Filled(inner, from): ignores d, always returns
// inner.getf(k, from). Used to broadcast a time-invariant series (e.g.
// population) over every date.
type filled[K comparable] struct {
	inner View[K]
	from  time.Time
}

// Filled returns a View that broadcasts inner's value at a fixed date.
func Filled[K comparable](inner View[K], from time.Time) View[K] {
	return filled[K]{inner: inner, from: from}
}

func (f filled[K]) Getf(k K, _ time.Time) (float64, bool) {
	return f.inner.Getf(k, f.from)
}
