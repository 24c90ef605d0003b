// Package series implements the keyed multi-series numeric engine: a dense,
// date-indexed container per key plus the in-place algebra (cumulative sum,
// windowed diff, shift, unroll, rekey, synthesize) the rest of the pipeline
// is built from. The container never shrinks and never reorders keys; slot
// zero-fill and insertion-order independence are the only invariants callers
// may rely on.
package series

import (
	"fmt"
	"time"

	"github.com/dheyman/epiflux/internal/calendar"
	"github.com/dheyman/epiflux/internal/epierr"
)

// Numeric is the set of value types a TimeSeries may be parameterized over:
// u64 counters, i64 signed counters, and f64 gauges.
type Numeric interface {
	~uint64 | ~int64 | ~float64
}

// TimeSeries is a dense two-dimensional store: one zero-filled vector of
// length Len() per key, keyed by a hashable, equatable tuple K.
type TimeSeries[K comparable, V Numeric] struct {
	idx    calendar.Index
	keys   map[K]int
	series [][]V
}

// New returns an empty TimeSeries spanning [start, end).
func New[K comparable, V Numeric](start, end time.Time) *TimeSeries[K, V] {
	return &TimeSeries[K, V]{
		idx:  calendar.New(start, end),
		keys: make(map[K]int),
	}
}

// NewWithIndex returns an empty TimeSeries sharing an existing calendar.
func NewWithIndex[K comparable, V Numeric](idx calendar.Index) *TimeSeries[K, V] {
	return &TimeSeries[K, V]{idx: idx, keys: make(map[K]int)}
}

// Index returns the calendar this series is indexed against.
func (t *TimeSeries[K, V]) Index() calendar.Index { return t.idx }

// Len returns the number of slots per key.
func (t *TimeSeries[K, V]) Len() int { return t.idx.Len() }

// DateIndex maps a date to a slot using this series' calendar.
func (t *TimeSeries[K, V]) DateIndex(d time.Time) (int, bool) { return t.idx.DateIndex(d) }

// IndexDate maps a slot back to a date using this series' calendar.
func (t *TimeSeries[K, V]) IndexDate(i int) (time.Time, bool) { return t.idx.IndexDate(i) }

// GetOrCreate returns the mutable slot span for k, creating and zero-filling
// it on first use.
func (t *TimeSeries[K, V]) GetOrCreate(k K) []V {
	i := t.GetIndexOrCreate(k)
	return t.series[i]
}

// GetIndexOrCreate returns the internal row index for k, creating it if
// absent.
func (t *TimeSeries[K, V]) GetIndexOrCreate(k K) int {
	if i, ok := t.keys[k]; ok {
		return i
	}
	i := len(t.series)
	t.series = append(t.series, make([]V, t.idx.Len()))
	t.keys[k] = i
	return i
}

// GetIndex returns the internal row index for k, if present.
func (t *TimeSeries[K, V]) GetIndex(k K) (int, bool) {
	i, ok := t.keys[k]
	return i, ok
}

// Get returns the full slot span for k, if present.
func (t *TimeSeries[K, V]) Get(k K) ([]V, bool) {
	i, ok := t.keys[k]
	if !ok {
		return nil, false
	}
	return t.series[i], true
}

// GetValue returns the value of k at slot i, if both the key and the slot
// are present.
func (t *TimeSeries[K, V]) GetValue(k K, i int) (V, bool) {
	if i < 0 || i >= t.idx.Len() {
		var zero V
		return zero, false
	}
	row, ok := t.Get(k)
	if !ok {
		var zero V
		return zero, false
	}
	return row[i], true
}

// Keys returns the set of present keys in unspecified order.
func (t *TimeSeries[K, V]) Keys() []K {
	out := make([]K, 0, len(t.keys))
	for k := range t.keys {
		out = append(out, k)
	}
	return out
}

// Synthesize adds the element-wise sum of the kin series into kout, without
// dropping the kin components.
func (t *TimeSeries[K, V]) Synthesize(kin []K, kout K) {
	dst := t.GetOrCreate(kout)
	for _, k := range kin {
		src, ok := t.Get(k)
		if !ok {
			continue
		}
		for i := range dst {
			dst[i] += src[i]
		}
	}
}

// Add performs an element-wise add of other into t, restricted to keys
// present in both (keys intersected by hash lookup); keys only in other are
// skipped and never created in t.
func (t *TimeSeries[K, V]) Add(other *TimeSeries[K, V]) {
	for k, oi := range other.keys {
		dst, ok := t.Get(k)
		if !ok {
			continue
		}
		src := other.series[oi]
		for i := range dst {
			dst[i] += src[i]
		}
	}
}

// SubAt subtracts other's value at iRemote from t's value at iLocal for key
// k, panicking if the result would go below zero (used for data-quality
// assertions, never for tolerant arithmetic).
func (t *TimeSeries[K, V]) SubAt(k K, iLocal int, other *TimeSeries[K, V], otherKey K, iRemote int) {
	dst := t.GetOrCreate(k)
	src, ok := other.Get(otherKey)
	if !ok {
		return
	}
	v := dst[iLocal] - src[iRemote]
	if v > dst[iLocal] {
		panic("series: SubAt underflow")
	}
	dst[iLocal] = v
}

// FindGe returns the smallest index >= startAt whose slot value for k meets
// or exceeds value, and whether one was found.
func (t *TimeSeries[K, V]) FindGe(k K, startAt int, value V) (int, bool) {
	row, ok := t.Get(k)
	if !ok {
		return 0, false
	}
	for i := startAt; i < len(row); i++ {
		if row[i] >= value {
			return i, true
		}
	}
	return 0, false
}

// Rekeyed returns a fresh store where each old key k is mapped through f.
// If f returns ok=false, the entire series for k is dropped; otherwise the
// old vector is added element-wise into the new key's vector (fan-in
// aggregation). The new store shares the calendar of the old.
func Rekeyed[K comparable, U comparable, V Numeric](t *TimeSeries[K, V], f func(K) (U, bool)) *TimeSeries[U, V] {
	result := NewWithIndex[U, V](t.idx)
	for kOld, iOld := range t.keys {
		kNew, ok := f(kOld)
		if !ok {
			continue
		}
		dst := result.GetOrCreate(kNew)
		src := t.series[iOld]
		for i := range dst {
			dst[i] += src[i]
		}
	}
	return result
}

// Cumsum computes the in-place prefix sum along the time axis of every key.
func Cumsum[K comparable, V Numeric](t *TimeSeries[K, V]) {
	for _, row := range t.series {
		var accum V
		for i, v := range row {
			accum += v
			row[i] = accum
		}
	}
}

// Diff computes v[i-w] <- v[i] - v[i-w] for i in [w, len), then rotates
// right by w and zero-fills the leading w slots. Input is expected to be
// cumulative; a non-monotone input (v[i] < v[i-w]) is an arithmetic error.
func Diff[K comparable, V Numeric](t *TimeSeries[K, V], w int) error {
	for k, idx := range t.keys {
		row := t.series[idx]
		for i := w; i < len(row); i++ {
			il := i - w
			if row[i] < row[il] {
				return epierr.Wrap(epierr.Arithmetic, diffContext(k, il, row[i], row[il]), nil)
			}
			row[il] = row[i] - row[il]
		}
		rotateRight(row, w)
		for i := 0; i < w && i < len(row); i++ {
			row[i] = 0
		}
	}
	return nil
}

func diffContext[K comparable, V Numeric](k K, slot int, hi, lo V) string {
	return fmt.Sprintf("diff needs a cumulative input: key %v slot %d has %v < %v", k, slot, hi, lo)
}

// ShiftFwd rotates every key's row right by w, zero-filling the leading w
// slots. If w >= Len(), every row is entirely zeroed.
func ShiftFwd[K comparable, V Numeric](t *TimeSeries[K, V], w int) {
	if w >= t.idx.Len() {
		for _, row := range t.series {
			for i := range row {
				row[i] = 0
			}
		}
		return
	}
	for _, row := range t.series {
		rotateRight(row, w)
		for i := 0; i < w; i++ {
			row[i] = 0
		}
	}
}

func rotateRight[V any](s []V, w int) {
	n := len(s)
	if n == 0 {
		return
	}
	w = w % n
	if w < 0 {
		w += n
	}
	if w == 0 {
		return
	}
	rotated := make([]V, n)
	copy(rotated, s[n-w:])
	copy(rotated[w:], s[:n-w])
	copy(s, rotated)
}

// RfillZeroes right-extends the last known non-zero value of each key across
// any trailing run of zero slots.
func RfillZeroes[K comparable, V Numeric](t *TimeSeries[K, V]) {
	for _, row := range t.series {
		last := -1
		var lastVal V
		for i, v := range row {
			if v != 0 {
				last = i
				lastVal = v
			}
		}
		if last >= 0 && last < len(row)-1 {
			for i := last + 1; i < len(row); i++ {
				row[i] = lastVal
			}
		}
	}
}

// Unrolled reconstructs an approximate per-day series from a dense per-day
// series of trailing w-day sums, via d[i] = (s[i]-s[i-1]) + d[i-w], d[i<0] =
// 0, with a saturating negative-carry smoothing policy: a would-be-negative
// increment is absorbed into a non-negative carry register and the next
// positive increments are reduced by it, never going below zero.
func Unrolled[K comparable](t *TimeSeries[K, uint64], w int) *TimeSeries[K, uint64] {
	result := NewWithIndex[K, uint64](t.idx)
	for k, idx := range t.keys {
		s := t.series[idx]
		d := result.GetOrCreate(k)
		n := len(s)
		var carry uint64
		for i := 0; i < n; i++ {
			var sPrev uint64
			if i-1 >= 0 {
				sPrev = s[i-1]
			}
			var delta int64
			if i >= w {
				delta = int64(s[i]) - int64(sPrev) + int64(d[i-w])
			} else {
				delta = int64(s[i]) - int64(sPrev)
			}
			if delta < 0 {
				carry += uint64(-delta)
				d[i] = 0
				continue
			}
			v := uint64(delta)
			if carry > 0 {
				if carry >= v {
					carry -= v
					d[i] = 0
				} else {
					d[i] = v - carry
					carry = 0
				}
				continue
			}
			d[i] = v
		}
	}
	return result
}

// CheckedAddSigned saturating-adds a signed i64 series into t (a u64
// series), clamping each resulting slot at zero.
func CheckedAddSigned[K comparable](t *TimeSeries[K, uint64], other *TimeSeries[K, int64]) {
	for k, oi := range other.keys {
		dst := t.GetOrCreate(k)
		src := other.series[oi]
		for i := range dst {
			dst[i] = SaturatingAddI64(dst[i], src[i])
		}
	}
}

// SaturatingAddI64 adds a signed delta to an unsigned counter, clamping the
// result at zero on underflow.
func SaturatingAddI64(u uint64, delta int64) uint64 {
	if delta >= 0 {
		return u + uint64(delta)
	}
	mag := uint64(-delta)
	if mag >= u {
		return 0
	}
	return u - mag
}

// SaturatingSubU64 subtracts mag from u, clamping at zero.
func SaturatingSubU64(u, mag uint64) uint64 {
	if mag >= u {
		return 0
	}
	return u - mag
}
