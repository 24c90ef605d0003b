package views_test

import (
	"testing"
	"time"

	"github.com/dheyman/epiflux/internal/series"
	"github.com/dheyman/epiflux/internal/views"
)

func date(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

type key struct {
	district int
}

func TestIdentityZeroVsAbsence(t *testing.T) {
	ts := series.New[key, uint64](date("2020-01-01"), date("2020-01-08"))
	row := ts.GetOrCreate(key{1})
	copy(row, []uint64{0, 5, 0, 0, 0, 0, 0})

	v := views.Identity(ts)
	got, ok := v.Getf(key{1}, date("2020-01-01"))
	if !ok || got != 0 {
		t.Fatalf("present key, zero slot: want (0,true) got (%v,%v)", got, ok)
	}
	if _, ok := v.Getf(key{2}, date("2020-01-01")); ok {
		t.Fatal("absent key: want absence")
	}
	if _, ok := v.Getf(key{1}, date("2019-12-31")); ok {
		t.Fatal("out-of-range date: want absence")
	}
}

func TestShiftLaw(t *testing.T) {
	ts := series.New[key, uint64](date("2020-01-01"), date("2020-01-08"))
	row := ts.GetOrCreate(key{1})
	copy(row, []uint64{1, 2, 3, 4, 5, 6, 7})

	v := views.Shift[key](views.Identity(ts), 2)
	got, ok := v.Getf(key{1}, date("2020-01-01"))
	if !ok || got != 3 {
		t.Fatalf("shift by 2 at day 0: want (3,true) got (%v,%v)", got, ok)
	}
	if _, ok := v.Getf(key{1}, date("2020-01-07")); ok {
		t.Fatal("shift past end: want absence")
	}
}

func TestShiftRangeAndPad(t *testing.T) {
	ts := series.New[key, uint64](date("2020-01-01"), date("2020-01-08"))
	row := ts.GetOrCreate(key{1})
	copy(row, []uint64{1, 2, 3, 4, 5, 6, 7})

	r0, r1 := date("2020-01-02"), date("2020-01-04")
	v := views.Shift[key](views.Identity(ts), 1, views.WithRange[key](r0, r1))
	if _, ok := v.Getf(key{1}, date("2020-01-01")); ok {
		t.Fatal("before range: want absence")
	}
	if _, ok := v.Getf(key{1}, date("2020-01-04")); ok {
		t.Fatal("at range end (exclusive): want absence")
	}
	got, ok := v.Getf(key{1}, date("2020-01-02"))
	if !ok || got != 3 {
		t.Fatalf("in range: want (3,true) got (%v,%v)", got, ok)
	}

	padded := views.Shift[key](views.Identity(ts), 1, views.WithPad[key](9))
	got, ok = padded.Getf(key{1}, date("2020-01-07"))
	if !ok || got != 9 {
		t.Fatalf("shift past end with pad: want (9,true) got (%v,%v)", got, ok)
	}
}

func TestClamp(t *testing.T) {
	ts := series.New[key, uint64](date("2020-01-01"), date("2020-01-08"))
	row := ts.GetOrCreate(key{1})
	copy(row, []uint64{1, 2, 3, 4, 5, 6, 7})

	v := views.Clamp[key](views.Identity(ts), date("2020-01-02"), date("2020-01-04"))
	if _, ok := v.Getf(key{1}, date("2020-01-01")); ok {
		t.Fatal("before clamp range: want absence")
	}
	if _, ok := v.Getf(key{1}, date("2020-01-04")); ok {
		t.Fatal("at clamp end (exclusive): want absence")
	}
	got, ok := v.Getf(key{1}, date("2020-01-03"))
	if !ok || got != 3 {
		t.Fatalf("inside clamp range: want (3,true) got (%v,%v)", got, ok)
	}
}

func TestDiffAbsentWithoutPad(t *testing.T) {
	ts := series.New[key, uint64](date("2020-01-01"), date("2020-01-08"))
	row := ts.GetOrCreate(key{1})
	copy(row, []uint64{1, 2, 3, 4, 5, 6, 7})

	v := views.Diff[key](views.Identity(ts), 3)
	if _, ok := v.Getf(key{1}, date("2020-01-02")); ok {
		t.Fatal("d-w before start with no pad: want absence, not a synthesized 0")
	}
	got, ok := v.Getf(key{1}, date("2020-01-05"))
	if !ok || got != 3 {
		t.Fatalf("both sides present: want (3,true) got (%v,%v)", got, ok)
	}
	if _, ok := v.Getf(key{1}, date("2019-12-31")); ok {
		t.Fatal("d itself absent: want absence")
	}
}

func TestDiffPadSubstitutes(t *testing.T) {
	ts := series.New[key, uint64](date("2020-01-01"), date("2020-01-08"))
	row := ts.GetOrCreate(key{1})
	copy(row, []uint64{1, 2, 3, 4, 5, 6, 7})

	v := views.Diff[key](views.Identity(ts), 3, views.DiffPad[key](10))
	got, ok := v.Getf(key{1}, date("2020-01-02"))
	if !ok || got != -8 {
		t.Fatalf("d-w missing with pad 10: want (-8,true) got (%v,%v)", got, ok)
	}
}

func TestMovingSumTreatsIntermediateAbsenceAsZero(t *testing.T) {
	ts := series.New[key, uint64](date("2020-01-01"), date("2020-01-08"))
	row := ts.GetOrCreate(key{1})
	copy(row, []uint64{1, 2, 3, 4, 5, 6, 7})

	v := views.MovingSum[key](views.Identity(ts), 3)
	got, ok := v.Getf(key{1}, date("2020-01-02"))
	if !ok || got != 3 {
		t.Fatalf("window spans before start, treated as zero: want (3,true) got (%v,%v)", got, ok)
	}
	if _, ok := v.Getf(key{1}, date("2019-12-31")); ok {
		t.Fatal("d itself absent: want absence")
	}
}

func TestFilledBroadcastsFixedDate(t *testing.T) {
	ts := series.New[key, uint64](date("2020-01-01"), date("2020-01-08"))
	row := ts.GetOrCreate(key{1})
	copy(row, []uint64{42, 0, 0, 0, 0, 0, 0})

	v := views.Filled[key](views.Identity(ts), date("2020-01-01"))
	for i := 0; i < 7; i++ {
		got, ok := v.Getf(key{1}, date("2020-01-01").AddDate(0, 0, i))
		if !ok || got != 42 {
			t.Fatalf("slot %d: want (42,true) got (%v,%v)", i, got, ok)
		}
	}
}
