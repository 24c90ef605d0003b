package counters_test

import (
	"testing"
	"time"

	"github.com/dheyman/epiflux/internal/counters"
	"github.com/dheyman/epiflux/internal/series"
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

func TestFromD1DerivedIdentities(t *testing.T) {
	d1 := series.New[key, uint64](date("2020-01-01"), date("2020-01-22"))
	row := d1.GetOrCreate(key{1})
	daily := []uint64{1, 0, 2, 3, 0, 0, 5, 1, 1, 4, 0, 2, 2, 3, 1, 0, 0, 6, 2, 1, 3}
	copy(row, daily)

	g := counters.FromD1(d1)

	cum, _ := g.Cum.Get(key{1})
	gd1, _ := g.D1.Get(key{1})
	gd7, _ := g.D7.Get(key{1})
	gd7s7, _ := g.D7S7.Get(key{1})

	for i := 1; i < len(daily); i++ {
		if cum[i]-cum[i-1] != gd1[i] {
			t.Fatalf("slot %d: cum delta %d != d1 %d", i, cum[i]-cum[i-1], gd1[i])
		}
	}
	for i := 7; i < len(daily); i++ {
		if cum[i]-cum[i-7] != gd7[i] {
			t.Fatalf("slot %d: 7-day cum delta %d != d7 %d", i, cum[i]-cum[i-7], gd7[i])
		}
	}
	for i := 7; i < len(daily); i++ {
		if gd7s7[i] != gd7[i-7] {
			t.Fatalf("slot %d: d7s7 %d != d7 shifted %d", i, gd7s7[i], gd7[i-7])
		}
	}
}

func TestFromD1DoesNotMutateInput(t *testing.T) {
	d1 := series.New[key, uint64](date("2020-01-01"), date("2020-01-08"))
	row := d1.GetOrCreate(key{1})
	copy(row, []uint64{1, 2, 3, 4, 5, 6, 7})

	counters.FromD1(d1)

	row, _ = d1.Get(key{1})
	want := []uint64{1, 2, 3, 4, 5, 6, 7}
	for i, v := range want {
		if row[i] != v {
			t.Fatalf("input slot %d mutated: want %d got %d", i, v, row[i])
		}
	}
}

func TestFromD7RecoversD7(t *testing.T) {
	// Build a trailing 7-day sum from a constant daily rate and check that
	// FromD7's derived d7 reproduces it past the first window.
	const w = 7
	d7 := series.New[key, uint64](date("2020-01-01"), date("2020-01-29"))
	row := d7.GetOrCreate(key{1})
	for i := range row {
		if i >= w-1 {
			row[i] = 2 * w
		} else {
			row[i] = 2 * uint64(i+1)
		}
	}

	g := counters.FromD7(d7)
	gd7, _ := g.D7.Get(key{1})
	for i := w; i < len(row); i++ {
		if gd7[i] != row[i] {
			t.Fatalf("slot %d: want d7 %d got %d", i, row[i], gd7[i])
		}
	}
}

func TestRekeyedAggregatesGroup(t *testing.T) {
	d1 := series.New[key, uint64](date("2020-01-01"), date("2020-01-04"))
	a := d1.GetOrCreate(key{1})
	copy(a, []uint64{1, 1, 1})
	b := d1.GetOrCreate(key{2})
	copy(b, []uint64{2, 2, 2})

	g := counters.FromD1(d1)
	merged := counters.Rekeyed(g, func(key) (int, bool) { return 0, true })

	cum, ok := merged.Cum.Get(0)
	if !ok {
		t.Fatal("expected merged key 0")
	}
	want := []uint64{3, 6, 9}
	for i, v := range want {
		if cum[i] != v {
			t.Fatalf("slot %d: want cum %d got %d", i, v, cum[i])
		}
	}
}
