package lineproto_test

import (
	"strings"
	"testing"
	"time"

	"github.com/dheyman/epiflux/internal/lineproto"
)

func TestEscapeMeasurementAndTag(t *testing.T) {
	r := lineproto.Readout{
		Measurement: "a,b c",
		Tags: []lineproto.KV{
			{Name: "k=v", Value: lineproto.TagValue("x y")},
		},
		Fields: []lineproto.KV{
			{Name: "f", Value: lineproto.IntValue(1)},
		},
		Timestamp: time.Unix(0, 0).UTC(),
		Precision: lineproto.Seconds,
	}
	var sb strings.Builder
	if err := r.Write(&sb); err != nil {
		t.Fatal(err)
	}
	got := sb.String()
	if !strings.HasPrefix(got, `a\,b\ c,k\=v=x\ y `) {
		t.Fatalf("escaping mismatch: %q", got)
	}
}

func TestStringFieldEscape(t *testing.T) {
	r := lineproto.Readout{
		Measurement: "m",
		Fields: []lineproto.KV{
			{Name: "text", Value: lineproto.StringValue(`she said "hi"\`)},
		},
		Timestamp: time.Unix(1, 0).UTC(),
		Precision: lineproto.Seconds,
	}
	var sb strings.Builder
	if err := r.Write(&sb); err != nil {
		t.Fatal(err)
	}
	got := sb.String()
	want := `m text="she said \"hi\"\\" 1` + "\n"
	if got != want {
		t.Fatalf("want %q got %q", want, got)
	}
}

func TestPrecisionClampNanoseconds(t *testing.T) {
	ts := time.Date(2020, 1, 1, 0, 0, 0, 999_999_999, time.UTC)
	got := lineproto.Nanoseconds.EncodeTimestamp(ts)
	want := ts.Unix()*1_000_000_000 + 999_999_999
	if got != want {
		t.Fatalf("want %d got %d", want, got)
	}

	// A time.Time cannot carry 1e9 or more sub-second nanoseconds: one more
	// nanosecond rolls into the next whole second, which encodes as-is.
	over := time.Date(2020, 1, 1, 0, 0, 0, 999_999_999, time.UTC).Add(1)
	got = lineproto.Nanoseconds.EncodeTimestamp(over)
	wantNext := over.Unix() * 1_000_000_000
	if got != wantNext {
		t.Fatalf("want next second %d got %d", wantNext, got)
	}
}

func TestPrecisionClampMilliseconds(t *testing.T) {
	ts := time.Date(2020, 1, 1, 0, 0, 0, 999_999_999, time.UTC)
	got := lineproto.Milliseconds.EncodeTimestamp(ts)
	want := ts.Unix()*1_000 + 999
	if got != want {
		t.Fatalf("want %d got %d", want, got)
	}
}

// unescapeTagValue is a minimal reference parser for the tag-value escaping
// rule (backslash before \ , \t \n \r = and space), used only to verify
// that escaping round-trips. It reads up to the first unescaped space,
// which ends the tag set on the wire.
func unescapeTagValue(s string) string {
	var sb strings.Builder
	escaped := false
	for _, r := range s {
		if escaped {
			sb.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		if r == ' ' {
			break
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func TestTagValueEscapeRoundTrips(t *testing.T) {
	cases := []string{
		"plain",
		"a,b",
		"a=b",
		"a b",
		"a\tb",
		"a\\b",
		`mixed ,=\` + "\t",
	}
	for _, c := range cases {
		var sb strings.Builder
		r := lineproto.Readout{
			Measurement: "m",
			Tags:        []lineproto.KV{{Name: "t", Value: lineproto.TagValue(c)}},
			Fields:      []lineproto.KV{{Name: "f", Value: lineproto.IntValue(1)}},
			Timestamp:   time.Unix(0, 0).UTC(),
			Precision:   lineproto.Seconds,
		}
		if err := r.Write(&sb); err != nil {
			t.Fatal(err)
		}
		line := sb.String()
		tagPart := strings.SplitN(line, "t=", 2)[1]
		if got := unescapeTagValue(tagPart); got != c {
			t.Fatalf("round trip: want %q got %q (wire %q)", c, got, tagPart)
		}
	}
}

func TestNoFieldsIsAnError(t *testing.T) {
	r := lineproto.Readout{Measurement: "m", Timestamp: time.Unix(0, 0).UTC()}
	var sb strings.Builder
	if err := r.Write(&sb); err == nil {
		t.Fatal("expected error for field-less readout")
	}
}
