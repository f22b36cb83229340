package scheduling

import (
	"testing"
	"time"
)

func TestDayBoundariesInJST(t *testing.T) {
	d := CalendarDate{Year: 2026, Month: time.January, Day: 15}

	if got, want := JST.DayStart(d), time.Date(2026, 1, 14, 15, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("DayStart = %s, want %s", got, want)
	}
	if got, want := JST.DayEnd(d), time.Date(2026, 1, 15, 14, 59, 59, int(999*time.Millisecond), time.UTC); !got.Equal(want) {
		t.Fatalf("DayEnd = %s, want %s", got, want)
	}
}

func TestDateOfAroundLocalMidnight(t *testing.T) {
	cases := []struct {
		instant time.Time
		want    string
	}{
		{time.Date(2026, 1, 14, 14, 59, 59, 0, time.UTC), "2026-01-14"},
		{time.Date(2026, 1, 14, 15, 0, 0, 0, time.UTC), "2026-01-15"},
		{time.Date(2026, 12, 31, 15, 0, 0, 0, time.UTC), "2027-01-01"},
	}
	for _, tc := range cases {
		if got := JST.DateOf(tc.instant).String(); got != tc.want {
			t.Fatalf("DateOf(%s) = %s, want %s", tc.instant, got, tc.want)
		}
	}
}

func TestParseInstant(t *testing.T) {
	want := time.Date(2026, 1, 15, 1, 0, 0, 0, time.UTC)
	for _, in := range []string{
		"2026-01-15T10:00",
		"2026-01-15 10:00:00",
		"2026-01-15T10:00:00+09:00",
		"2026-01-15T01:00:00Z",
	} {
		got, err := JST.ParseInstant(in)
		if err != nil {
			t.Fatalf("ParseInstant(%q): %v", in, err)
		}
		if !got.Equal(want) || got.Location() != time.UTC {
			t.Fatalf("ParseInstant(%q) = %s, want %s UTC", in, got, want)
		}
	}

	for _, in := range []string{"", "10:00", "2026/01/15 10:00"} {
		if _, err := JST.ParseInstant(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestCalendarDate(t *testing.T) {
	d, err := ParseDate("2026-02-28")
	if err != nil {
		t.Fatal(err)
	}
	if got := d.AddDays(1).String(); got != "2026-03-01" {
		t.Fatalf("AddDays rollover = %s", got)
	}
	if !d.Before(d.AddDays(1)) || d.AddDays(1).Before(d) {
		t.Fatal("Before is not ordered")
	}
	if _, err := ParseDate("2026-02-30"); err == nil {
		t.Fatal("expected error for impossible date")
	}
	if !(CalendarDate{}).IsZero() || d.IsZero() {
		t.Fatal("IsZero mismatch")
	}
}

func TestAtAndFormat(t *testing.T) {
	d := CalendarDate{Year: 2026, Month: time.January, Day: 15}
	at := JST.At(d, 10, 30)
	if !at.Equal(time.Date(2026, 1, 15, 1, 30, 0, 0, time.UTC)) {
		t.Fatalf("At = %s", at)
	}
	if got := JST.Format(at); got != "2026-01-15T10:30:00+09:00" {
		t.Fatalf("Format = %s", got)
	}
}
