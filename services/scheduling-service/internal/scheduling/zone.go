package scheduling

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// CalendarDate is a day in the business calendar, independent of any instant.
type CalendarDate struct {
	Year  int
	Month time.Month
	Day   int
}

func ParseDate(s string) (CalendarDate, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return CalendarDate{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return CalendarDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

func (d CalendarDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d CalendarDate) IsZero() bool {
	return d == CalendarDate{}
}

// AddDays normalizes through time.Date so month and year rollover work.
func (d CalendarDate) AddDays(n int) CalendarDate {
	t := time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC)
	return CalendarDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

func (d CalendarDate) Before(o CalendarDate) bool {
	return d.utcMidnight().Before(o.utcMidnight())
}

func (d CalendarDate) utcMidnight() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Zone is the fixed-offset business timezone. The clinic's region has no DST,
// so an offset is all that is needed.
type Zone struct {
	name   string
	offset time.Duration
	loc    *time.Location
}

// JST is the default business zone.
var JST = NewZone("JST", 9*time.Hour)

func NewZone(name string, offset time.Duration) Zone {
	return Zone{
		name:   name,
		offset: offset,
		loc:    time.FixedZone(name, int(offset/time.Second)),
	}
}

func (z Zone) Name() string             { return z.name }
func (z Zone) Offset() time.Duration    { return z.offset }
func (z Zone) Location() *time.Location { return z.loc }
func (z Zone) String() string           { return fmt.Sprintf("%s(%+.0fm)", z.name, z.offset.Minutes()) }

// DayStart is the UTC instant of local midnight on d. Local midnight happens
// offset earlier than UTC midnight, hence the subtraction.
func (z Zone) DayStart(d CalendarDate) time.Time {
	return d.utcMidnight().Add(-z.offset)
}

// DayEnd is the UTC instant of 23:59:59.999 local time on d.
func (z Zone) DayEnd(d CalendarDate) time.Time {
	return z.DayStart(d).Add(24*time.Hour - time.Millisecond)
}

// DateOf returns the local calendar date containing t.
func (z Zone) DateOf(t time.Time) CalendarDate {
	local := t.UTC().Add(z.offset)
	return CalendarDate{Year: local.Year(), Month: local.Month(), Day: local.Day()}
}

func (z Zone) Today(c Clock) CalendarDate {
	return z.DateOf(c.Now())
}

// At builds the instant for a local wall-clock time on d.
func (z Zone) At(d CalendarDate, hour, minute int) time.Time {
	return z.DayStart(d).Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

var wallLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseInstant is the one place user-entered times become instants. Strings
// carrying an explicit offset (RFC3339) are taken as is; zoneless wall-clock
// strings are read in the business zone. The result is always UTC.
func (z Zone) ParseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range wallLayouts {
		if t, err := time.ParseInLocation(layout, s, z.loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q: want RFC3339 or YYYY-MM-DDTHH:MM in %s", s, z.name)
}

// Format renders t as local wall-clock time with the zone offset.
func (z Zone) Format(t time.Time) string {
	return t.In(z.loc).Format(time.RFC3339)
}
