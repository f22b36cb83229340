package scheduling

import (
	"fmt"
	"strings"
	"time"
)

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// DemoClock replays the real time of day on a frozen calendar date, so
// "two hours from now" still behaves during a demo.
type DemoClock struct {
	date CalendarDate
	zone Zone
	wall func() time.Time
}

func NewDemoClock(date CalendarDate, zone Zone) *DemoClock {
	return &DemoClock{date: date, zone: zone, wall: time.Now}
}

func (c *DemoClock) Now() time.Time {
	cur := c.wall().In(c.zone.Location())
	sinceMidnight := time.Duration(cur.Hour())*time.Hour +
		time.Duration(cur.Minute())*time.Minute +
		time.Duration(cur.Second())*time.Second +
		time.Duration(cur.Nanosecond())
	return c.zone.DayStart(c.date).Add(sinceMidnight)
}

func (c *DemoClock) Date() CalendarDate { return c.date }

// FixedClock always returns the same instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c).UTC() }

// NewClock picks the clock for the process. Demo mode without a date falls
// back to the system clock; a malformed date is a configuration error.
func NewClock(demoMode bool, demoDate string, zone Zone) (Clock, error) {
	demoDate = strings.TrimSpace(demoDate)
	if !demoMode || demoDate == "" {
		return SystemClock{}, nil
	}
	d, err := ParseDate(demoDate)
	if err != nil {
		return nil, fmt.Errorf("DEMO_DATE: %w", err)
	}
	return NewDemoClock(d, zone), nil
}
