package settlement

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock is a time of day in minutes since midnight. 24:00 is allowed as an end of day.
type Clock int

const endOfDay Clock = 24 * 60

func ParseClock(s string) (Clock, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid time %q, out of range", s)
	}
	return Clock(h*60 + m), nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Interval is a same-day time range
type Interval struct {
	Start Clock
	End   Clock
}

// ParseInterval parses "HH:MM" bounds. The end must be strictly after the start.
func ParseInterval(start, end string) (Interval, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Interval{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Interval{}, err
	}
	if e <= s {
		return Interval{}, fmt.Errorf("end time %s must be after start time %s", end, start)
	}
	if s == endOfDay {
		return Interval{}, fmt.Errorf("start time %s is out of range", start)
	}
	return Interval{Start: s, End: e}, nil
}

// Contains reports whether inner lies entirely inside i
func (i Interval) Contains(inner Interval) bool {
	return inner.Start >= i.Start && inner.End <= i.End
}

// Overlaps is the inclusive overlap test: ranges that only touch at an endpoint overlap.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start <= other.End && i.End >= other.Start
}

func (i Interval) Duration() time.Duration {
	return time.Duration(i.End-i.Start) * time.Minute
}

func (i Interval) String() string {
	return fmt.Sprintf("%s-%s", i.Start, i.End)
}

// At anchors the interval on a calendar day in loc
func (i Interval) At(day time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, d := day.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return midnight.Add(time.Duration(i.Start) * time.Minute), midnight.Add(time.Duration(i.End) * time.Minute)
}
