package domain

import "time"

// DayRange is a half-open range of calendar days [Start, End). Days are
// represented as midnight UTC of the calendar date so they compare and
// encode as plain dates.
type DayRange struct {
	Start time.Time
	End   time.Time
}

// Overlaps is the booking conflict rule: [a,b) and [c,d) intersect iff a < d && c < b.
// A checkout day equal to the next check-in day is not a conflict.
func (d DayRange) Overlaps(o DayRange) bool {
	return d.Start.Before(o.End) && o.Start.Before(d.End)
}

func (d DayRange) Nights() int {
	return int(d.End.Sub(d.Start).Hours() / 24)
}

// Calendar maps instants to the calendar days of the apartment's timezone.
type Calendar struct {
	loc *time.Location
}

func NewCalendar(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{loc: loc}
}

// Day drops the time of day of t as seen in the apartment's timezone.
func (c Calendar) Day(t time.Time) time.Time {
	y, m, d := t.In(c.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Stay is the occupied day range of a booking: [day(since), day(until)).
func (c Calendar) Stay(since, until time.Time) DayRange {
	return DayRange{Start: c.Day(since), End: c.Day(until)}
}

// Span covers every day from start to end inclusive.
func (c Calendar) Span(start, end time.Time) DayRange {
	return DayRange{Start: c.Day(start), End: c.Day(end).AddDate(0, 0, 1)}
}
