package report

import (
	"fmt"
	"time"
)

// Period is the half-open range [Start, End) a report covers.
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Validate rejects empty or inverted ranges.
func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return fmt.Errorf("report: period bounds must be set")
	}
	if !p.End.After(p.Start) {
		return fmt.Errorf("report: period end %s is not after start %s", p.End.Format(time.RFC3339), p.Start.Format(time.RFC3339))
	}
	return nil
}

// Label renders the period with an inclusive last day, e.g. "05 Oct 2026 - 11 Oct 2026".
func (p Period) Label() string {
	last := p.End.Add(-time.Nanosecond)
	return p.Start.Format("02 Jan 2006") + " - " + last.Format("02 Jan 2006")
}

// StartOfWeek returns Monday 00:00 of the week containing t, in t's location.
func StartOfWeek(t time.Time) time.Time {
	weekday := int(t.Weekday())
	if weekday == 0 { // Sunday
		weekday = 7
	}
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return day.AddDate(0, 0, -(weekday - 1))
}

// WeekOf returns the Monday-to-Monday period containing t.
func WeekOf(t time.Time) Period {
	start := StartOfWeek(t)
	return Period{Start: start, End: start.AddDate(0, 0, 7)}
}

// LastWeek returns the full week before the one containing now.
func LastWeek(now time.Time) Period {
	return WeekOf(now.AddDate(0, 0, -7))
}

// ParsePeriod parses "YYYY-MM-DD" bounds in loc. The end date is exclusive.
func ParsePeriod(from, to string, loc *time.Location) (Period, error) {
	if loc == nil {
		loc = time.Local
	}
	start, err := time.ParseInLocation(time.DateOnly, from, loc)
	if err != nil {
		return Period{}, fmt.Errorf("report: invalid start date %q: %w", from, err)
	}
	end, err := time.ParseInLocation(time.DateOnly, to, loc)
	if err != nil {
		return Period{}, fmt.Errorf("report: invalid end date %q: %w", to, err)
	}
	p := Period{Start: start, End: end}
	return p, p.Validate()
}
