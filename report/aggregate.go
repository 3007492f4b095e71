package report

import (
	"fmt"
	"strconv"
	"strings"
)

// Row is one task with its own duration and the running total up to and including it.
type Row struct {
	Task            Task
	Minutes         int
	Spent           string
	Cumulative      int
	CumulativeSpent string
}

// Totals is the aggregated time of a task list.
type Totals struct {
	Rows []Row
	// PerTask maps task ID to its formatted own duration.
	PerTask      map[uint]string
	TotalMinutes int
	Total        string
}

// ParseTimeSpent parses "H:MM" into minutes. Hours may exceed 23; minutes must be 0..59.
func ParseTimeSpent(s string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || strings.Contains(m, ":") {
		return 0, ErrMalformedDuration
	}
	hours, err := parseUint(h)
	if err != nil {
		return 0, ErrMalformedDuration
	}
	mins, err := parseUint(m)
	if err != nil || mins > 59 {
		return 0, ErrMalformedDuration
	}
	return hours*60 + mins, nil
}

func parseUint(s string) (int, error) {
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, strconv.ErrSyntax
		}
	}
	return strconv.Atoi(s)
}

// FormatMinutes renders minutes as "X hrs Y mins".
func FormatMinutes(n int) string {
	return fmt.Sprintf("%d hrs %d mins", n/60, n%60)
}

// Aggregate sums the time spent of tasks in input order. A malformed value
// fails the whole aggregation with a *DataError.
func Aggregate(tasks []Task) (*Totals, error) {
	out := &Totals{
		Rows:    make([]Row, 0, len(tasks)),
		PerTask: make(map[uint]string, len(tasks)),
	}
	for _, t := range tasks {
		mins, err := ParseTimeSpent(t.TimeSpent)
		if err != nil {
			return nil, &DataError{TaskID: t.ID, Field: "time_spent", Value: t.TimeSpent, Err: err}
		}
		out.TotalMinutes += mins
		spent := FormatMinutes(mins)
		out.PerTask[t.ID] = spent
		out.Rows = append(out.Rows, Row{
			Task:            t,
			Minutes:         mins,
			Spent:           spent,
			Cumulative:      out.TotalMinutes,
			CumulativeSpent: FormatMinutes(out.TotalMinutes),
		})
	}
	out.Total = FormatMinutes(out.TotalMinutes)
	return out, nil
}
