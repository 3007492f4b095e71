// Package report turns task records into weekly time reports: it aggregates the
// time spent per task, renders an HTML document and rasterizes it to PDF.
package report

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// User is the creator of a task.
type User struct {
	ID        uint
	FirstName string
	LastName  string
	Email     string
}

// Initials returns the upper-cased first letters of the first and last name.
func (u *User) Initials() string {
	var b strings.Builder
	for _, s := range []string{u.FirstName, u.LastName} {
		r, _ := utf8.DecodeRuneInString(strings.TrimSpace(s))
		if r != utf8.RuneError {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// Client receives a per-client report.
type Client struct {
	ID        uint
	FirstName string
	LastName  string
	Email     string
}

func (c *Client) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Project groups tasks.
type Project struct {
	ID    uint
	Title string
}

// Task is a read-only snapshot of a tracked unit of work with its relations resolved.
type Task struct {
	ID          uint
	Title       string
	Description string
	StartDate   time.Time
	CreatedAt   time.Time
	// TimeSpent is the raw "H:MM" duration as stored.
	TimeSpent string
	Project   *Project
	Creator   *User
}

// Kind selects the report template framing.
type Kind string

const (
	// KindCombined covers every task in the period and goes to admins.
	KindCombined Kind = "combined"
	// KindClient covers the tasks of one client's projects and goes to that client.
	KindClient Kind = "client"
)
