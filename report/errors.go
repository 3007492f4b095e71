package report

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedDuration marks a time-spent value that is not "H:MM".
	ErrMalformedDuration = errors.New("malformed time spent")
	// ErrMissingRelation marks a task without its project or creator, or a client report without a client.
	ErrMissingRelation = errors.New("missing required relation")
)

// DataError is a problem with the input records of a single report. It fails
// that report only.
type DataError struct {
	TaskID uint
	Field  string
	Value  string
	Err    error
}

func (e *DataError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("report: task %d: %s %q: %v", e.TaskID, e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("report: task %d: %s: %v", e.TaskID, e.Field, e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }

// RenderError is a failure to produce the HTML or PDF document.
type RenderError struct {
	Stage string
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("report: render %s: %v", e.Stage, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }
