package worker

import (
	"errors"
	"time"
)

// ErrSkipRetry marks a handler error that must not be retried. Wrap it to send
// a task straight to the dead list regardless of remaining attempts.
var ErrSkipRetry = errors.New("reportq: skip retry")

// Kind enumerates the results of one delivery attempt.
type Kind int

const (
	// Sent means the transport accepted the message.
	Sent Kind = iota
	// Retry means the attempt failed and the task becomes visible again after Delay.
	Retry
	// PermanentFailure means attempts are exhausted and the task is dead-lettered.
	PermanentFailure
)

func (k Kind) String() string {
	switch k {
	case Sent:
		return "sent"
	case Retry:
		return "retry"
	case PermanentFailure:
		return "permanent_failure"
	default:
		return "unknown"
	}
}

// Outcome is the decision taken after a delivery attempt.
type Outcome struct {
	Kind Kind
	// Delay is only meaningful for Retry.
	Delay time.Duration
	// Attempts is the attempt counter after the decision.
	Attempts int
}

// Decide maps the result of an attempt to an Outcome. Failed attempts increment
// the counter; a task is retried only while the counter stays below maxAttempts,
// so it is never attempted more than maxAttempts times.
func Decide(attempts, maxAttempts int, delay time.Duration, err error) Outcome {
	if err == nil {
		return Outcome{Kind: Sent, Attempts: attempts}
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	attempts++
	if attempts >= maxAttempts || errors.Is(err, ErrSkipRetry) {
		return Outcome{Kind: PermanentFailure, Attempts: attempts}
	}
	return Outcome{Kind: Retry, Delay: delay, Attempts: attempts}
}
