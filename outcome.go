package reportq

import (
	"time"

	"github.com/UniQw/reportq/internal/worker"
)

// Outcome is the decision taken after one delivery attempt.
type Outcome = worker.Outcome

// OutcomeKind enumerates Sent, Retry and PermanentFailure.
type OutcomeKind = worker.Kind

const (
	OutcomeSent             = worker.Sent
	OutcomeRetry            = worker.Retry
	OutcomePermanentFailure = worker.PermanentFailure
)

// AttemptDelivery decides what happens to t after an attempt that returned err.
// It does not mutate t.
func AttemptDelivery(t *Task, err error) Outcome {
	return worker.Decide(t.Attempts, t.MaxAttempts, t.RetryDelay(), err)
}

// Default retry policy.
const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 30 * time.Second
)
