package reportq

import (
	"errors"
	"fmt"

	"github.com/UniQw/reportq/internal/worker"
)

// ErrDuplicateTask is returned when Enqueue is called with an ID that already exists for the queue.
var ErrDuplicateTask = errors.New("reportq: duplicate task id")

// ErrUnknownState is returned when an invalid state is used.
var ErrUnknownState = errors.New("reportq: unknown state")

// ErrActiveState is returned when an operation is not allowed on the active state.
var ErrActiveState = errors.New("reportq: operation not allowed on active state")

// ErrTaskNotFound is returned when a task with the specified ID is not found.
var ErrTaskNotFound = errors.New("reportq: task not found")

// ErrNoRecipients is returned when a delivery has no recipient address.
var ErrNoRecipients = errors.New("reportq: delivery has no recipients")

// ErrSkipRetry can be wrapped by a handler error to dead-letter the task
// immediately instead of spending the remaining attempts.
var ErrSkipRetry = worker.ErrSkipRetry

// TransportError reports a failed hand-off to a mail transport. It is retried
// by the queue and only surfaces to operators once attempts are exhausted.
type TransportError struct {
	Transport string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("reportq: %s transport: %v", e.Transport, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
