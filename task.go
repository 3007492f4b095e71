package reportq

import "time"

// Task is the queue envelope of a delivery. It is serialized to JSON and stored in Redis.
type Task struct {
	// ID is the unique identifier for the task.
	ID string `json:"id"`
	// Type routes the task to a handler registered on the Mux.
	Type string `json:"type"`
	// Queue is the name of the queue this task belongs to.
	Queue string `json:"queue"`
	// Payload is the encoded Delivery.
	Payload []byte `json:"payload"`
	// Attempts counts failed delivery attempts so far.
	Attempts int `json:"attempts"`
	// MaxAttempts bounds the number of attempts before the task is dead-lettered.
	MaxAttempts int `json:"max_attempts"`
	// RetryDelayMs is the fixed pause between a failed attempt and the next one.
	RetryDelayMs int64 `json:"retry_delay_ms"`
	// Retention is how long (seconds) a sent task is kept for inspection.
	Retention int64 `json:"retention"`
	// ErrRetention is how long (seconds) a dead task is kept; negative keeps it forever.
	ErrRetention int64 `json:"err_retention,omitempty"`
	CreatedAt    int64 `json:"created_at,omitempty"`
	StartedAt    int64 `json:"started_at,omitempty"`
	CompletedAt  int64 `json:"completed_at,omitempty"`
	// LastError is the error message from the last failed attempt.
	LastError   string `json:"last_error,omitempty"`
	LastErrorAt int64  `json:"last_error_at,omitempty"`
	// Result is what the handler attached, e.g. the transport message id.
	Result []byte `json:"result,omitempty"`
}

// RetryDelay returns the configured pause between attempts.
func (t *Task) RetryDelay() time.Duration {
	return time.Duration(t.RetryDelayMs) * time.Millisecond
}

// Delivery decodes the task payload.
func (t *Task) Delivery() (*Delivery, error) { return DecodeDelivery(t.Payload) }
