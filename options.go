package reportq

import "time"

type options struct {
	id           string
	delay        time.Duration
	maxAttempts  int
	retryDelay   time.Duration
	retention    time.Duration
	errRetention time.Duration
	keepUnique   bool
}

func newOptions(opts []Option) *options {
	cfg := &options{
		maxAttempts:  DefaultMaxAttempts,
		retryDelay:   DefaultRetryDelay,
		errRetention: -1 * time.Second, // keep dead tasks until an operator acts
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Option configures task behavior during Enqueue or RetryDead.
type Option func(*options)

// TaskID sets a custom ID for the task. If not provided, a random UUID is generated.
func TaskID(id string) Option {
	return func(o *options) { o.id = id }
}

// Delay makes the first attempt wait for d.
func Delay(d time.Duration) Option {
	return func(o *options) { o.delay = d }
}

// MaxAttempts bounds the number of delivery attempts. Values below 1 are ignored.
func MaxAttempts(n int) Option {
	return func(o *options) {
		if n >= 1 {
			o.maxAttempts = n
		}
	}
}

// RetryDelay sets the fixed pause between a failed attempt and the next one.
func RetryDelay(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.retryDelay = d
		}
	}
}

// Retention sets how long a sent task is kept in the sent state.
func Retention(d time.Duration) Option {
	return func(o *options) { o.retention = d }
}

// RetentionError sets how long a dead task is kept.
// If d is 0 the task is dropped on final failure; negative keeps it forever (default).
func RetentionError(d time.Duration) Option {
	return func(o *options) { o.errRetention = d }
}

// WithKeepUniqueLock keeps the uniqueness lock for the task ID after DeleteTask.
func WithKeepUniqueLock() Option {
	return func(o *options) { o.keepUnique = true }
}
