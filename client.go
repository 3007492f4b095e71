package reportq

import (
	"context"
	"fmt"
	"time"

	ikeys "github.com/UniQw/reportq/internal/keys"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Client enqueues delivery tasks and exposes the operator surface over a queue.
type Client struct {
	rdb     redis.UniversalClient
	encoder Encoder
}

// NewClient creates a new Client.
func NewClient(rdb redis.UniversalClient) *Client {
	return &Client{rdb: rdb, encoder: &JSONEncoder{}}
}

// EnqueueDelivery validates d and enqueues it as a task of the given type.
// The attachments are stored with the task, so retries resend the same bytes.
func (c *Client) EnqueueDelivery(ctx context.Context, queue, taskType string, d Delivery, opts ...Option) error {
	if err := d.Validate(); err != nil {
		return err
	}
	return c.Enqueue(ctx, queue, taskType, d, opts...)
}

// Enqueue adds a new task to the specified queue.
// It returns ErrDuplicateTask if the task ID (explicit or generated) already exists in the queue.
// The task is written in a single transaction: it is either fully enqueued or not at all.
func (c *Client) Enqueue(ctx context.Context, queue, taskType string, payload any, opts ...Option) error {
	data, err := c.encoder.Encode(payload)
	if err != nil {
		return err
	}
	cfg := newOptions(opts)

	id := cfg.id
	if id == "" {
		id = uuid.NewString()
	}

	ukey := ikeys.Unique(queue)
	ok, err := c.rdb.SAdd(ctx, ukey, id).Result()
	if err != nil {
		return err
	}
	if ok == 0 {
		return ErrDuplicateTask
	}

	t := Task{
		ID:           id,
		Type:         taskType,
		Queue:        queue,
		Payload:      data,
		MaxAttempts:  cfg.maxAttempts,
		RetryDelayMs: cfg.retryDelay.Milliseconds(),
		Retention:    int64(cfg.retention.Seconds()),
		ErrRetention: int64(cfg.errRetention.Seconds()),
		CreatedAt:    time.Now().UnixMilli(),
	}
	raw, err := c.encoder.Encode(t)
	if err != nil {
		_ = c.rdb.SRem(ctx, ukey, id).Err()
		return err
	}

	_, opErr := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if cfg.delay > 0 {
			p.ZAdd(ctx, ikeys.Delayed(queue), redis.Z{
				Score:  float64(time.Now().Add(cfg.delay).UnixMilli()),
				Member: raw,
			})
			return nil
		}
		p.LPush(ctx, ikeys.Pending(queue), raw)
		return nil
	})
	if opErr != nil {
		// Rollback uniqueness on failure
		_ = c.rdb.SRem(ctx, ukey, id).Err()
		return opErr
	}
	return nil
}

// TaskFilter is a function used to filter tasks during ListTasks.
type TaskFilter func(*Task) bool

func stateKey(queue string, state State) (string, error) {
	switch state {
	case StatePending:
		return ikeys.Pending(queue), nil
	case StateActive:
		return ikeys.Active(queue), nil
	case StateDelayed:
		return ikeys.Delayed(queue), nil
	case StateSent:
		return ikeys.Sent(queue), nil
	case StateDead:
		return ikeys.Dead(queue), nil
	default:
		return "", ErrUnknownState
	}
}

// ListTasks returns the tasks in a state for the given queue, optionally filtered.
func (c *Client) ListTasks(ctx context.Context, queue string, state State, filter TaskFilter) ([]*Task, error) {
	key, err := stateKey(queue, state)
	if err != nil {
		return nil, err
	}

	typ, err := c.rdb.Type(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	var strs []string
	switch typ {
	case "none":
		return nil, nil
	case "list":
		strs, err = c.rdb.LRange(ctx, key, 0, -1).Result()
	case "zset":
		strs, err = c.rdb.ZRange(ctx, key, 0, -1).Result()
	default:
		return nil, fmt.Errorf("reportq: unsupported redis type %q for %s", typ, key)
	}
	if err != nil {
		return nil, err
	}

	out := make([]*Task, 0, len(strs))
	for _, s := range strs {
		var t Task
		if err := c.encoder.Decode([]byte(s), &t); err != nil {
			continue
		}
		if filter == nil || filter(&t) {
			out = append(out, &t)
		}
	}
	return out, nil
}

// Stats counts tasks per state for a queue.
func (c *Client) Stats(ctx context.Context, queue string) (map[State]int64, error) {
	out := make(map[State]int64, len(AllStates))
	for _, st := range AllStates {
		key, _ := stateKey(queue, st)
		typ, err := c.rdb.Type(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		var n int64
		switch typ {
		case "list":
			n, err = c.rdb.LLen(ctx, key).Result()
		case "zset":
			n, err = c.rdb.ZCard(ctx, key).Result()
		}
		if err != nil {
			return nil, err
		}
		out[st] = n
	}
	return out, nil
}

func (c *Client) find(ctx context.Context, queue, id string, states ...State) (*Task, State, error) {
	for _, s := range states {
		tasks, err := c.ListTasks(ctx, queue, s, func(t *Task) bool { return t.ID == id })
		if err != nil {
			return nil, "", err
		}
		if len(tasks) > 0 {
			return tasks[0], s, nil
		}
	}
	return nil, "", ErrTaskNotFound
}

// DeleteTask removes a task by ID from the pending, delayed, sent or dead state.
// It returns ErrActiveState for a task currently leased by a worker and
// ErrTaskNotFound if the ID is unknown.
func (c *Client) DeleteTask(ctx context.Context, queue string, id string, opts ...Option) error {
	cfg := newOptions(opts)

	target, state, err := c.find(ctx, queue, id, StatePending, StateDelayed, StateSent, StateDead)
	if err == ErrTaskNotFound {
		if active, _, aerr := c.find(ctx, queue, id, StateActive); aerr == nil && active != nil {
			return ErrActiveState
		}
		return ErrTaskNotFound
	}
	if err != nil {
		return err
	}

	key, _ := stateKey(queue, state)
	raw, err := c.encoder.Encode(target)
	if err != nil {
		return err
	}

	_, err = c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		switch state {
		case StatePending, StateDead:
			p.LRem(ctx, key, 1, raw)
		default:
			p.ZRem(ctx, key, raw)
		}
		if state == StateDead {
			p.ZRem(ctx, ikeys.DeadExpiry(queue), raw)
		}
		if !cfg.keepUnique && state != StateSent {
			p.SRem(ctx, ikeys.Unique(queue), id)
		}
		return nil
	})
	return err
}

// RetryDead moves a dead task back to pending (or delayed with Delay) with a
// fresh attempt budget. Options can override MaxAttempts, RetryDelay and retention.
func (c *Client) RetryDead(ctx context.Context, queue string, id string, opts ...Option) error {
	t, _, err := c.find(ctx, queue, id, StateDead)
	if err != nil {
		return err
	}
	rawOld, err := c.encoder.Encode(t)
	if err != nil {
		return err
	}

	var cfg options
	for _, opt := range opts {
		opt(&cfg)
	}

	t.Attempts = 0
	t.LastError = ""
	t.LastErrorAt = 0
	t.CompletedAt = 0
	if cfg.maxAttempts > 0 {
		t.MaxAttempts = cfg.maxAttempts
	}
	if cfg.retryDelay > 0 {
		t.RetryDelayMs = cfg.retryDelay.Milliseconds()
	}
	if cfg.retention != 0 {
		t.Retention = int64(cfg.retention.Seconds())
	}
	if cfg.errRetention != 0 {
		t.ErrRetention = int64(cfg.errRetention.Seconds())
	}
	rawNew, err := c.encoder.Encode(t)
	if err != nil {
		return err
	}

	_, err = c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, ikeys.Dead(queue), 1, rawOld)
		p.ZRem(ctx, ikeys.DeadExpiry(queue), rawOld)
		if cfg.delay > 0 {
			p.ZAdd(ctx, ikeys.Delayed(queue), redis.Z{
				Score:  float64(time.Now().Add(cfg.delay).UnixMilli()),
				Member: rawNew,
			})
		} else {
			p.LPush(ctx, ikeys.Pending(queue), rawNew)
		}
		return nil
	})
	return err
}
