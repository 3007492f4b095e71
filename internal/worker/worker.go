package worker

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/UniQw/reportq/internal/keys"
	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// Task mirrors the public Task envelope; it lives here so the runtime
// does not depend on the root package.
type Task struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Queue        string `json:"queue"`
	Payload      []byte `json:"payload"`
	Attempts     int    `json:"attempts"`
	MaxAttempts  int    `json:"max_attempts"`
	RetryDelayMs int64  `json:"retry_delay_ms"`
	Retention    int64  `json:"retention"`
	ErrRetention int64  `json:"err_retention,omitempty"`
	CreatedAt    int64  `json:"created_at,omitempty"`
	StartedAt    int64  `json:"started_at,omitempty"`
	CompletedAt  int64  `json:"completed_at,omitempty"`
	LastError    string `json:"last_error,omitempty"`
	LastErrorAt  int64  `json:"last_error_at,omitempty"`
	Result       []byte `json:"result,omitempty"`
}

// RetryDelay returns the configured pause between attempts.
func (t *Task) RetryDelay() time.Duration {
	return time.Duration(t.RetryDelayMs) * time.Millisecond
}

var taskPool = sync.Pool{New: func() any { return new(Task) }}

// Atomic dequeue: RPOP from pending and ZADD into active with the lease expiry (ms) as score.
var dequeueScript = redis.NewScript(
	// language=Lua
	`
	local v = redis.call('RPOP', KEYS[1])
	if not v then return false end
	redis.call('ZADD', KEYS[2], ARGV[1], v)
	return v
	`,
)

// Recycle returns a Task to the pool.
func Recycle(t *Task) {
	if t == nil {
		return
	}
	*t = Task{}
	taskPool.Put(t)
}

// DequeueTask atomically moves a task from the pending list to the active ZSET
// and returns the decoded task and its raw JSON. A nil task means the queue is empty.
func DequeueTask(ctx context.Context, rdb redis.UniversalClient, k keys.Queue, ttl time.Duration) (*Task, []byte, error) {
	lease := time.Now().Add(ttl).UnixMilli()
	res, err := dequeueScript.Run(ctx, rdb, []string{k.Pending, k.Active}, strconv.FormatInt(lease, 10)).Result()
	if err == redis.Nil || res == nil {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	var raw []byte
	switch v := res.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return nil, nil, nil
	}

	t := taskPool.Get().(*Task)
	if err := sonic.Unmarshal(raw, t); err != nil {
		Recycle(t)
		// Unreadable members would otherwise stay leased forever.
		_ = rdb.ZRem(ctx, k.Active, raw).Err()
		return nil, nil, err
	}
	return t, raw, nil
}

// Ack removes a task from the active ZSET after a successful send.
func Ack(ctx context.Context, rdb redis.UniversalClient, k keys.Queue, raw []byte) error {
	return rdb.ZRem(ctx, k.Active, raw).Err()
}

// TrackSentWithTTL records a sent task in the sent ZSET until its retention expires.
// Tasks without retention are not recorded.
func TrackSentWithTTL(ctx context.Context, rdb redis.UniversalClient, k keys.Queue, t *Task) error {
	if t.Retention <= 0 {
		return nil
	}
	t.CompletedAt = time.Now().UnixMilli()
	expireMs := t.CompletedAt + (t.Retention * 1000)
	return rdb.ZAdd(ctx, k.Sent, redis.Z{Score: float64(expireMs), Member: encodeJSON(t)}).Err()
}

// RetryLater re-queues a failed task into the delayed ZSET. The stored copy
// carries the incremented attempt counter and the last error.
func RetryLater(ctx context.Context, rdb redis.UniversalClient, k keys.Queue, t *Task, raw []byte, o Outcome, lastErr string) error {
	t.Attempts = o.Attempts
	t.LastError = lastErr
	t.LastErrorAt = time.Now().UnixMilli()
	newRaw := encodeJSON(t)
	next := time.Now().Add(o.Delay).UnixMilli()
	_, err := rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, k.Active, raw)
		p.ZAdd(ctx, k.Delayed, redis.Z{Score: float64(next), Member: newRaw})
		return nil
	})
	return err
}

// FailToDead moves a task from the active ZSET to the dead list and returns the
// stored JSON. With ErrRetention == 0 the task is dropped instead of stored.
func FailToDead(ctx context.Context, rdb redis.UniversalClient, k keys.Queue, t *Task, raw []byte, reason string) ([]byte, error) {
	if reason != "" {
		t.LastError = reason
		t.LastErrorAt = time.Now().UnixMilli()
	}
	t.CompletedAt = time.Now().UnixMilli()
	newRaw := encodeJSON(t)
	_, err := rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, k.Active, raw)
		if t.ErrRetention != 0 {
			p.LPush(ctx, k.Dead, newRaw)
			if t.ErrRetention > 0 {
				expireMs := t.CompletedAt + (t.ErrRetention * 1000)
				p.ZAdd(ctx, k.DeadExpiry, redis.Z{Score: float64(expireMs), Member: newRaw})
			}
		}
		return nil
	})
	return newRaw, err
}

// encodeJSON encodes with the stdlib; decoding goes through sonic.
func encodeJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
