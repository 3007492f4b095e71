package runtime

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/UniQw/reportq/internal/hctx"
	ikeys "github.com/UniQw/reportq/internal/keys"
	"github.com/UniQw/reportq/internal/worker"
	"github.com/redis/go-redis/v9"
)

// DefaultVisibilityTTL applies when Config.VisibilityTTL is not positive.
const DefaultVisibilityTTL = 2 * time.Minute

// ErrNoHandler indicates there is no handler for the task type; the runtime moves the task to dead without retry.
var ErrNoHandler = errors.New("no handler")

// Logger is a minimal logging interface used internally by the runtime.
// It mirrors the public logger in the root package to avoid an import cycle.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...any) {}
func (noopLogger) Infof(string, ...any)  {}
func (noopLogger) Warnf(string, ...any)  {}
func (noopLogger) Errorf(string, ...any) {}

type Config struct {
	Queues      map[string]int
	Concurrency int
	// VisibilityTTL is both the lease length and the deadline of one attempt.
	// A running attempt keeps renewing its lease, so only the lease of a
	// crashed worker ever expires.
	VisibilityTTL time.Duration
	// PollInterval is how long an idle worker sleeps before polling again.
	PollInterval time.Duration
	Logger       Logger
	// OnDead receives the stored JSON of every task moved to the dead list.
	OnDead func(raw []byte)
}

// Executor executes a task payload for a given type.
type Executor func(ctx context.Context, taskType string, payload []byte) error

type Runtime struct {
	rdb       redis.UniversalClient
	cfg       Config
	exec      Executor
	wg        sync.WaitGroup
	mu        sync.Mutex
	started   bool
	ctx       context.Context
	cancel    context.CancelFunc
	queueList []string
	qmap      map[string]ikeys.Queue
	log       Logger
}

// scheduleOneScript atomically moves one due item from the delayed ZSET to the pending LIST.
var scheduleOneScript = redis.NewScript(`
local dkey = KEYS[1]
local pkey = KEYS[2]
local now  = ARGV[1]
local items = redis.call('ZRANGEBYSCORE', dkey, '-inf', now, 'LIMIT', 0, 1)
if #items == 0 then return false end
local m = items[1]
local rem = redis.call('ZREM', dkey, m)
if rem == 1 then
  redis.call('LPUSH', pkey, m)
  return m
end
return false
`)

// reclaimOneScript atomically returns one expired lease from active to pending.
// The attempt counter is not touched: a lost lease is not a failed delivery.
var reclaimOneScript = redis.NewScript(`
local akey = KEYS[1]
local pkey = KEYS[2]
local now  = ARGV[1]
local items = redis.call('ZRANGEBYSCORE', akey, '-inf', now, 'LIMIT', 0, 1)
if #items == 0 then return false end
local m = items[1]
local rem = redis.call('ZREM', akey, m)
if rem == 1 then
  redis.call('LPUSH', pkey, m)
  return m
end
return false
`)

// New creates a runtime that manages workers and maintenance routines.
func New(rdb redis.UniversalClient, cfg Config, exec Executor) *Runtime {
	ctx, cancel := context.WithCancel(context.Background())
	qmap := make(map[string]ikeys.Queue, len(cfg.Queues))
	for q := range cfg.Queues {
		qmap[q] = ikeys.For(q)
	}
	lg := cfg.Logger
	if lg == nil {
		lg = noopLogger{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	if cfg.VisibilityTTL <= 0 {
		cfg.VisibilityTTL = DefaultVisibilityTTL
	}
	return &Runtime{
		rdb:       rdb,
		cfg:       cfg,
		exec:      exec,
		ctx:       ctx,
		cancel:    cancel,
		queueList: expandQueues(cfg.Queues),
		qmap:      qmap,
		log:       lg,
	}
}

// Start launches workers and background maintenance goroutines.
func (rt *Runtime) Start() {
	rt.mu.Lock()
	if rt.started {
		rt.log.Warnf("runtime already started; ignoring Start()")
		rt.mu.Unlock()
		return
	}
	rt.started = true
	rt.mu.Unlock()
	rt.log.Infof("runtime starting: concurrency=%d queues=%d", rt.cfg.Concurrency, len(rt.cfg.Queues))

	for i := 0; i < rt.cfg.Concurrency; i++ {
		rt.wg.Add(1)
		rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(i)))
		go func(r *rand.Rand) {
			defer rt.wg.Done()
			rt.workerLoop(r)
		}(rng)
	}

	for q := range rt.cfg.Queues {
		kset := rt.qmap[q]
		rt.every(time.Second, func() { rt.cleanSent(kset) })
		rt.every(time.Second, func() { rt.cleanDead(kset) })
		rt.every(100*time.Millisecond, func() { rt.drain("scheduler", scheduleOneScript, kset.Delayed, kset.Pending) })
		rt.every(200*time.Millisecond, func() { rt.drain("reclaimer", reclaimOneScript, kset.Active, kset.Pending) })
	}
}

// Stop cancels the internal context and waits for all goroutines to exit.
// A delivery attempt in flight finishes before Stop returns.
func (rt *Runtime) Stop() {
	rt.mu.Lock()
	if !rt.started {
		rt.log.Warnf("runtime not started; ignoring Stop()")
		rt.mu.Unlock()
		return
	}
	rt.started = false
	rt.mu.Unlock()
	rt.log.Infof("runtime stopping")

	rt.cancel()
	rt.wg.Wait()
}

func (rt *Runtime) every(d time.Duration, fn func()) {
	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-rt.ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

// drain runs a move-one script until it reports nothing left, capped per tick.
func (rt *Runtime) drain(name string, script *redis.Script, from, to string) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	for i := 0; i < 256; i++ {
		res, err := script.Run(rt.ctx, rt.rdb, []string{from, to}, now).Result()
		if err == redis.Nil || res == nil || res == false {
			return
		}
		if err != nil {
			if rt.ctx.Err() == nil {
				rt.log.Warnf("%s: script failed key=%s err=%v", name, from, err)
			}
			return
		}
	}
}

func (rt *Runtime) cleanSent(kset ikeys.Queue) {
	nowMs := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := rt.rdb.ZRemRangeByScore(rt.ctx, kset.Sent, "0", nowMs).Err(); err != nil && rt.ctx.Err() == nil {
		rt.log.Warnf("cleaner: sent sweep failed queue=%s err=%v", kset.Name, err)
	}
}

func (rt *Runtime) cleanDead(kset ikeys.Queue) {
	nowMs := strconv.FormatInt(time.Now().UnixMilli(), 10)
	members, err := rt.rdb.ZRangeByScore(rt.ctx, kset.DeadExpiry, &redis.ZRangeBy{Min: "0", Max: nowMs, Offset: 0, Count: 256}).Result()
	if err != nil && err != redis.Nil {
		if rt.ctx.Err() == nil {
			rt.log.Warnf("dead-cleaner: range failed queue=%s err=%v", kset.Name, err)
		}
		return
	}
	if len(members) == 0 {
		return
	}
	_, err = rt.rdb.TxPipelined(rt.ctx, func(p redis.Pipeliner) error {
		for _, m := range members {
			p.LRem(rt.ctx, kset.Dead, 1, m)
			p.ZRem(rt.ctx, kset.DeadExpiry, m)
		}
		return nil
	})
	if err != nil && rt.ctx.Err() == nil {
		rt.log.Warnf("dead-cleaner: purge failed queue=%s err=%v", kset.Name, err)
	}
}

func (rt *Runtime) workerLoop(rng *rand.Rand) {
	ql := rt.queueList
	if len(ql) == 0 {
		return
	}
	for {
		select {
		case <-rt.ctx.Done():
			return
		default:
		}

		kset := rt.qmap[ql[rng.Intn(len(ql))]]
		t, raw, err := worker.DequeueTask(rt.ctx, rt.rdb, kset, rt.cfg.VisibilityTTL)
		if err != nil && rt.ctx.Err() == nil {
			rt.log.Warnf("dequeue failed: queue=%s err=%v", kset.Name, err)
		}
		if t == nil {
			select {
			case <-rt.ctx.Done():
				return
			case <-time.After(rt.cfg.PollInterval):
			}
			continue
		}
		rt.process(kset, t, raw)
	}
}

// process runs one delivery attempt and applies its outcome. State transitions
// use a context detached from shutdown so an attempt that already ran is always recorded.
func (rt *Runtime) process(kset ikeys.Queue, t *worker.Task, raw []byte) {
	defer worker.Recycle(t)
	tctx := context.WithoutCancel(rt.ctx)

	t.StartedAt = time.Now().UnixMilli()
	st := hctx.New(t.ID, t.Attempts+1)
	actx, cancel := context.WithTimeout(hctx.WithState(rt.ctx, st), rt.cfg.VisibilityTTL)
	stop := rt.holdLease(tctx, kset, t.ID, raw)
	err := rt.exec(actx, t.Type, t.Payload)
	stop()
	cancel()
	t.Result = st.Result

	if errors.Is(err, ErrNoHandler) {
		t.Attempts++
		rt.bury(tctx, kset, t, raw, "no handler")
		return
	}

	o := worker.Decide(t.Attempts, t.MaxAttempts, t.RetryDelay(), err)
	switch o.Kind {
	case worker.Sent:
		if e := worker.Ack(tctx, rt.rdb, kset, raw); e != nil {
			rt.log.Errorf("ack failed: id=%s type=%s queue=%s err=%v", t.ID, t.Type, kset.Name, e)
		}
		if e := worker.TrackSentWithTTL(tctx, rt.rdb, kset, t); e != nil {
			rt.log.Warnf("track sent failed: id=%s queue=%s err=%v", t.ID, kset.Name, e)
		}
		// Release the de-dup lock so IDs do not accumulate forever.
		if e := rt.rdb.SRem(tctx, kset.Unique, t.ID).Err(); e != nil {
			rt.log.Warnf("unique unlock failed: id=%s queue=%s err=%v", t.ID, kset.Name, e)
		}
		rt.log.Debugf("sent: id=%s type=%s queue=%s attempts=%d", t.ID, t.Type, kset.Name, t.Attempts)
	case worker.Retry:
		if e := worker.RetryLater(tctx, rt.rdb, kset, t, raw, o, err.Error()); e != nil {
			rt.log.Errorf("retry transition failed: id=%s type=%s queue=%s err=%v", t.ID, t.Type, kset.Name, e)
			return
		}
		rt.log.Warnf("delivery failed, retrying: id=%s type=%s queue=%s attempt=%d/%d in=%s err=%v",
			t.ID, t.Type, kset.Name, o.Attempts, t.MaxAttempts, o.Delay, err)
	case worker.PermanentFailure:
		t.Attempts = o.Attempts
		rt.bury(tctx, kset, t, raw, err.Error())
	}
}

// holdLease pushes the lease of raw forward every third of the TTL until the
// returned stop func is called. ZADD XX never recreates a lease that was
// already acked or reclaimed; CH makes a missing lease report zero.
func (rt *Runtime) holdLease(ctx context.Context, kset ikeys.Queue, id string, raw []byte) (stop func()) {
	every := rt.cfg.VisibilityTTL / 3
	if every < 10*time.Millisecond {
		every = 10 * time.Millisecond
	}
	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
				lease := time.Now().Add(rt.cfg.VisibilityTTL).UnixMilli()
				n, err := rt.rdb.ZAddArgs(ctx, kset.Active, redis.ZAddArgs{
					XX:      true,
					Ch:      true,
					Members: []redis.Z{{Score: float64(lease), Member: raw}},
				}).Result()
				switch {
				case err != nil:
					rt.log.Warnf("lease renew failed: id=%s queue=%s err=%v", id, kset.Name, err)
				case n == 0:
					rt.log.Warnf("lease lost: id=%s queue=%s", id, kset.Name)
				}
			}
		}
	}()
	return func() {
		close(quit)
		<-done
	}
}

func (rt *Runtime) bury(ctx context.Context, kset ikeys.Queue, t *worker.Task, raw []byte, reason string) {
	stored, err := worker.FailToDead(ctx, rt.rdb, kset, t, raw, reason)
	if err != nil {
		rt.log.Errorf("dead transition failed: id=%s type=%s queue=%s err=%v", t.ID, t.Type, kset.Name, err)
		return
	}
	rt.log.Errorf("delivery permanently failed: id=%s type=%s queue=%s attempts=%d err=%s", t.ID, t.Type, kset.Name, t.Attempts, reason)
	if rt.cfg.OnDead != nil {
		rt.cfg.OnDead(stored)
	}
}

// CfgConcurrency exposes configured worker concurrency.
func (rt *Runtime) CfgConcurrency() int { return rt.cfg.Concurrency }

// CfgQueues exposes configured queues mapping.
func (rt *Runtime) CfgQueues() map[string]int { return rt.cfg.Queues }

func expandQueues(q map[string]int) []string {
	n := 0
	for _, w := range q {
		n += w
	}
	out := make([]string, 0, n)
	for name, weight := range q {
		for i := 0; i < weight; i++ {
			out = append(out, name)
		}
	}
	return out
}
