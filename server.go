package reportq

import (
	"context"
	"sync"
	"time"

	rtm "github.com/UniQw/reportq/internal/runtime"
	"github.com/redis/go-redis/v9"
)

// ServerConfig defines the configuration for a delivery Server.
type ServerConfig struct {
	// Queues defines the queues to process and their relative weights.
	Queues map[string]int
	// Concurrency is the number of worker goroutines.
	Concurrency int
	// VisibilityTTL is the lease of a dequeued task and the deadline of one
	// attempt. The worker renews the lease while the attempt runs. Zero means 2m.
	VisibilityTTL time.Duration
	// PollInterval is how long an idle worker waits before polling again.
	PollInterval time.Duration
	// Logger is the logger used for server events.
	Logger Logger
	// OnDead is called with every task that exhausted its attempts.
	OnDead func(*Task)
}

// Server runs delivery workers against Redis queues.
type Server struct {
	rt      *rtm.Runtime
	mux     *Mux
	mu      sync.Mutex
	started bool
	log     Logger
}

// NewServer creates a new delivery Server.
func NewServer(rdb redis.UniversalClient, cfg ServerConfig, mux *Mux) *Server {
	l := cfg.Logger
	if l == nil {
		l = NewFmtLogger()
	}
	exec := func(ctx context.Context, taskType string, payload []byte) error {
		h, ok := mux.lookup(taskType)
		if !ok {
			return rtm.ErrNoHandler
		}
		return h(ctx, payload)
	}

	rtc := rtm.Config{
		Queues:        cfg.Queues,
		Concurrency:   cfg.Concurrency,
		VisibilityTTL: cfg.VisibilityTTL,
		PollInterval:  cfg.PollInterval,
		Logger:        l,
	}
	if cfg.OnDead != nil {
		enc := &JSONEncoder{}
		rtc.OnDead = func(raw []byte) {
			var t Task
			if err := enc.Decode(raw, &t); err != nil {
				l.Warnf("dead hook: decode failed err=%v", err)
				return
			}
			cfg.OnDead(&t)
		}
	}
	return &Server{rt: rtm.New(rdb, rtc, exec), mux: mux, log: l}
}

// Start launches the workers and maintenance routines. It is idempotent and non-blocking.
func (s *Server) Start() {
	s.mu.Lock()
	if s.started {
		s.log.Warnf("server already started; ignoring Start()")
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()
	s.log.Infof("starting delivery server: concurrency=%d queues=%d", s.rt.CfgConcurrency(), len(s.rt.CfgQueues()))
	s.rt.Start()
}

// Stop shuts down the server, waiting for attempts in flight to be recorded.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.started {
		s.log.Warnf("server not started; ignoring Stop()")
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()
	s.log.Infof("stopping delivery server")
	s.rt.Stop()
}

// LoggingMiddleware logs every attempt with its duration and outcome.
func LoggingMiddleware(l Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, payload []byte) error {
			start := time.Now()
			err := next(ctx, payload)
			if err != nil {
				l.Warnf("attempt failed: id=%s attempt=%d dur=%s err=%v", CurrentTaskID(ctx), CurrentAttempt(ctx), time.Since(start), err)
			} else {
				l.Debugf("attempt ok: id=%s attempt=%d dur=%s", CurrentTaskID(ctx), CurrentAttempt(ctx), time.Since(start))
			}
			return err
		}
	}
}
