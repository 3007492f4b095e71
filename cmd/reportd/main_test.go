package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/UniQw/reportq"
	"github.com/UniQw/reportq/config"
	ikeys "github.com/UniQw/reportq/internal/keys"
	"github.com/UniQw/reportq/mailer"
	"github.com/UniQw/reportq/source"
	mrd "github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Wednesday; the previous week is 5-12 Oct 2026.
var fixedNow = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

type env struct {
	rdb     *redis.Client
	client  *reportq.Client
	cfgPath string
	storage string
	out     *bytes.Buffer
}

func seedDB(t *testing.T, path string) {
	t.Helper()
	ctx := context.Background()
	st, err := source.Open("sqlite", path)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))
	require.NoError(t, st.Close())

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)
	day := time.Date(2026, 10, 6, 10, 0, 0, 0, time.UTC)
	stmts := []struct {
		sql  string
		args []any
	}{
		{"INSERT INTO users (id, first_name, last_name, email) VALUES (?, ?, ?, ?)", []any{1, "Ada", "Lovelace", "ada@example.com"}},
		{"INSERT INTO projects (id, title) VALUES (?, ?)", []any{1, "Alpha"}},
		{"INSERT INTO clients (id, first_name, last_name, email) VALUES (?, ?, ?, ?)", []any{1, "Grace", "Hopper", "grace@example.com"}},
		{"INSERT INTO clients (id, first_name, last_name, email) VALUES (?, ?, ?, ?)", []any{2, "Idle", "Client", "idle@example.com"}},
		{"INSERT INTO client_project (client_id, project_id) VALUES (?, ?)", []any{1, 1}},
		{"INSERT INTO tasks (id, title, description, time_spent, project_id, creator_id, start_date, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			[]any{1, "Design", "Wireframes", "2:30", 1, 1, day, day}},
		{"INSERT INTO tasks (id, title, description, time_spent, project_id, creator_id, start_date, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			[]any{2, "Build", "Landing page", "1:45", 1, 1, day, day.Add(time.Hour)}},
	}
	for _, s := range stmts {
		require.NoError(t, db.Exec(s.sql, s.args...).Error, s.sql)
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}

func setup(t *testing.T) *env {
	t.Helper()
	s := mrd.RunT(t)
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "tasks.db")
	seedDB(t, dbPath)

	storageRoot := filepath.Join(dir, "storage")
	cfgPath := filepath.Join(dir, "reportd.toml")
	cfg := fmt.Sprintf(`log_level = "error"

[database]
driver = "sqlite"
dsn = %q

[mail]
transport = "log"
from = "reports@example.com"
admin_recipients = ["admin@example.com"]

[schedule]
timezone = "UTC"

[storage]
root = %q
`, dbPath, storageRoot)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	out := &bytes.Buffer{}
	SetDeps(&Deps{
		Stdout: out,
		Stderr: io.Discard,
		Now:    func() time.Time { return fixedNow },
		Redis: func(config.Redis) redis.UniversalClient {
			return redis.NewClient(&redis.Options{Addr: s.Addr()})
		},
	})
	t.Cleanup(ResetDeps)

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &env{rdb: rdb, client: reportq.NewClient(rdb), cfgPath: cfgPath, storage: storageRoot, out: out}
}

func (e *env) run(args ...string) error {
	e.out.Reset()
	cmd := newRootCmd()
	cmd.SetArgs(append(args, "--config", e.cfgPath))
	return cmd.ExecuteContext(context.Background())
}

func (e *env) count(t *testing.T, st reportq.State) int64 {
	t.Helper()
	stats, err := e.client.Stats(context.Background(), "reports")
	require.NoError(t, err)
	return stats[st]
}

func TestRun_Clients(t *testing.T) {
	e := setup(t)
	require.NoError(t, e.run("run", "clients"))

	out := e.out.String()
	require.Contains(t, out, "05 Oct 2026 - 11 Oct 2026")
	require.Contains(t, out, "client_grace-hopper_20261014T090000Z.pdf")
	require.Contains(t, out, "skipped 1 client(s)")
	require.Contains(t, out, "admin summary enqueued")
	require.Equal(t, int64(2), e.count(t, reportq.StatePending))
}

func TestRun_CombinedArchives(t *testing.T) {
	e := setup(t)
	require.NoError(t, e.run("run", "combined", "--from", "2026-10-05", "--to", "2026-10-12"))

	require.Equal(t, int64(1), e.count(t, reportq.StatePending))
	pdf, err := os.ReadFile(filepath.Join(e.storage, "backups", "combined_all_20261014T090000Z.pdf"))
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))

	tasks, err := e.client.ListTasks(context.Background(), "reports", reportq.StatePending, nil)
	require.NoError(t, err)
	d, err := tasks[0].Delivery()
	require.NoError(t, err)
	require.Equal(t, pdf, d.Attachments[0].Data)
}

func TestRun_EmptyRangeIsNoop(t *testing.T) {
	e := setup(t)
	require.NoError(t, e.run("run", "combined", "--from", "2026-09-01", "--to", "2026-09-08"))
	require.Contains(t, e.out.String(), "enqueued 0 document(s)")
	require.Equal(t, int64(0), e.count(t, reportq.StatePending))
}

func TestRun_BadArgs(t *testing.T) {
	e := setup(t)
	require.Error(t, e.run("run", "combined", "--from", "2026-10-05"))
	require.Error(t, e.run("run", "weekly"))
	require.Error(t, e.run("run"))
}

func seedDead(t *testing.T, e *env, id string) {
	t.Helper()
	payload, err := (&reportq.JSONEncoder{}).Encode(reportq.Delivery{To: []string{"grace@example.com"}, Subject: "s"})
	require.NoError(t, err)
	raw, err := (&reportq.JSONEncoder{}).Encode(reportq.Task{
		ID: id, Type: reportq.TypeClientReport, Queue: "reports", Payload: payload,
		Attempts: 3, MaxAttempts: 3, RetryDelayMs: 30000, ErrRetention: -1,
		CompletedAt: fixedNow.UnixMilli(), LastError: "reportq: smtp transport: 421 busy",
	})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, e.rdb.LPush(ctx, ikeys.Dead("reports"), raw).Err())
	require.NoError(t, e.rdb.SAdd(ctx, ikeys.Unique("reports"), id).Err())
}

func TestDead_LsRetryRm(t *testing.T) {
	e := setup(t)
	require.NoError(t, e.run("dead", "ls"))
	require.Contains(t, e.out.String(), "no failed deliveries")

	seedDead(t, e, "dead-1")
	seedDead(t, e, "dead-2")
	require.NoError(t, e.run("dead", "ls"))
	out := e.out.String()
	require.Contains(t, out, "dead-1")
	require.Contains(t, out, "3/3")
	require.Contains(t, out, "421 busy")
	require.Contains(t, out, "grace@example.com")

	require.NoError(t, e.run("dead", "retry", "dead-1"))
	require.Equal(t, int64(1), e.count(t, reportq.StatePending))
	require.Equal(t, int64(1), e.count(t, reportq.StateDead))
	tasks, err := e.client.ListTasks(context.Background(), "reports", reportq.StatePending, nil)
	require.NoError(t, err)
	require.Equal(t, 0, tasks[0].Attempts)

	require.NoError(t, e.run("dead", "rm", "dead-2"))
	require.Equal(t, int64(0), e.count(t, reportq.StateDead))
	require.ErrorIs(t, e.run("dead", "rm", "nope"), reportq.ErrTaskNotFound)
}

func TestStats(t *testing.T) {
	e := setup(t)
	seedDead(t, e, "dead-1")
	require.NoError(t, e.run("stats"))
	out := e.out.String()
	for _, st := range reportq.AllStates {
		require.Contains(t, out, string(st))
	}
}

func TestRegisterJobs(t *testing.T) {
	a := &app{cfg: config.Default(), loc: time.UTC, log: reportq.NewLevelLogger(reportq.LevelError)}
	c := cron.New(cron.WithLocation(a.loc))
	require.NoError(t, registerJobs(context.Background(), c, a, &runner{}))
	require.Len(t, c.Entries(), 3)

	a.cfg.Schedule.PerClient = ""
	a.cfg.Storage.Retention = config.Duration{}
	c = cron.New()
	require.NoError(t, registerJobs(context.Background(), c, a, &runner{}))
	require.Len(t, c.Entries(), 1)

	a.cfg.Schedule.Combined = "every tuesday"
	require.Error(t, registerJobs(context.Background(), cron.New(), a, &runner{}))
}

func TestDeliveryServer_SendsQueuedReport(t *testing.T) {
	e := setup(t)
	a, err := loadApp(e.cfgPath)
	require.NoError(t, err)
	defer a.Close()
	a.cfg.Queue.Concurrency = 1

	srv := newDeliveryServer(a, mailer.Log{Logger: a.log})
	srv.Start()
	defer srv.Stop()

	ctx := context.Background()
	require.NoError(t, e.client.EnqueueDelivery(ctx, "reports", reportq.TypeSummary,
		reportq.Delivery{To: []string{"admin@example.com"}, Subject: "Weekly client reports", HTML: "<p>ok</p>"},
		reportq.Retention(time.Hour)))

	require.Eventually(t, func() bool {
		return e.count(t, reportq.StateSent) == 1
	}, 3*time.Second, 20*time.Millisecond)
}

type brokenCleaner struct{ calls int }

func (b *brokenCleaner) Cleanup(string, time.Duration) (int, error) {
	b.calls++
	return 0, os.ErrPermission
}

func TestCleanupArchives_LogsFailure(t *testing.T) {
	var errs bytes.Buffer
	log := &reportq.FmtLogger{Min: reportq.LevelDebug, Out: io.Discard, Err: &errs}
	st := &brokenCleaner{}

	cleanupArchives(log, st, time.Hour)
	require.Equal(t, 1, st.calls)
	require.Contains(t, errs.String(), "archive cleanup failed")
	require.Contains(t, errs.String(), os.ErrPermission.Error())
}
