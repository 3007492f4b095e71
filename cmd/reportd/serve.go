package main

import (
	"context"
	"fmt"
	"time"

	"github.com/UniQw/reportq"
	"github.com/UniQw/reportq/mailer"
	"github.com/UniQw/reportq/storage"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

func newServeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run delivery workers and the weekly report schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(cmd.Context(), a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	m, err := a.newMailer(ctx)
	if err != nil {
		return err
	}
	r, err := a.newRunner()
	if err != nil {
		return err
	}
	defer r.Close()

	srv := newDeliveryServer(a, m)
	c := cron.New(cron.WithLocation(a.loc))
	if err := registerJobs(ctx, c, a, r); err != nil {
		return err
	}

	srv.Start()
	c.Start()
	a.log.Infof("reportd started: redis=%s queue=%s transport=%s jobs=%d", a.cfg.Redis.Addr, a.cfg.Queue.Name, m.Name(), len(c.Entries()))

	<-ctx.Done()
	a.log.Infof("signal received; stopping")
	<-c.Stop().Done()
	srv.Stop()
	return nil
}

func newDeliveryServer(a *app, m mailer.Mailer) *reportq.Server {
	mux := reportq.NewMux()
	mux.Use(reportq.LoggingMiddleware(a.log))
	mux.HandleAll(mailer.Handler(m, a.cfg.Mail.From, a.log))

	return reportq.NewServer(a.rdb, reportq.ServerConfig{
		Queues:        map[string]int{a.cfg.Queue.Name: 1},
		Concurrency:   a.cfg.Queue.Concurrency,
		VisibilityTTL: a.cfg.Queue.VisibilityTTL.Duration,
		Logger:        a.log,
		OnDead: func(t *reportq.Task) {
			to := "?"
			if d, err := t.Delivery(); err == nil {
				to = fmt.Sprint(d.To)
			}
			a.log.Errorf("operator action needed: delivery %s (%s) to %s failed %d time(s): %s; retry with `reportd dead retry %s`",
				t.ID, t.Type, to, t.Attempts, t.LastError, t.ID)
		},
	}, mux)
}

// registerJobs adds the report triggers and archive cleanup to c. Empty
// specs disable a trigger.
func registerJobs(ctx context.Context, c *cron.Cron, a *app, r *runner) error {
	if spec := a.cfg.Schedule.Combined; spec != "" {
		if _, err := c.AddFunc(spec, func() {
			if _, err := r.p.RunCombined(ctx, a.lastWeek()); err != nil {
				a.log.Errorf("scheduled combined report failed: %v", err)
			}
		}); err != nil {
			return fmt.Errorf("schedule.combined %q: %w", spec, err)
		}
	}
	if spec := a.cfg.Schedule.PerClient; spec != "" {
		if _, err := c.AddFunc(spec, func() {
			if _, err := r.p.RunPerClient(ctx, a.lastWeek()); err != nil {
				a.log.Errorf("scheduled client reports failed: %v", err)
			}
		}); err != nil {
			return fmt.Errorf("schedule.per_client %q: %w", spec, err)
		}
	}
	if keep := a.cfg.Storage.Retention.Duration; keep > 0 {
		if _, err := c.AddFunc("@daily", func() { cleanupArchives(a.log, r.store, keep) }); err != nil {
			return err
		}
	}
	return nil
}

type archiveCleaner interface {
	Cleanup(dir string, retention time.Duration) (int, error)
}

func cleanupArchives(log reportq.Logger, st archiveCleaner, keep time.Duration) {
	if _, err := st.Cleanup(storage.BackupDir, keep); err != nil {
		log.Errorf("archive cleanup failed: dir=%s err=%v", storage.BackupDir, err)
	}
}
