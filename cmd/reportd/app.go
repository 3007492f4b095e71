package main

import (
	"context"
	"fmt"
	"time"

	"github.com/UniQw/reportq"
	"github.com/UniQw/reportq/config"
	"github.com/UniQw/reportq/mailer"
	"github.com/UniQw/reportq/pipeline"
	"github.com/UniQw/reportq/report"
	"github.com/UniQw/reportq/source"
	"github.com/UniQw/reportq/storage"
	"github.com/redis/go-redis/v9"
)

// app is the wiring shared by every command.
type app struct {
	cfg    config.Config
	log    *reportq.FmtLogger
	rdb    redis.UniversalClient
	client *reportq.Client
	loc    *time.Location
}

func loadApp(path string) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	log := reportq.NewLevelLogger(reportq.ParseLevel(cfg.LogLevel))
	log.Out, log.Err = deps.Stdout, deps.Stderr
	rdb := deps.Redis(cfg.Redis)
	return &app{cfg: cfg, log: log, rdb: rdb, client: reportq.NewClient(rdb), loc: loc}, nil
}

func (a *app) Close() error { return a.rdb.Close() }

// runner is a pipeline with the resources it holds open.
type runner struct {
	p     *pipeline.Pipeline
	store *storage.Local
	src   *source.Store
}

func (r *runner) Close() error { return r.src.Close() }

func (a *app) newRunner() (*runner, error) {
	src, err := source.Open(a.cfg.Database.Driver, a.cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	rnd, err := report.NewRenderer(report.WithClock(deps.Now))
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	st, err := storage.NewLocal(a.cfg.Storage.Root, a.log)
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	pcfg := pipeline.Config{
		Queue:           a.cfg.Queue.Name,
		AdminRecipients: a.cfg.Mail.AdminRecipients,
		CombinedSubject: a.cfg.Report.CombinedSubject,
		ClientSubject:   a.cfg.Report.ClientSubject,
		SummarySubject:  a.cfg.Report.SummarySubject,
		Parallelism:     a.cfg.Report.Parallelism,
		MaxAttempts:     a.cfg.Queue.MaxAttempts,
		RetryDelay:      a.cfg.Queue.RetryDelay.Duration,
		Retention:       a.cfg.Queue.Retention.Duration,
	}
	return &runner{p: pipeline.New(src, rnd, a.client, st, pcfg, a.log), store: st, src: src}, nil
}

func (a *app) newMailer(ctx context.Context) (mailer.Mailer, error) {
	m := a.cfg.Mail
	switch m.Transport {
	case "smtp":
		return mailer.NewSMTP(mailer.SMTPConfig{
			Host:     m.SMTP.Host,
			Port:     m.SMTP.Port,
			Username: m.SMTP.Username,
			Password: m.SMTP.Password,
			TLS:      m.SMTP.TLS,
			Timeout:  m.SMTP.Timeout.Duration,
		})
	case "gmail":
		return mailer.NewGmailFromFiles(ctx, m.Gmail.Credentials, m.Gmail.Token)
	case "log":
		return mailer.Log{Logger: a.log}, nil
	default:
		return nil, fmt.Errorf("unsupported mail transport %q", m.Transport)
	}
}

// lastWeek is the default report range in the configured timezone.
func (a *app) lastWeek() report.Period {
	return report.LastWeek(deps.Now().In(a.loc))
}
