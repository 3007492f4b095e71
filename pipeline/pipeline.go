// Package pipeline drives the weekly report runs: it queries tasks, renders
// documents, archives the combined report and enqueues deliveries.
package pipeline

import (
	"context"
	"fmt"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/UniQw/reportq"
	"github.com/UniQw/reportq/report"
)

// Source returns fully populated task records.
type Source interface {
	Tasks(ctx context.Context, p report.Period) ([]report.Task, error)
	ClientTasks(ctx context.Context, p report.Period, clientID uint) ([]report.Task, error)
	Clients(ctx context.Context) ([]report.Client, error)
}

// Renderer produces documents and the admin summary body.
type Renderer interface {
	Render(r *report.Report) (*report.Document, error)
	RenderSummary(p report.Period, docs []*report.Document, failed []string) (string, error)
}

// Queue accepts deliveries for asynchronous sending.
type Queue interface {
	EnqueueDelivery(ctx context.Context, queue, taskType string, d reportq.Delivery, opts ...reportq.Option) error
}

// Storage archives generated files.
type Storage interface {
	Put(ctx context.Context, path string, data []byte) error
}

type Config struct {
	// Queue is the delivery queue name.
	Queue           string
	AdminRecipients []string
	CombinedSubject string
	ClientSubject   string
	SummarySubject  string
	// Parallelism bounds how many clients render at once. Values below 1 mean 1.
	Parallelism int
	MaxAttempts int
	RetryDelay  time.Duration
	// Retention keeps sent deliveries inspectable for this long.
	Retention time.Duration
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		Queue:           "reports",
		CombinedSubject: "Weekly task report",
		ClientSubject:   "Your weekly task report",
		SummarySubject:  "Weekly client reports",
		Parallelism:     1,
		MaxAttempts:     reportq.DefaultMaxAttempts,
		RetryDelay:      reportq.DefaultRetryDelay,
	}
}

// ClientFailure is a client whose report could not be generated or enqueued.
type ClientFailure struct {
	Client report.Client
	Err    error
}

// Result summarizes one run.
type Result struct {
	// Enqueued lists the document names handed to the delivery queue.
	Enqueued []string
	// Skipped lists clients without tasks in the period.
	Skipped []report.Client
	Failed  []ClientFailure
	// Summary is true when the admin summary was enqueued.
	Summary bool
}

// Pipeline runs report generation against its collaborators.
type Pipeline struct {
	src    Source
	render Renderer
	queue  Queue
	store  Storage
	cfg    Config
	log    reportq.Logger
}

func New(src Source, r Renderer, q Queue, st Storage, cfg Config, log reportq.Logger) *Pipeline {
	if log == nil {
		log = reportq.NewFmtLogger()
	}
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	return &Pipeline{src: src, render: r, queue: q, store: st, cfg: cfg, log: log}
}

func (p *Pipeline) options() []reportq.Option {
	var opts []reportq.Option
	if p.cfg.MaxAttempts > 0 {
		opts = append(opts, reportq.MaxAttempts(p.cfg.MaxAttempts))
	}
	if p.cfg.RetryDelay > 0 {
		opts = append(opts, reportq.RetryDelay(p.cfg.RetryDelay))
	}
	if p.cfg.Retention > 0 {
		opts = append(opts, reportq.Retention(p.cfg.Retention))
	}
	return opts
}

func attachment(d *report.Document) reportq.Attachment {
	return reportq.Attachment{Name: d.Name, ContentType: report.ContentTypePDF, Data: d.PDF}
}

func subject(base string, period report.Period) string {
	return fmt.Sprintf("%s (%s)", base, period.Label())
}

// RunCombined renders every task of the period into one report, archives it
// under backups/ and enqueues it to the admins. An empty period is a no-op.
func (p *Pipeline) RunCombined(ctx context.Context, period report.Period) (*Result, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	tasks, err := p.src.Tasks(ctx, period)
	if err != nil {
		return nil, err
	}
	res := &Result{}
	if len(tasks) == 0 {
		p.log.Infof("combined report: no tasks in %s, nothing to send", period.Label())
		return res, nil
	}

	doc, err := p.render.Render(&report.Report{Kind: report.KindCombined, Period: period, Tasks: tasks})
	if err != nil {
		p.log.Errorf("combined report: render failed: %v", err)
		return nil, err
	}
	if p.store != nil {
		if err := p.store.Put(ctx, path.Join("backups", doc.Name), doc.PDF); err != nil {
			p.log.Errorf("combined report: archive %s failed: %v", doc.Name, err)
		}
	}

	d := reportq.Delivery{
		To:          p.cfg.AdminRecipients,
		Subject:     subject(p.cfg.CombinedSubject, period),
		HTML:        string(doc.HTML),
		Attachments: []reportq.Attachment{attachment(doc)},
	}
	if err := p.queue.EnqueueDelivery(ctx, p.cfg.Queue, reportq.TypeCombinedReport, d, p.options()...); err != nil {
		p.log.Errorf("combined report: enqueue %s failed: %v", doc.Name, err)
		return nil, err
	}
	p.log.Infof("combined report: enqueued %s tasks=%d", doc.Name, len(tasks))
	res.Enqueued = append(res.Enqueued, doc.Name)
	return res, nil
}

// RunPerClient renders and enqueues one report per client with tasks in the
// period, then one admin summary carrying every generated document. A
// client's failure is logged and recorded; the other clients continue.
// Cancelling ctx stops starting new clients; the returned error is then ctx.Err().
func (p *Pipeline) RunPerClient(ctx context.Context, period report.Period) (*Result, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	clients, err := p.src.Clients(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	var (
		mu   sync.Mutex
		docs []*report.Document
		wg   sync.WaitGroup
	)
	sem := make(chan struct{}, p.cfg.Parallelism)

loop:
	for _, c := range clients {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break loop
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(c report.Client) {
			defer wg.Done()
			defer func() { <-sem }()
			doc, skipped, err := p.runClient(ctx, period, c)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				p.log.Errorf("client report: client=%d (%s) failed: %v", c.ID, c.FullName(), err)
				res.Failed = append(res.Failed, ClientFailure{Client: c, Err: err})
			case skipped:
				p.log.Infof("client report: client=%d (%s) has no tasks in %s, skipped", c.ID, c.FullName(), period.Label())
				res.Skipped = append(res.Skipped, c)
			default:
				docs = append(docs, doc)
				res.Enqueued = append(res.Enqueued, doc.Name)
			}
		}(c)
	}
	wg.Wait()

	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	sort.Strings(res.Enqueued)
	sort.Slice(res.Failed, func(i, j int) bool { return res.Failed[i].Client.ID < res.Failed[j].Client.ID })
	sort.Slice(res.Skipped, func(i, j int) bool { return res.Skipped[i].ID < res.Skipped[j].ID })

	if err := ctx.Err(); err != nil {
		p.log.Warnf("client reports: run cancelled after %d documents: %v", len(docs), err)
		return res, err
	}
	if len(docs) == 0 && len(res.Failed) == 0 {
		p.log.Infof("client reports: no tasks for any client in %s, nothing to send", period.Label())
		return res, nil
	}
	if err := p.enqueueSummary(ctx, period, docs, res.Failed); err != nil {
		p.log.Errorf("client reports: summary enqueue failed: %v", err)
		return res, err
	}
	res.Summary = true
	p.log.Infof("client reports: enqueued=%d skipped=%d failed=%d", len(res.Enqueued), len(res.Skipped), len(res.Failed))
	return res, nil
}

// runClient reports a panic in a collaborator as that client's failure.
func (p *Pipeline) runClient(ctx context.Context, period report.Period, c report.Client) (doc *report.Document, skipped bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, skipped, err = nil, false, fmt.Errorf("client %d: panic: %v", c.ID, r)
		}
	}()
	if c.Email == "" {
		return nil, false, fmt.Errorf("client %d: %w", c.ID, reportq.ErrNoRecipients)
	}
	tasks, err := p.src.ClientTasks(ctx, period, c.ID)
	if err != nil {
		return nil, false, err
	}
	if len(tasks) == 0 {
		return nil, true, nil
	}
	client := c
	doc, err = p.render.Render(&report.Report{Kind: report.KindClient, Period: period, Client: &client, Tasks: tasks})
	if err != nil {
		return nil, false, err
	}
	d := reportq.Delivery{
		To:          []string{c.Email},
		Subject:     subject(p.cfg.ClientSubject, period),
		HTML:        string(doc.HTML),
		Attachments: []reportq.Attachment{attachment(doc)},
	}
	if err := p.queue.EnqueueDelivery(ctx, p.cfg.Queue, reportq.TypeClientReport, d, p.options()...); err != nil {
		return nil, false, err
	}
	return doc, false, nil
}

func (p *Pipeline) enqueueSummary(ctx context.Context, period report.Period, docs []*report.Document, failed []ClientFailure) error {
	names := make([]string, 0, len(failed))
	for _, f := range failed {
		names = append(names, f.Client.FullName())
	}
	body, err := p.render.RenderSummary(period, docs, names)
	if err != nil {
		return err
	}
	d := reportq.Delivery{
		To:      p.cfg.AdminRecipients,
		Subject: subject(p.cfg.SummarySubject, period),
		HTML:    body,
	}
	for _, doc := range docs {
		d.Attachments = append(d.Attachments, attachment(doc))
	}
	return p.queue.EnqueueDelivery(ctx, p.cfg.Queue, reportq.TypeSummary, d, p.options()...)
}
