// Package mailer sends deliveries through SMTP or the Gmail API.
package mailer

import (
	"bytes"
	"context"
	"fmt"

	"github.com/UniQw/reportq"
	"github.com/wneessen/go-mail"
)

// Message is a delivery with its sender.
type Message struct {
	From        string
	To          []string
	Subject     string
	HTML        string
	Attachments []reportq.Attachment
}

// MessageFrom builds a Message for d sent by from.
func MessageFrom(from string, d *reportq.Delivery) Message {
	return Message{From: from, To: d.To, Subject: d.Subject, HTML: d.HTML, Attachments: d.Attachments}
}

// Mailer hands a message to a transport and returns the transport's message id.
type Mailer interface {
	Name() string
	Send(ctx context.Context, m Message) (string, error)
}

func buildMsg(m Message) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.From); err != nil {
		return nil, fmt.Errorf("from %q: %w", m.From, err)
	}
	if err := msg.To(m.To...); err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	msg.Subject(m.Subject)
	msg.SetDate()
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextHTML, m.HTML)
	for _, a := range m.Attachments {
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		if err := msg.AttachReader(a.Name, bytes.NewReader(a.Data), mail.WithFileContentType(mail.ContentType(ct))); err != nil {
			return nil, fmt.Errorf("attach %s: %w", a.Name, err)
		}
	}
	return msg, nil
}

// Handler decodes a delivery task, sends it and records the transport
// message id as the task result. Transport failures are returned as
// *reportq.TransportError so the queue retries them.
func Handler(m Mailer, from string, log reportq.Logger) reportq.HandlerFunc {
	if log == nil {
		log = reportq.NewFmtLogger()
	}
	return func(ctx context.Context, payload []byte) error {
		d, err := reportq.DecodeDelivery(payload)
		if err != nil {
			return err
		}
		id, err := m.Send(ctx, MessageFrom(from, d))
		if err != nil {
			return &reportq.TransportError{Transport: m.Name(), Err: err}
		}
		log.Infof("delivered: id=%s attempt=%d to=%v attachments=%d message=%s",
			reportq.CurrentTaskID(ctx), reportq.CurrentAttempt(ctx), d.To, len(d.Attachments), id)
		return reportq.SetResult(ctx, id)
	}
}

// Log writes messages to a logger instead of sending them.
type Log struct {
	Logger reportq.Logger
}

func (Log) Name() string { return "log" }

func (l Log) Send(_ context.Context, m Message) (string, error) {
	msg, err := buildMsg(m)
	if err != nil {
		return "", err
	}
	l.Logger.Infof("mail (not sent): from=%s to=%v subject=%q attachments=%d", m.From, m.To, m.Subject, len(m.Attachments))
	return msg.GetMessageID(), nil
}
