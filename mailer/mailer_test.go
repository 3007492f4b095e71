package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/UniQw/reportq"
	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func sampleMessage() Message {
	return Message{
		From:    "reports@example.com",
		To:      []string{"grace@example.com"},
		Subject: "Your weekly task report",
		HTML:    "<p>hello</p>",
		Attachments: []reportq.Attachment{
			{Name: "client_grace-hopper_20261012T000000Z.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.3 test")},
		},
	}
}

func TestBuildMsg(t *testing.T) {
	msg, err := buildMsg(sampleMessage())
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()
	require.Contains(t, raw, "Subject: Your weekly task report")
	require.Contains(t, raw, "grace@example.com")
	require.Contains(t, raw, "application/pdf")
	require.Contains(t, raw, "client_grace-hopper_20261012T000000Z.pdf")
	require.Contains(t, raw, "text/html")
	require.NotEmpty(t, msg.GetMessageID())
}

func TestBuildMsg_BadAddress(t *testing.T) {
	m := sampleMessage()
	m.To = []string{"not an address"}
	_, err := buildMsg(m)
	require.Error(t, err)
}

type fakeMailer struct {
	err  error
	got  []Message
	id   string
	name string
}

func (f *fakeMailer) Name() string { return f.name }

func (f *fakeMailer) Send(_ context.Context, m Message) (string, error) {
	f.got = append(f.got, m)
	return f.id, f.err
}

func payload(t *testing.T, d reportq.Delivery) []byte {
	t.Helper()
	b, err := (&reportq.JSONEncoder{}).Encode(d)
	require.NoError(t, err)
	return b
}

func quiet() reportq.Logger { return reportq.NewLevelLogger(reportq.LevelError) }

func TestHandler_Sends(t *testing.T) {
	m := &fakeMailer{id: "msg-1", name: "fake"}
	h := Handler(m, "reports@example.com", quiet())
	d := reportq.Delivery{To: []string{"a@example.com"}, Subject: "s", HTML: "<p>x</p>",
		Attachments: []reportq.Attachment{{Name: "a.pdf", ContentType: "application/pdf", Data: []byte{1, 2, 3}}}}

	require.NoError(t, h(context.Background(), payload(t, d)))
	require.Len(t, m.got, 1)
	require.Equal(t, "reports@example.com", m.got[0].From)
	require.Equal(t, []byte{1, 2, 3}, m.got[0].Attachments[0].Data)
}

func TestHandler_TransportFailureIsRetryable(t *testing.T) {
	boom := errors.New("421 try again later")
	m := &fakeMailer{err: boom, name: "fake"}
	h := Handler(m, "reports@example.com", quiet())

	err := h(context.Background(), payload(t, reportq.Delivery{To: []string{"a@example.com"}}))
	var te *reportq.TransportError
	require.True(t, errors.As(err, &te))
	require.Equal(t, "fake", te.Transport)
	require.ErrorIs(t, err, boom)
	require.False(t, errors.Is(err, reportq.ErrSkipRetry))
}

func TestHandler_BadPayloadSkipsRetry(t *testing.T) {
	m := &fakeMailer{name: "fake"}
	h := Handler(m, "reports@example.com", quiet())

	require.ErrorIs(t, h(context.Background(), []byte("{")), reportq.ErrSkipRetry)
	require.ErrorIs(t, h(context.Background(), payload(t, reportq.Delivery{})), reportq.ErrSkipRetry)
	require.Empty(t, m.got)
}

func TestLog_Send(t *testing.T) {
	var out bytes.Buffer
	l := Log{Logger: &reportq.FmtLogger{Out: &out, Err: io.Discard}}
	id, err := l.Send(context.Background(), sampleMessage())
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Contains(t, out.String(), "grace@example.com")
}

func TestGmail_Send(t *testing.T) {
	var gotRaw string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.True(t, strings.HasSuffix(r.URL.Path, "/users/me/messages/send"), r.URL.Path)
		var body struct {
			Raw string `json:"raw"`
		}
		b, _ := io.ReadAll(r.Body)
		require.NoError(t, sonic.Unmarshal(b, &body))
		gotRaw = body.Raw
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"gmail-123","threadId":"t1"}`))
	}))
	defer srv.Close()

	g, err := NewGmail(context.Background(), srv.Client(), option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)
	id, err := g.Send(context.Background(), sampleMessage())
	require.NoError(t, err)
	require.Equal(t, "gmail-123", id)

	raw, err := base64.URLEncoding.DecodeString(gotRaw)
	require.NoError(t, err)
	require.Contains(t, string(raw), "Subject: Your weekly task report")
	require.Contains(t, string(raw), "client_grace-hopper_20261012T000000Z.pdf")
}

func TestGmail_SendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"code":503,"message":"backend error"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g, err := NewGmail(context.Background(), srv.Client(), option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)
	_, err = g.Send(context.Background(), sampleMessage())
	require.Error(t, err)
}

func TestSMTP_UnreachableFails(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	s, err := NewSMTP(SMTPConfig{Host: "127.0.0.1", Port: port, TLS: "none", Timeout: time.Second})
	require.NoError(t, err)
	require.Equal(t, "smtp", s.Name())
	_, err = s.Send(context.Background(), sampleMessage())
	require.Error(t, err)
}

func TestNewSMTP_BadTLSPolicy(t *testing.T) {
	_, err := NewSMTP(SMTPConfig{Host: "localhost", Port: 25, TLS: "sometimes"})
	require.ErrorContains(t, err, "unknown tls policy")
}
