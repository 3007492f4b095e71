package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"

	"github.com/bytedance/sonic"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Gmail sends raw MIME messages through the Gmail API as the authorized user.
type Gmail struct {
	svc *gmail.Service
}

// NewGmail creates a transport over an authorized HTTP client. Extra options
// are passed to the API client, e.g. option.WithEndpoint in tests.
func NewGmail(ctx context.Context, hc *http.Client, opts ...option.ClientOption) (*Gmail, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(hc)}, opts...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("mailer: gmail service: %w", err)
	}
	return &Gmail{svc: svc}, nil
}

// NewGmailFromFiles authorizes with an OAuth client credentials file and a
// previously issued token file.
func NewGmailFromFiles(ctx context.Context, credentialsPath, tokenPath string) (*Gmail, error) {
	creds, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("mailer: read credentials: %w", err)
	}
	cfg, err := google.ConfigFromJSON(creds, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("mailer: parse credentials: %w", err)
	}
	raw, err := os.ReadFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("mailer: read token: %w", err)
	}
	var tok oauth2.Token
	if err := sonic.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("mailer: parse token: %w", err)
	}
	return NewGmail(ctx, cfg.Client(ctx, &tok))
}

func (*Gmail) Name() string { return "gmail" }

func (g *Gmail) Send(ctx context.Context, m Message) (string, error) {
	msg, err := buildMsg(m)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}
	sent, err := g.svc.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(buf.Bytes()),
	}).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return sent.Id, nil
}
