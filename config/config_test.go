package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestDefault_NeedsAdminRecipients(t *testing.T) {
	cfg := Default()
	require.ErrorContains(t, cfg.Validate(), "admin_recipients")

	cfg.Mail.AdminRecipients = []string{"ops@example.com"}
	require.NoError(t, cfg.Validate())
	require.Equal(t, 3, cfg.Queue.MaxAttempts)
	require.Equal(t, 30*time.Second, cfg.Queue.RetryDelay.Duration)
}

func TestLoad_TOML(t *testing.T) {
	p := writeFile(t, "reportd.toml", `
log_level = "debug"

[redis]
addr = "redis:6379"

[queue]
retry_delay = "45s"
concurrency = 8

[mail]
transport = "log"
from = "reports@example.com"
admin_recipients = ["a@example.com", "b@example.com"]

[schedule]
timezone = "Europe/Berlin"
per_client = ""
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "redis:6379", cfg.Redis.Addr)
	require.Equal(t, 45*time.Second, cfg.Queue.RetryDelay.Duration)
	require.Equal(t, 8, cfg.Queue.Concurrency)
	require.Equal(t, 3, cfg.Queue.MaxAttempts, "unset keys keep defaults")
	require.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.Mail.AdminRecipients)
	require.Equal(t, "", cfg.Schedule.PerClient)
	require.Equal(t, "0 6 * * 1", cfg.Schedule.Combined)

	loc, err := cfg.Location()
	require.NoError(t, err)
	require.Equal(t, "Europe/Berlin", loc.String())
}

func TestLoad_YAML(t *testing.T) {
	p := writeFile(t, "reportd.yaml", `
database:
  driver: mysql
  dsn: "user:pass@tcp(db:3306)/tasks?parseTime=true"
queue:
  max_attempts: 5
  visibility_ttl: 5m
mail:
  admin_recipients: [ops@example.com]
storage:
  root: /var/lib/reportq
  retention: 720h
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, "mysql", cfg.Database.Driver)
	require.Equal(t, 5, cfg.Queue.MaxAttempts)
	require.Equal(t, 5*time.Minute, cfg.Queue.VisibilityTTL.Duration)
	require.Equal(t, "/var/lib/reportq", cfg.Storage.Root)
	require.Equal(t, 720*time.Hour, cfg.Storage.Retention.Duration)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("REPORTQ_REDIS_ADDR", "10.0.0.1:6379")
	t.Setenv("REPORTQ_SMTP_PASSWORD", "secret")
	t.Setenv("REPORTQ_DATABASE_DSN", "file:test.db")
	t.Setenv("REPORTQ_CONCURRENCY", "2")
	t.Setenv("REPORTQ_ADMIN_RECIPIENTS", "a@example.com, b@example.com,")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.Mail.AdminRecipients)
	require.Equal(t, "10.0.0.1:6379", cfg.Redis.Addr)
	require.Equal(t, "secret", cfg.Mail.SMTP.Password)
	require.Equal(t, "file:test.db", cfg.Database.DSN)
	require.Equal(t, 2, cfg.Queue.Concurrency)
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv("REPORTQ_ADMIN_RECIPIENTS", "ops@example.com")
	cases := map[string]string{
		"unknown.toml":   "nope = 1\n",
		"bad.toml":       "[queue\n",
		"duration.toml":  "[queue]\nretry_delay = \"soon\"\n",
		"attempts.yaml":  "queue:\n  max_attempts: 0\n",
		"transport.yaml": "mail:\n  transport: pigeon\n",
		"strict.yaml":    "bogus: true\n",
		"zone.toml":      "[schedule]\ntimezone = \"Mars/Olympus\"\n",
		"config.json":    "{}",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, name, content))
			require.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestValidate_QueueAndMail(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*Config)
		want string
	}{
		{"no workers", func(c *Config) { c.Queue.Concurrency = 0 }, "queue.concurrency"},
		{"no lease", func(c *Config) { c.Queue.VisibilityTTL.Duration = 0 }, "queue.visibility_ttl"},
		{"lease shorter than smtp timeout", func(c *Config) { c.Queue.VisibilityTTL.Duration = 20 * time.Second }, "must exceed mail.smtp.timeout"},
		{"lease equal to smtp timeout", func(c *Config) { c.Queue.VisibilityTTL.Duration = 30 * time.Second }, "must exceed mail.smtp.timeout"},
		{"no admin recipients", func(c *Config) { c.Mail.AdminRecipients = nil }, "mail.admin_recipients is required"},
		{"blank admin recipient", func(c *Config) { c.Mail.AdminRecipients = []string{"ops@example.com", " "} }, "empty entry"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Mail.AdminRecipients = []string{"ops@example.com"}
			tc.mod(&cfg)
			require.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}

	// The smtp timeout only constrains the lease when smtp delivers.
	cfg := Default()
	cfg.Mail.AdminRecipients = []string{"ops@example.com"}
	cfg.Mail.Transport = "log"
	cfg.Queue.VisibilityTTL.Duration = 10 * time.Second
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingAdminRecipients(t *testing.T) {
	p := writeFile(t, "reportd.toml", "[mail]\ntransport = \"log\"\n")
	_, err := Load(p)
	require.ErrorContains(t, err, "admin_recipients")
}
