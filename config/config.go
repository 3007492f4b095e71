// Package config loads reportd settings from a TOML or YAML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v2"
)

// Duration is a time.Duration written as a string such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

type Redis struct {
	Addr     string `toml:"addr" yaml:"addr"`
	Password string `toml:"password" yaml:"password"`
	DB       int    `toml:"db" yaml:"db"`
}

type Database struct {
	// Driver is "sqlite" or "mysql".
	Driver string `toml:"driver" yaml:"driver"`
	DSN    string `toml:"dsn" yaml:"dsn"`
}

type Queue struct {
	Name          string   `toml:"name" yaml:"name"`
	Concurrency   int      `toml:"concurrency" yaml:"concurrency"`
	VisibilityTTL Duration `toml:"visibility_ttl" yaml:"visibility_ttl"`
	MaxAttempts   int      `toml:"max_attempts" yaml:"max_attempts"`
	RetryDelay    Duration `toml:"retry_delay" yaml:"retry_delay"`
	// Retention is how long sent tasks stay inspectable.
	Retention Duration `toml:"retention" yaml:"retention"`
}

type SMTP struct {
	Host     string   `toml:"host" yaml:"host"`
	Port     int      `toml:"port" yaml:"port"`
	Username string   `toml:"username" yaml:"username"`
	Password string   `toml:"password" yaml:"password"`
	TLS      string   `toml:"tls" yaml:"tls"`
	Timeout  Duration `toml:"timeout" yaml:"timeout"`
}

type Gmail struct {
	Credentials string `toml:"credentials" yaml:"credentials"`
	Token       string `toml:"token" yaml:"token"`
}

type Mail struct {
	// Transport is "smtp", "gmail" or "log".
	Transport       string   `toml:"transport" yaml:"transport"`
	From            string   `toml:"from" yaml:"from"`
	AdminRecipients []string `toml:"admin_recipients" yaml:"admin_recipients"`
	SMTP            SMTP     `toml:"smtp" yaml:"smtp"`
	Gmail           Gmail    `toml:"gmail" yaml:"gmail"`
}

type Schedule struct {
	// Timezone is an IANA name or "Local".
	Timezone string `toml:"timezone" yaml:"timezone"`
	// Combined and PerClient are cron specs; empty disables the trigger.
	Combined  string `toml:"combined" yaml:"combined"`
	PerClient string `toml:"per_client" yaml:"per_client"`
}

type Storage struct {
	Root string `toml:"root" yaml:"root"`
	// Retention is how long archived reports are kept; zero keeps them forever.
	Retention Duration `toml:"retention" yaml:"retention"`
}

type Report struct {
	Parallelism     int    `toml:"parallelism" yaml:"parallelism"`
	CombinedSubject string `toml:"combined_subject" yaml:"combined_subject"`
	ClientSubject   string `toml:"client_subject" yaml:"client_subject"`
	SummarySubject  string `toml:"summary_subject" yaml:"summary_subject"`
}

// Config is the full reportd configuration.
type Config struct {
	LogLevel string   `toml:"log_level" yaml:"log_level"`
	Redis    Redis    `toml:"redis" yaml:"redis"`
	Database Database `toml:"database" yaml:"database"`
	Queue    Queue    `toml:"queue" yaml:"queue"`
	Mail     Mail     `toml:"mail" yaml:"mail"`
	Schedule Schedule `toml:"schedule" yaml:"schedule"`
	Storage  Storage  `toml:"storage" yaml:"storage"`
	Report   Report   `toml:"report" yaml:"report"`
}

// Default returns the settings used for anything the file leaves out.
func Default() Config {
	return Config{
		LogLevel: "info",
		Redis:    Redis{Addr: "127.0.0.1:6379"},
		Database: Database{Driver: "sqlite", DSN: "reportq.db"},
		Queue: Queue{
			Name:          "reports",
			Concurrency:   4,
			VisibilityTTL: Duration{2 * time.Minute},
			MaxAttempts:   3,
			RetryDelay:    Duration{30 * time.Second},
			Retention:     Duration{24 * time.Hour},
		},
		Mail: Mail{
			Transport: "smtp",
			SMTP:      SMTP{Port: 587, TLS: "mandatory", Timeout: Duration{30 * time.Second}},
		},
		Schedule: Schedule{Timezone: "Local", Combined: "0 6 * * 1", PerClient: "30 6 * * 1"},
		Storage:  Storage{Root: "storage", Retention: Duration{90 * 24 * time.Hour}},
		Report: Report{
			Parallelism:     1,
			CombinedSubject: "Weekly task report",
			ClientSubject:   "Your weekly task report",
			SummarySubject:  "Weekly client reports",
		},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path yields defaults plus environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return fmt.Errorf("config: %s: %w", path, err)
		}
		if und := md.Undecoded(); len(und) > 0 {
			return fmt.Errorf("config: %s: unknown keys %v", path, und)
		}
		return nil
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.SetStrict(true)
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("config: %s: %w", path, err)
		}
		return nil
	default:
		return fmt.Errorf("config: unsupported file type %q", filepath.Ext(path))
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func applyEnv(cfg *Config) {
	cfg.Redis.Addr = getenv("REPORTQ_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getenv("REPORTQ_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Database.DSN = getenv("REPORTQ_DATABASE_DSN", cfg.Database.DSN)
	cfg.Mail.SMTP.Password = getenv("REPORTQ_SMTP_PASSWORD", cfg.Mail.SMTP.Password)
	cfg.LogLevel = getenv("REPORTQ_LOG_LEVEL", cfg.LogLevel)
	if v := os.Getenv("REPORTQ_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Queue.Concurrency = n
		}
	}
	if v := os.Getenv("REPORTQ_ADMIN_RECIPIENTS"); v != "" {
		var to []string
		for _, a := range strings.Split(v, ",") {
			if a = strings.TrimSpace(a); a != "" {
				to = append(to, a)
			}
		}
		cfg.Mail.AdminRecipients = to
	}
}

// Validate rejects settings the daemon cannot run with.
func (c Config) Validate() error {
	if c.Queue.Name == "" {
		return fmt.Errorf("config: queue.name is required")
	}
	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("config: queue.max_attempts must be at least 1")
	}
	if c.Queue.RetryDelay.Duration < 0 {
		return fmt.Errorf("config: queue.retry_delay must not be negative")
	}
	if c.Queue.Concurrency < 1 {
		return fmt.Errorf("config: queue.concurrency must be at least 1")
	}
	if c.Queue.VisibilityTTL.Duration <= 0 {
		return fmt.Errorf("config: queue.visibility_ttl must be positive")
	}
	switch c.Database.Driver {
	case "sqlite", "sqlite3", "mysql":
	default:
		return fmt.Errorf("config: unsupported database.driver %q", c.Database.Driver)
	}
	switch c.Mail.Transport {
	case "smtp":
		if t := c.Mail.SMTP.Timeout.Duration; t > 0 && c.Queue.VisibilityTTL.Duration <= t {
			return fmt.Errorf("config: queue.visibility_ttl (%s) must exceed mail.smtp.timeout (%s)", c.Queue.VisibilityTTL.Duration, t)
		}
	case "gmail", "log":
	default:
		return fmt.Errorf("config: unsupported mail.transport %q", c.Mail.Transport)
	}
	if len(c.Mail.AdminRecipients) == 0 {
		return fmt.Errorf("config: mail.admin_recipients is required")
	}
	for _, a := range c.Mail.AdminRecipients {
		if strings.TrimSpace(a) == "" {
			return fmt.Errorf("config: mail.admin_recipients has an empty entry")
		}
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Schedule.Timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Schedule.Timezone == "" || c.Schedule.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: schedule.timezone: %w", err)
	}
	return loc, nil
}
