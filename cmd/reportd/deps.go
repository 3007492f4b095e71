package main

import (
	"io"
	"os"
	"time"

	"github.com/UniQw/reportq/config"
	"github.com/redis/go-redis/v9"
)

// Deps holds external dependencies for commands, enabling testability.
type Deps struct {
	Stdout io.Writer
	Stderr io.Writer
	Now    func() time.Time
	Redis  func(config.Redis) redis.UniversalClient
}

// DefaultDeps returns the production dependencies.
func DefaultDeps() *Deps {
	return &Deps{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Now:    time.Now,
		Redis: func(c config.Redis) redis.UniversalClient {
			return redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})
		},
	}
}

var deps = DefaultDeps()

// SetDeps replaces the dependencies (for testing).
func SetDeps(d *Deps) { deps = d }

// ResetDeps restores the defaults.
func ResetDeps() { deps = DefaultDeps() }
