// Package storage archives rendered documents on the local filesystem.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/UniQw/reportq"
)

// BackupDir is the directory combined reports are archived under.
const BackupDir = "backups"

// Local stores files under a root directory.
type Local struct {
	root string
	log  reportq.Logger
}

// NewLocal creates the root directory if needed.
func NewLocal(root string, log reportq.Logger) (*Local, error) {
	if log == nil {
		log = reportq.NewFmtLogger()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return &Local{root: root, log: log}, nil
}

func (l *Local) Root() string { return l.root }

func (l *Local) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("storage: invalid path %q", path)
	}
	return filepath.Join(l.root, clean), nil
}

// Put writes data to path relative to the root. The file appears complete or not at all.
func (l *Local) Put(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, err := l.resolve(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return fmt.Errorf("storage: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("storage: rename %s: %w", path, err)
	}
	return nil
}

// Get reads a stored file.
func (l *Local) Get(path string) ([]byte, error) {
	p, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// Cleanup removes PDFs in dir older than retention and returns how many were removed.
func (l *Local) Cleanup(dir string, retention time.Duration) (int, error) {
	base, err := l.resolve(dir)
	if err != nil {
		return 0, err
	}
	files, err := filepath.Glob(filepath.Join(base, "*.pdf"))
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-retention)
	cleaned := 0
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(f); err != nil {
				l.log.Warnf("failed to remove archive %s: %v", f, err)
			} else {
				cleaned++
			}
		}
	}
	if cleaned > 0 {
		l.log.Infof("cleaned up %d old archives in %s", cleaned, dir)
	}
	return cleaned, nil
}
