package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/UniQw/reportq"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) *Local {
	t.Helper()
	l, err := NewLocal(t.TempDir(), reportq.NewLevelLogger(reportq.LevelError))
	require.NoError(t, err)
	return l
}

func TestLocal_PutGet(t *testing.T) {
	l := newLocal(t)
	ctx := context.Background()

	require.NoError(t, l.Put(ctx, "backups/combined_all_x.pdf", []byte("v1")))
	require.NoError(t, l.Put(ctx, "backups/combined_all_x.pdf", []byte("v2")))
	got, err := l.Get("backups/combined_all_x.pdf")
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), got)

	entries, err := os.ReadDir(filepath.Join(l.Root(), BackupDir))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")
}

func TestLocal_RejectsEscapingPaths(t *testing.T) {
	l := newLocal(t)
	ctx := context.Background()
	for _, p := range []string{"../x.pdf", "/etc/x.pdf", "a/../../x.pdf", ""} {
		require.Error(t, l.Put(ctx, p, []byte("x")), p)
	}
}

func TestLocal_PutCancelled(t *testing.T) {
	l := newLocal(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, l.Put(ctx, "backups/a.pdf", nil), context.Canceled)
}

func TestLocal_Cleanup(t *testing.T) {
	l := newLocal(t)
	ctx := context.Background()
	require.NoError(t, l.Put(ctx, "backups/old.pdf", []byte("o")))
	require.NoError(t, l.Put(ctx, "backups/new.pdf", []byte("n")))
	require.NoError(t, l.Put(ctx, "backups/old.txt", []byte("t")))

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(l.Root(), "backups", "old.pdf"), past, past))
	require.NoError(t, os.Chtimes(filepath.Join(l.Root(), "backups", "old.txt"), past, past))

	n, err := l.Cleanup(BackupDir, 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = l.Get("backups/old.pdf")
	require.True(t, os.IsNotExist(err))
	_, err = l.Get("backups/new.pdf")
	require.NoError(t, err)
	_, err = l.Get("backups/old.txt")
	require.NoError(t, err)
}
