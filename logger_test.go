package reportq

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFmtLogger_LevelsAndStreams(t *testing.T) {
	var out, errOut bytes.Buffer
	l := &FmtLogger{Min: LevelInfo, Out: &out, Err: &errOut}

	l.Debugf("hidden %d", 1)
	l.Infof("run %s", "weekly")
	l.Warnf("slow")
	l.Errorf("dead id=%s", "x")

	require.Equal(t, "[INFO]  run weekly\n", out.String())
	require.Equal(t, "[WARN]  slow\n[ERROR] dead id=x\n", errOut.String())
}

func TestNewLevelLogger(t *testing.T) {
	var out bytes.Buffer
	l := NewLevelLogger(LevelError)
	l.Out = &out
	l.Err = &out
	l.Warnf("nope")
	require.Empty(t, out.String())
	require.Equal(t, LevelDebug, NewFmtLogger().Min)
}
