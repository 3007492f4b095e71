package reportq

import (
	"context"

	"github.com/UniQw/reportq/internal/hctx"
)

// CurrentTaskID returns the ID of the task being processed, or "" outside the runtime.
func CurrentTaskID(ctx context.Context) string {
	st, ok := hctx.From(ctx)
	if !ok {
		return ""
	}
	return st.TaskID
}

// CurrentAttempt returns the 1-based number of the running attempt, or 0 outside the runtime.
func CurrentAttempt(ctx context.Context) int {
	st, ok := hctx.From(ctx)
	if !ok {
		return 0
	}
	return st.Attempt
}

// SetResult encodes v and attaches it to the task; last call wins.
// It is a no-op outside the runtime.
func SetResult(ctx context.Context, v any) error {
	st, ok := hctx.From(ctx)
	if !ok {
		return nil
	}
	b, err := (&JSONEncoder{}).Encode(v)
	if err != nil {
		return err
	}
	st.Result = b
	return nil
}
