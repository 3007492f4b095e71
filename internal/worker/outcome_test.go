package worker

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecide_SuccessKeepsCounter(t *testing.T) {
	o := Decide(2, 3, 30*time.Second, nil)
	require.Equal(t, Sent, o.Kind)
	require.Equal(t, 2, o.Attempts)
}

func TestDecide_TwoFailuresThenSuccess(t *testing.T) {
	attempts := 0
	errs := []error{errors.New("a"), errors.New("b"), nil}
	var last Outcome
	for _, err := range errs {
		last = Decide(attempts, 3, 30*time.Second, err)
		if last.Kind == Retry {
			require.Equal(t, 30*time.Second, last.Delay)
		}
		require.NotEqual(t, PermanentFailure, last.Kind)
		attempts = last.Attempts
	}
	require.Equal(t, Sent, last.Kind)
	require.Equal(t, 2, last.Attempts)
}

func TestDecide_ThirdFailureIsPermanent(t *testing.T) {
	o := Decide(0, 3, time.Second, errors.New("x"))
	require.Equal(t, Retry, o.Kind)
	o = Decide(o.Attempts, 3, time.Second, errors.New("x"))
	require.Equal(t, Retry, o.Kind)
	o = Decide(o.Attempts, 3, time.Second, errors.New("x"))
	require.Equal(t, PermanentFailure, o.Kind)
	require.Equal(t, 3, o.Attempts)
}

func TestDecide_SkipRetry(t *testing.T) {
	o := Decide(0, 3, time.Second, fmt.Errorf("bad payload: %w", ErrSkipRetry))
	require.Equal(t, PermanentFailure, o.Kind)
	require.Equal(t, 1, o.Attempts)
}

func TestDecide_ZeroMaxMeansSingleAttempt(t *testing.T) {
	o := Decide(0, 0, time.Second, errors.New("x"))
	require.Equal(t, PermanentFailure, o.Kind)
}

func TestKind_String(t *testing.T) {
	require.Equal(t, "sent", Sent.String())
	require.Equal(t, "retry", Retry.String())
	require.Equal(t, "permanent_failure", PermanentFailure.String())
	require.Equal(t, "unknown", Kind(42).String())
}
