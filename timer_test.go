package playerx

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeout_Elapses(t *testing.T) {
	rt := newTestRuntime(t)

	h := Fork(rt.Context(), NewTask("sleep", func(ctx *ExecutionCtx, d time.Duration) (time.Duration, error) {
		start := time.Now()
		err := Timeout(ctx, d)
		return time.Since(start), err
	}), 20*time.Millisecond)

	elapsed, err := h.Wait()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
}

func TestTimeout_OtherTasksRunWhileWaiting(t *testing.T) {
	rt := newTestRuntime(t)

	ran := make(chan struct{})
	sleeper := Fork(rt.Context(), NewStep("sleeper", func(ctx *ExecutionCtx, _ struct{}) error {
		return Timeout(ctx, time.Hour)
	}), struct{}{})
	Fork(rt.Context(), NewStep("other", func(ctx *ExecutionCtx, _ struct{}) error {
		close(ran)
		return nil
	}), struct{}{})

	requireClosed(t, ran)
	sleeper.Abort(errors.New("wake up"))

	_, err := sleeper.Wait()
	require.ErrorIs(t, err, ErrAborted)
}

func TestTimeout_AlreadyAborted(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := rt.Context()
	ctx.Signal().Abort(errors.New("done"))

	err := Timeout(ctx, time.Hour)
	require.ErrorIs(t, err, ErrAborted)
}
