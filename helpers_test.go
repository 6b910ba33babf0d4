package playerx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestRuntime(t *testing.T, opts ...RuntimeOption) *Runtime {
	t.Helper()
	rt := NewRuntime(opts...)
	t.Cleanup(func() {
		_ = rt.Dispose()
	})
	return rt
}

func counterReducers() Reducers[int] {
	return Reducers[int]{
		"inc": func(v *int, _ ...any) bool {
			*v++
			return true
		},
		"set": func(v *int, args ...any) bool {
			next := args[0].(int)
			if *v == next {
				return false
			}
			*v = next
			return true
		},
		"noop": func(v *int, _ ...any) bool {
			return false
		},
	}
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timed out waiting for value")
	}
	var zero T
	return zero
}

func requireClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timed out waiting for channel to close")
	}
}
