package playerx

import "time"

// Timeout suspends the calling task for d. It fails with ErrAborted when
// ctx's signal fires first.
func Timeout(ctx *ExecutionCtx, d time.Duration) error {
	if ctx.signal.Aborted() {
		return newAbortedError(ctx.signal.Reason())
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	aborted := false
	ctx.rt.sched.suspend(func() {
		select {
		case <-timer.C:
		case <-ctx.signal.Done():
			aborted = true
		}
	})
	if aborted {
		return newAbortedError(ctx.signal.Reason())
	}
	return nil
}
