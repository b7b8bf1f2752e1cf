package tasks

import (
	"context"
	"time"
)

// Delay suspends the calling goroutine for d or until ctx is done.
// Sibling tasks running concurrently are not affected.
func Delay(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Throttled wraps fn so that its call is followed by a Delay of d,
// whether or not fn failed. Callers spacing a sequence of writes leave the
// last one unwrapped. A cancelled delay does not turn a completed
// call into a failure; the runner notices the cancellation before the
// next task.
func Throttled(fn Func, d time.Duration) Func {
	return func(ctx context.Context, rc *RunContext, t *Task) (Outcome, error) {
		out, err := fn(ctx, rc, t)
		_ = Delay(ctx, d)
		return out, err
	}
}
