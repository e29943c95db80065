// internal/browser/session/context_utils.go
package session

import (
	"context"
	"errors"
)

// CombineContext returns a context that carries tab's values (chromedp needs
// the tab) and ends when either tab or op ends. op's deadline is copied, so a
// call that runs out of time reports context.DeadlineExceeded rather than
// context.Canceled. An explicit cancel of op is recorded as the cause.
func CombineContext(tab, op context.Context) (context.Context, context.CancelFunc) {
	combined, cancelCause := context.WithCancelCause(tab)
	ctx, stopDeadline := combined, context.CancelFunc(func() {})
	if d, ok := op.Deadline(); ok {
		ctx, stopDeadline = context.WithDeadline(combined, d)
	}

	stop := context.AfterFunc(op, func() {
		if errors.Is(op.Err(), context.DeadlineExceeded) {
			// ctx holds the same deadline and expires on its own.
			return
		}
		cancelCause(context.Cause(op))
	})

	return ctx, func() {
		stop()
		stopDeadline()
		cancelCause(context.Canceled)
	}
}

// Detach returns a context that keeps ctx's values but none of its
// cancellation or deadline. Callers add their own timeout.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
