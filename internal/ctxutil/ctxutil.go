// Package ctxutil holds context helpers for browser sessions, where the session
// context carries the CDP connection and each operation brings its own deadline.
package ctxutil

import (
	"context"
	"time"
)

// Combine returns a context derived from primary (inheriting its values and
// deadline) that is also cancelled when secondary is done.
func Combine(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	stop := context.AfterFunc(secondary, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}

// detached keeps the values of its parent but never reports cancellation.
type detached struct {
	context.Context
}

func (detached) Deadline() (time.Time, bool) { return time.Time{}, false }
func (detached) Done() <-chan struct{}       { return nil }
func (detached) Err() error                  { return nil }

// Detach returns a context carrying ctx's values that is not cancelled with ctx.
// Session release runs on a detached context so an abandoned request still
// closes its browser resources.
func Detach(ctx context.Context) context.Context {
	return detached{ctx}
}

// DetachWithTimeout is Detach bounded by d.
func DetachWithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(Detach(ctx), d)
}
