// Package wait provides the polling primitive behind every bounded wait in the
// lookup engine and its browser backends.
package wait

import (
	"context"
	"errors"
	"time"
)

// DefaultInterval is used when a caller passes a non-positive interval.
const DefaultInterval = 250 * time.Millisecond

// ErrTimeout is returned by Until when the condition was not met within the timeout.
var ErrTimeout = errors.New("wait: condition not met before timeout")

// Condition is evaluated on every tick. Returning true stops the wait successfully,
// returning an error stops it with that error.
type Condition func(ctx context.Context) (bool, error)

// Until evaluates cond immediately and then every interval until it reports done,
// returns an error, the timeout elapses, or ctx is cancelled.
//
// The context handed to cond carries the timeout as its deadline, so a condition
// blocked on I/O is interrupted when the budget runs out. A condition error caused
// by that deadline is reported as ErrTimeout. Cancellation of ctx itself is
// reported as ctx.Err(). A non-positive timeout means the wait is bounded only by ctx.
func Until(ctx context.Context, interval, timeout time.Duration, cond Condition) error {
	if interval <= 0 {
		interval = DefaultInterval
	}

	var (
		waitCtx context.Context
		cancel  context.CancelFunc
	)
	if timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		waitCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := cond(waitCtx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if waitCtx.Err() != nil {
				return ErrTimeout
			}
			return err
		}
		if done {
			return nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrTimeout
		case <-ticker.C:
		}
	}
}
