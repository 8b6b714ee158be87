package vector

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultSetupTimeout bounds a single setup attempt.
const DefaultSetupTimeout = 2 * time.Minute

// ReadyOnce runs a driver's setup at most once after it succeeds. Concurrent
// first callers share a single in-flight attempt. A failed attempt is not
// memoized, so the next caller retries.
type ReadyOnce struct {
	// Timeout bounds each setup attempt. Zero means DefaultSetupTimeout.
	Timeout time.Duration

	done  atomic.Bool
	group singleflight.Group
}

// Do runs fn unless a previous call already succeeded. fn runs detached from
// the caller's cancellation, so one caller giving up does not fail the
// others waiting on the same attempt. A cancelled caller returns its own
// ctx error while the attempt carries on.
func (o *ReadyOnce) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if o.done.Load() {
		return nil
	}

	ch := o.group.DoChan("ready", func() (any, error) {
		if o.done.Load() {
			return nil, nil
		}
		timeout := o.Timeout
		if timeout <= 0 {
			timeout = DefaultSetupTimeout
		}
		setupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		if err := fn(setupCtx); err != nil {
			return nil, err
		}
		o.done.Store(true)
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done reports whether setup has succeeded.
func (o *ReadyOnce) Done() bool {
	return o.done.Load()
}
