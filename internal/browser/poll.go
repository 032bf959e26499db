// internal/browser/poll.go
package browser

import (
	"context"
	"time"
)

// DefaultPollInterval is used when a page is built without an explicit interval.
const DefaultPollInterval = 100 * time.Millisecond

// PollCondition calls check every interval until it reports true, timeout
// elapses or ctx is done. Errors from check count as "not yet": pages
// routinely fail evaluations while a navigation is committing.
func PollCondition(ctx context.Context, timeout, interval time.Duration, check func(context.Context) (bool, error)) (bool, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	pollCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if ok, err := check(pollCtx); err == nil && ok {
			return true, nil
		}
		select {
		case <-pollCtx.Done():
			// The caller's own cancellation is an error; our timeout is not.
			if err := ctx.Err(); err != nil {
				return false, err
			}
			return false, nil
		case <-ticker.C:
		}
	}
}
