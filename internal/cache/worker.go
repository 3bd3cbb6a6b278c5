package cache

import (
	"context"
	"time"

	"surveycache/internal/logging"
)

// StartWorker launches a background goroutine that triggers a scheduled
// run once per window interval. The selector floors the window to the
// interval boundary, so tick jitter doesn't shift the processed range.
// Stops when ctx is cancelled.
func StartWorker(ctx context.Context, engine *Engine, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := engine.Run(ctx, nil, nil); err != nil {
					// The next tick covers the next window, not this
					// one; a failed window needs a manual override run.
					logging.FromContext(ctx).Errorw("scheduled cache run failed", "error", err)
				}
			}
		}
	}()
}
