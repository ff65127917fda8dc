package aggregator

import (
	"context"
	"time"
)

// Run executes a cycle immediately and then on every tick until ctx ends.
// Failed cycles are logged and retried on the next tick.
func (a *Aggregator) Run(ctx context.Context, interval time.Duration) {
	a.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.logger.Info("refresh loop started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.runOnce(ctx)
		}
	}
}

func (a *Aggregator) runOnce(ctx context.Context) {
	if _, err := a.RunCycle(ctx); err != nil {
		a.logger.Error("scheduled refresh failed", "error", err)
	}
}
