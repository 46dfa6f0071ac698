package nero

import (
	"context"
	"time"
)

// startPollWorker runs a background goroutine that re-evaluates the
// proactive prompts (check-ins, nudges, suggestions, energy checks).
func (c *Companion) startPollWorker(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelPoll = cancel

	c.workers.Add(1)
	go func() {
		defer c.workers.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.Poll(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}
