package nero

import (
	"context"
	"time"
)

// startPatternWorker runs a background goroutine that periodically re-mines
// the energy and completion history for patterns.
func (c *Companion) startPatternWorker(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelPatterns = cancel

	c.workers.Add(1)
	go func() {
		defer c.workers.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.runPatternAnalysis(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}
