package cache

import (
	"time"

	"go.uber.org/zap"
)

func (c *Cache[T]) runSweeper(interval time.Duration) {
	defer close(c.sweepDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopSweep:
			return
		case <-ticker.C:
			if removed := c.DeleteExpired(); removed > 0 {
				c.logger.Debug("Sweep completed",
					zap.String("cache", c.name),
					zap.Int("expired_entries", removed))
			}
		}
	}
}
