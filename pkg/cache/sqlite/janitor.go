package sqlite

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// JanitorConfig schedules periodic eviction.
type JanitorConfig struct {
	InitialDelay time.Duration
	Interval     time.Duration
	MaxAgeDays   int
	MaxEntries   int
}

// RunJanitor evicts entries after InitialDelay and then every Interval until
// ctx is cancelled. Eviction errors are logged and the loop continues.
func (c *Cache) RunJanitor(ctx context.Context, cfg JanitorConfig) {
	timer := time.NewTimer(cfg.InitialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if _, err := c.Evict(ctx, cfg.MaxAgeDays, cfg.MaxEntries); err != nil && ctx.Err() == nil {
			c.log.Error("cache cleanup failed", zap.Error(err))
		}
		timer.Reset(cfg.Interval)
	}
}
