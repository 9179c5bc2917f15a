package cron

import (
	"context"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/cache"
	"github.com/saiset-co/sai-cache/types"
)

const (
	JobCacheStats = "cache-stats"
	JobCacheSweep = "cache-sweep"
)

// RegisterCacheJobs schedules the cache housekeeping jobs. An empty schedule
// skips the job.
func RegisterCacheJobs(manager types.CronManager, config *types.CronConfig, cacheManager types.CacheManager, logger types.Logger) error {
	if config == nil || cacheManager == nil {
		return nil
	}

	if config.StatsSchedule != "" {
		if err := manager.Add(JobCacheStats, config.StatsSchedule, CacheStatsJob(cacheManager, logger)); err != nil {
			return err
		}
	}

	if config.SweepSchedule != "" {
		if _, ok := cacheManager.(cache.Sweeper); ok {
			if err := manager.Add(JobCacheSweep, config.SweepSchedule, CacheSweepJob(cacheManager, logger)); err != nil {
				return err
			}
		}
	}

	return nil
}

// CacheStatsJob logs a stats snapshot. Instrumented managers refresh their
// size and hit-rate gauges as a side effect of Stats.
func CacheStatsJob(cacheManager types.CacheManager, logger types.Logger) types.JobFunc {
	return func(ctx context.Context) error {
		if !cacheManager.IsRunning() {
			return types.ErrServiceIsNotRunning
		}

		stats := cacheManager.Stats()

		logger.Info("Cache stats",
			zap.String("type", stats.Type),
			zap.Int("size", stats.Size),
			zap.Uint64("hits", stats.Hits),
			zap.Uint64("misses", stats.Misses),
			zap.Uint64("evictions", stats.Evictions),
			zap.Uint64("expirations", stats.Expirations),
			zap.Float64("hit_rate", stats.HitRate))

		return ctx.Err()
	}
}

func CacheSweepJob(cacheManager types.CacheManager, logger types.Logger) types.JobFunc {
	return func(ctx context.Context) error {
		sweeper, ok := cacheManager.(cache.Sweeper)
		if !ok {
			return nil
		}

		if removed := sweeper.DeleteExpired(); removed > 0 {
			logger.Debug("Expired cache entries removed", zap.Int("removed", removed))
		}

		return ctx.Err()
	}
}
