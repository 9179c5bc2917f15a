package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/saiset-co/sai-cache/types"
)

var customCacheCreators = make(map[string]types.CacheManagerCreator)

func RegisterCacheManager(cacheManagerName string, creator types.CacheManagerCreator) {
	customCacheCreators[cacheManagerName] = creator
}

// Sweeper is implemented by managers that can drop expired entries on demand.
type Sweeper interface {
	DeleteExpired() int
}

func NewCacheManager(ctx context.Context, cacheConfig *types.CacheConfig, logger types.Logger, metrics types.MetricsManager) (types.CacheManager, error) {
	if cacheConfig == nil || !cacheConfig.Enabled {
		return nil, types.ErrCacheIsDisabled
	}

	var impl types.CacheManager
	var err error

	switch cacheConfig.Type {
	case types.CacheTypeMemory:
		impl, err = NewMemoryCache(ctx, cacheConfig, logger)
	case types.CacheTypeRedis:
		impl, err = NewRedisCache(ctx, cacheConfig, logger)
	default:
		if creator, exists := customCacheCreators[cacheConfig.Type]; exists {
			impl, err = creator(ctx, cacheConfig, logger)
		} else {
			return nil, types.Errorf(types.ErrCacheTypeUnknown, "type: %s", cacheConfig.Type)
		}
	}

	if err != nil {
		return nil, err
	}

	if metrics == nil {
		return impl, nil
	}

	return newInstrumentedCacheManager(logger, metrics, impl), nil
}

// HealthChecker reports the manager as healthy while it is running.
func HealthChecker(manager types.CacheManager) types.HealthChecker {
	return func(ctx context.Context) types.HealthCheck {
		stats := manager.Stats()

		check := types.HealthCheck{
			Name:      "cache",
			Status:    types.StatusHealthy,
			CheckedAt: time.Now(),
			Details: map[string]interface{}{
				"type":     stats.Type,
				"size":     stats.Size,
				"hit_rate": stats.HitRate,
			},
		}

		if !manager.IsRunning() {
			check.Status = types.StatusUnhealthy
			check.Message = fmt.Sprintf("%s cache is not running", stats.Type)
		}

		return check
	}
}

type instrumentedCacheManager struct {
	impl    types.CacheManager
	logger  types.Logger
	metrics types.MetricsManager
}

func newInstrumentedCacheManager(logger types.Logger, metrics types.MetricsManager, impl types.CacheManager) *instrumentedCacheManager {
	return &instrumentedCacheManager{
		impl:    impl,
		logger:  logger,
		metrics: metrics,
	}
}

func (icm *instrumentedCacheManager) Get(key string) (interface{}, bool) {
	start := time.Now()
	value, exists := icm.impl.Get(key)

	result := "miss"
	if exists {
		result = "hit"
	}

	icm.recordMetric("get", result, time.Since(start))
	return value, exists
}

func (icm *instrumentedCacheManager) Set(key string, value interface{}, ttl time.Duration) error {
	start := time.Now()
	err := icm.impl.Set(key, value, ttl)

	icm.recordMetric("set", resultOf(err), time.Since(start))
	return err
}

func (icm *instrumentedCacheManager) Delete(key string) (bool, error) {
	start := time.Now()
	removed, err := icm.impl.Delete(key)

	result := resultOf(err)
	if err == nil && !removed {
		result = "absent"
	}

	icm.recordMetric("delete", result, time.Since(start))
	return removed, err
}

func (icm *instrumentedCacheManager) Has(key string) bool {
	start := time.Now()
	exists := icm.impl.Has(key)

	result := "absent"
	if exists {
		result = "present"
	}

	icm.recordMetric("has", result, time.Since(start))
	return exists
}

func (icm *instrumentedCacheManager) Clear() error {
	start := time.Now()
	err := icm.impl.Clear()

	icm.recordMetric("clear", resultOf(err), time.Since(start))
	return err
}

func (icm *instrumentedCacheManager) Keys() ([]string, error) {
	return icm.impl.Keys()
}

func (icm *instrumentedCacheManager) Stats() types.CacheStats {
	stats := icm.impl.Stats()

	labels := map[string]string{"type": stats.Type}
	icm.metrics.Gauge("cache_entries", labels).Set(float64(stats.Size))
	icm.metrics.Gauge("cache_hit_rate", labels).Set(stats.HitRate)

	return stats
}

func (icm *instrumentedCacheManager) DeleteExpired() int {
	sweeper, ok := icm.impl.(Sweeper)
	if !ok {
		return 0
	}

	removed := sweeper.DeleteExpired()
	icm.metrics.Counter("cache_expired_total", nil).Add(float64(removed))

	return removed
}

func (icm *instrumentedCacheManager) Start() error {
	start := time.Now()
	err := icm.impl.Start()

	icm.recordMetric("start", resultOf(err), time.Since(start))
	return err
}

func (icm *instrumentedCacheManager) Stop() error {
	return icm.impl.Stop()
}

func (icm *instrumentedCacheManager) IsRunning() bool {
	return icm.impl.IsRunning()
}

func (icm *instrumentedCacheManager) recordMetric(operation, result string, duration time.Duration) {
	icm.metrics.Counter("cache_operations_total", map[string]string{
		"operation": operation,
		"result":    result,
	}).Inc()

	icm.metrics.Histogram("cache_operation_duration_seconds",
		[]float64{0.0001, 0.001, 0.01, 0.1, 1.0},
		map[string]string{"operation": operation},
	).Observe(duration.Seconds())
}

func resultOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
