package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/saiset-co/sai-cache/logger"
	"github.com/saiset-co/sai-cache/metrics"
	"github.com/saiset-co/sai-cache/types"
)

func TestNewCacheManagerDisabled(t *testing.T) {
	_, err := NewCacheManager(context.Background(), &types.CacheConfig{Enabled: false}, logger.NewNop(), nil)
	if !errors.Is(err, types.ErrCacheIsDisabled) {
		t.Fatalf("expected ErrCacheIsDisabled, got %v", err)
	}
}

func TestNewCacheManagerUnknownType(t *testing.T) {
	_, err := NewCacheManager(context.Background(), &types.CacheConfig{Enabled: true, Type: "memcached"}, logger.NewNop(), nil)
	if !errors.Is(err, types.ErrCacheTypeUnknown) {
		t.Fatalf("expected ErrCacheTypeUnknown, got %v", err)
	}
}

func TestNewCacheManagerCustomCreator(t *testing.T) {
	var created bool
	RegisterCacheManager("custom-memory", func(ctx context.Context, config *types.CacheConfig, l types.Logger) (types.CacheManager, error) {
		created = true
		return NewMemoryCache(ctx, config, l)
	})

	manager, err := NewCacheManager(context.Background(), &types.CacheConfig{Enabled: true, Type: "custom-memory"}, logger.NewNop(), nil)
	if err != nil {
		t.Fatalf("NewCacheManager: %v", err)
	}
	if !created {
		t.Fatal("expected the registered creator to be used")
	}
	if _, ok := manager.(*MemoryCache); !ok {
		t.Fatalf("expected an uninstrumented manager without metrics, got %T", manager)
	}
}

func TestInstrumentedCacheManagerRecordsMetrics(t *testing.T) {
	prom, err := metrics.NewPrometheusMetrics(&types.MetricsConfig{
		Enabled: true,
		Type:    metrics.TypePrometheus,
		Config:  map[string]interface{}{"enable_go_metrics": false},
	}, logger.NewNop())
	if err != nil {
		t.Fatalf("NewPrometheusMetrics: %v", err)
	}

	manager, err := NewCacheManager(context.Background(), newMemoryCacheConfig(map[string]interface{}{"max_size": 1}), logger.NewNop(), prom)
	if err != nil {
		t.Fatalf("NewCacheManager: %v", err)
	}
	if err := manager.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer manager.Stop()

	_ = manager.Set("a", 1, time.Minute)
	manager.Get("a")
	manager.Get("b")

	hits := prom.Counter("cache_operations_total", map[string]string{"operation": "get", "result": "hit"}).Get()
	misses := prom.Counter("cache_operations_total", map[string]string{"operation": "get", "result": "miss"}).Get()
	if hits != 1 || misses != 1 {
		t.Fatalf("expected one hit and one miss, got %v and %v", hits, misses)
	}

	stats := manager.Stats()
	if stats.Size != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	gauge := prom.Gauge("cache_hit_rate", map[string]string{"type": types.CacheTypeMemory}).Get()
	if gauge != 0.5 {
		t.Fatalf("expected hit rate gauge 0.5, got %v", gauge)
	}

	families, err := prom.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	var exported bool
	for _, family := range families {
		if family.GetName() == "sai_cache_cache_operation_duration_seconds" {
			exported = true
		}
	}
	if !exported {
		t.Fatal("expected duration histogram to be exported")
	}

	sweeper, ok := manager.(Sweeper)
	if !ok {
		t.Fatal("instrumented memory manager must expose DeleteExpired")
	}
	if removed := sweeper.DeleteExpired(); removed != 0 {
		t.Fatalf("expected nothing to sweep, removed %d", removed)
	}
}

func TestHealthChecker(t *testing.T) {
	manager, err := NewMemoryCache(context.Background(), newMemoryCacheConfig(nil), logger.NewNop())
	if err != nil {
		t.Fatalf("NewMemoryCache: %v", err)
	}

	check := HealthChecker(manager)(context.Background())
	if check.Status != types.StatusUnhealthy {
		t.Fatalf("expected unhealthy before Start, got %s", check.Status)
	}

	_ = manager.Start()
	defer manager.Stop()

	check = HealthChecker(manager)(context.Background())
	if check.Status != types.StatusHealthy || check.Details["type"] != types.CacheTypeMemory {
		t.Fatalf("unexpected check %+v", check)
	}
}
