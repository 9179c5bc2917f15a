package sai

import (
	"context"
	"testing"

	"github.com/saiset-co/sai-cache/cache"
	"github.com/saiset-co/sai-cache/database"
	"github.com/saiset-co/sai-cache/logger"
	"github.com/saiset-co/sai-cache/metrics"
	"github.com/saiset-co/sai-cache/types"
)

func TestRegisterCustomBackends(t *testing.T) {
	ctx := context.Background()
	nop := logger.NewNop()
	calls := map[string]int{}

	RegisterLogger("quiet", func(config interface{}) (types.Logger, error) {
		calls["logger"]++
		return logger.NewNop(), nil
	})
	RegisterMetricsManager("inproc", func(config *types.MetricsConfig, l types.Logger) (types.MetricsManager, error) {
		calls["metrics"]++
		return metrics.NewPrometheusMetrics(&types.MetricsConfig{
			Config: map[string]interface{}{"enable_go_metrics": false},
		}, l)
	})
	RegisterCacheManager("local", func(ctx context.Context, config *types.CacheConfig, l types.Logger) (types.CacheManager, error) {
		calls["cache"]++
		return cache.NewMemoryCache(ctx, config, l)
	})
	RegisterDatabaseManager("scratch", func(ctx context.Context, config *types.DatabaseConfig, l types.Logger) (types.DatabaseManager, error) {
		calls["database"]++
		return database.NewMemoryDB(ctx, config, l)
	})

	loggerManager, err := logger.NewManager(&types.LoggerConfig{Type: "quiet"})
	if err != nil {
		t.Fatalf("logger.NewManager: %v", err)
	}

	metricsManager, err := metrics.NewManager(&types.MetricsConfig{Enabled: true, Type: "inproc"}, nop)
	if err != nil {
		t.Fatalf("metrics.NewManager: %v", err)
	}
	if err := metricsManager.Start(); err != nil {
		t.Fatalf("metrics Start: %v", err)
	}
	defer metricsManager.Stop()

	cacheManager, err := cache.NewCacheManager(ctx, &types.CacheConfig{Enabled: true, Type: "local"}, nop, metricsManager)
	if err != nil {
		t.Fatalf("cache.NewCacheManager: %v", err)
	}
	if err := cacheManager.Start(); err != nil {
		t.Fatalf("cache Start: %v", err)
	}
	defer cacheManager.Stop()

	if err := cacheManager.Set("k", "v", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if value, found := cacheManager.Get("k"); !found || value != "v" {
		t.Fatalf("expected cached value, got %v", value)
	}

	databaseManager, err := database.NewManager(ctx, &types.DatabaseConfig{Type: "scratch"}, nop, metricsManager)
	if err != nil {
		t.Fatalf("database.NewManager: %v", err)
	}
	if databaseManager == nil {
		t.Fatal("expected a database manager")
	}

	for _, name := range []string{"logger", "metrics", "cache", "database"} {
		if calls[name] != 1 {
			t.Fatalf("expected the %s creator to run once, got %d", name, calls[name])
		}
	}

	container := InitContainer()
	container.SetLogger(loggerManager)
	container.SetCache(cacheManager)
	SetContainer(container)

	if Logger() != types.LoggerManager(loggerManager) {
		t.Fatal("expected the installed logger")
	}
	if Cache() != cacheManager {
		t.Fatal("expected the installed cache")
	}
	if Cron() != nil {
		t.Fatal("expected no cron manager")
	}
}
