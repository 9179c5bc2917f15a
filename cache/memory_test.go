package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/saiset-co/sai-cache/logger"
	"github.com/saiset-co/sai-cache/types"
)

func newMemoryCacheConfig(config map[string]interface{}) *types.CacheConfig {
	return &types.CacheConfig{Enabled: true, Type: types.CacheTypeMemory, Config: config}
}

func TestMemoryCacheLifecycle(t *testing.T) {
	m, err := NewMemoryCache(context.Background(), newMemoryCacheConfig(map[string]interface{}{
		"max_size":       2,
		"strategy":       "fifo",
		"default_ttl":    "1m",
		"sweep_interval": "10s",
	}), logger.NewNop())
	if err != nil {
		t.Fatalf("NewMemoryCache: %v", err)
	}

	cfg := m.Config()
	if cfg.MaxSize != 2 || cfg.Strategy != StrategyFIFO || cfg.DefaultTTL != time.Minute || cfg.SweepInterval != 10*time.Second {
		t.Fatalf("unexpected config %+v", cfg)
	}

	if err := m.Set("a", 1, 0); !errors.Is(err, types.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState before Start, got %v", err)
	}

	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Start(); err == nil {
		t.Fatal("expected second Start to fail")
	}
	if !m.IsRunning() {
		t.Fatal("expected running cache")
	}

	for _, key := range []string{"a", "b", "c"} {
		if err := m.Set(key, key, 0); err != nil {
			t.Fatalf("Set(%q): %v", key, err)
		}
	}

	if _, found := m.Get("a"); found {
		t.Fatal("expected 'a' to be evicted first")
	}
	if value, found := m.Get("b"); !found || value != "b" {
		t.Fatalf("expected 'b', got %v", value)
	}

	keys, err := m.Keys()
	if err != nil || len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v, %v", keys, err)
	}

	removed, err := m.Delete("b")
	if err != nil || !removed {
		t.Fatalf("expected 'b' to be removed, got %v, %v", removed, err)
	}

	stats := m.Stats()
	if stats.Type != types.CacheTypeMemory || stats.Size != 1 || stats.Evictions != 1 || stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	if err := m.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if m.Has("c") {
		t.Fatal("expected empty cache after Clear")
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := m.Stop(); !errors.Is(err, types.ErrServerNotRunning) {
		t.Fatalf("expected ErrServerNotRunning, got %v", err)
	}
	if _, found := m.Get("c"); found {
		t.Fatal("stopped cache must not answer")
	}
}

func TestMemoryCacheRestart(t *testing.T) {
	m, err := NewMemoryCache(context.Background(), newMemoryCacheConfig(nil), logger.NewNop())
	if err != nil {
		t.Fatalf("NewMemoryCache: %v", err)
	}

	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_ = m.Set("a", 1, 0)
	_ = m.Stop()

	if err := m.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer m.Stop()

	if m.Has("a") {
		t.Fatal("restarted cache must start empty")
	}
}

func TestMemoryCacheInvalidConfig(t *testing.T) {
	cases := map[string]map[string]interface{}{
		"strategy":       {"strategy": "random"},
		"default ttl":    {"default_ttl": "soon"},
		"sweep interval": {"sweep_interval": "-1s"},
		"max size":       {"max_size": -5},
	}

	for name, config := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewMemoryCache(context.Background(), newMemoryCacheConfig(config), logger.NewNop())
			if !errors.Is(err, types.ErrCacheConfiguration) {
				t.Fatalf("expected ErrCacheConfiguration, got %v", err)
			}
		})
	}
}
