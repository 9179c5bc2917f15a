package cache

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/types"
	"github.com/saiset-co/sai-cache/utils"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

type MemoryConfig struct {
	MaxSize       int    `json:"max_size"`
	DefaultTTL    string `json:"default_ttl"`
	Strategy      string `json:"strategy"`
	SweepInterval string `json:"sweep_interval"`
}

// MemoryCache exposes a Cache[any] as a service component.
type MemoryCache struct {
	logger types.Logger
	config Config
	opts   []Option
	store  atomic.Pointer[Cache[interface{}]]
	state  atomic.Value
}

func NewMemoryCache(_ context.Context, config *types.CacheConfig, logger types.Logger, opts ...Option) (*MemoryCache, error) {
	memConfig := &MemoryConfig{}

	if config != nil && config.Config != nil {
		if err := utils.UnmarshalConfig(config.Config, memConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal memory cache config")
		}
	}

	cacheConfig, err := memConfig.toConfig()
	if err != nil {
		return nil, err
	}

	cacheConfig, err = cacheConfig.resolve()
	if err != nil {
		return nil, err
	}

	m := &MemoryCache{
		logger: logger,
		config: cacheConfig,
		opts:   append([]Option{WithLogger(logger), WithName(types.CacheTypeMemory)}, opts...),
	}

	m.state.Store(StateStopped)

	return m, nil
}

func (c *MemoryConfig) toConfig() (Config, error) {
	strategy, err := ParseStrategy(c.Strategy)
	if err != nil {
		return Config{}, err
	}

	defaultTTL, err := parseDuration("default_ttl", c.DefaultTTL)
	if err != nil {
		return Config{}, err
	}

	sweepInterval, err := parseDuration("sweep_interval", c.SweepInterval)
	if err != nil {
		return Config{}, err
	}

	return Config{
		MaxSize:       c.MaxSize,
		DefaultTTL:    defaultTTL,
		Strategy:      strategy,
		SweepInterval: sweepInterval,
	}, nil
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, types.Errorf(types.ErrCacheConfiguration, "%s: %v", field, err)
	}

	return d, nil
}

func (m *MemoryCache) Start() error {
	if !m.transitionState(StateStopped, StateStarting) {
		m.logger.Warn("Memory cache is already running")
		return types.ErrServerAlreadyRunning
	}

	store, err := New[interface{}](m.config, m.opts...)
	if err != nil {
		m.setState(StateStopped)
		return types.WrapError(err, "failed to create memory cache")
	}

	m.store.Store(store)
	m.setState(StateRunning)

	m.logger.Info("Memory cache started",
		zap.Int("max_size", m.config.MaxSize),
		zap.Duration("default_ttl", m.config.DefaultTTL),
		zap.Stringer("strategy", m.config.Strategy),
		zap.Duration("sweep_interval", m.config.SweepInterval))

	return nil
}

func (m *MemoryCache) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) {
		m.logger.Warn("Memory cache is not running")
		return types.ErrServerNotRunning
	}

	defer m.setState(StateStopped)

	if store := m.store.Swap(nil); store != nil {
		entries := store.Stats().Size
		store.Dispose()
		m.logger.Info("Memory cache stopped", zap.Int("dropped_entries", entries))
	}

	return nil
}

func (m *MemoryCache) IsRunning() bool {
	return m.getState() == StateRunning
}

func (m *MemoryCache) Get(key string) (interface{}, bool) {
	store := m.store.Load()
	if store == nil {
		return nil, false
	}

	return store.Get(key)
}

func (m *MemoryCache) Set(key string, value interface{}, ttl time.Duration) error {
	store := m.store.Load()
	if store == nil {
		return types.Errorf(types.ErrInvalidState, "memory cache is not running")
	}

	return store.Set(key, value, ttl)
}

func (m *MemoryCache) Delete(key string) (bool, error) {
	store := m.store.Load()
	if store == nil {
		return false, types.Errorf(types.ErrInvalidState, "memory cache is not running")
	}

	return store.Remove(key), nil
}

func (m *MemoryCache) Has(key string) bool {
	store := m.store.Load()
	if store == nil {
		return false
	}

	return store.Has(key)
}

func (m *MemoryCache) Clear() error {
	store := m.store.Load()
	if store == nil {
		return types.Errorf(types.ErrInvalidState, "memory cache is not running")
	}

	store.Clear()
	return nil
}

func (m *MemoryCache) Keys() ([]string, error) {
	store := m.store.Load()
	if store == nil {
		return nil, types.Errorf(types.ErrInvalidState, "memory cache is not running")
	}

	return store.Keys(), nil
}

func (m *MemoryCache) Stats() types.CacheStats {
	stats := types.CacheStats{Type: types.CacheTypeMemory}

	store := m.store.Load()
	if store == nil {
		return stats
	}

	s := store.Stats()
	stats.Hits = s.Hits
	stats.Misses = s.Misses
	stats.Evictions = s.Evictions
	stats.Expirations = s.Expirations
	stats.Size = s.Size
	stats.HitRate = s.HitRate

	return stats
}

// DeleteExpired forces a sweep; the cron sweep job calls it.
func (m *MemoryCache) DeleteExpired() int {
	store := m.store.Load()
	if store == nil {
		return 0
	}

	return store.DeleteExpired()
}

func (m *MemoryCache) Config() Config {
	return m.config
}

func (m *MemoryCache) getState() State {
	return m.state.Load().(State)
}

func (m *MemoryCache) setState(newState State) bool {
	currentState := m.getState()
	return m.state.CompareAndSwap(currentState, newState)
}

func (m *MemoryCache) transitionState(from, to State) bool {
	return m.state.CompareAndSwap(from, to)
}
