package cache

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/types"
	"github.com/saiset-co/sai-cache/utils"
)

const redisScanBatch = 256

type RedisConfig struct {
	Host               string `json:"host"`
	Port               int    `json:"port"`
	Password           string `json:"password"`
	DB                 int    `json:"db"`
	PoolSize           int    `json:"pool_size"`
	MinIdleConnections int    `json:"min_idle_connections"`
	DialTimeout        string `json:"dial_timeout"`
	ReadTimeout        string `json:"read_timeout"`
	WriteTimeout       string `json:"write_timeout"`
	OperationTimeout   string `json:"operation_timeout"`
	DefaultTTL         string `json:"default_ttl"`
	KeyPrefix          string `json:"key_prefix"`
}

// RedisCache keeps entries in Redis with server-side expiry. Hit and miss
// counters are local to this process.
type RedisCache struct {
	ctx              context.Context
	logger           types.Logger
	config           *RedisConfig
	client           *redis.Client
	defaultTTL       time.Duration
	operationTimeout time.Duration
	hits             uint64
	misses           uint64
	state            atomic.Value
}

func NewRedisCache(ctx context.Context, config *types.CacheConfig, logger types.Logger) (*RedisCache, error) {
	redisConfig := &RedisConfig{
		Host:               "localhost",
		Port:               6379,
		PoolSize:           10,
		MinIdleConnections: 2,
		DialTimeout:        "5s",
		ReadTimeout:        "3s",
		WriteTimeout:       "3s",
		OperationTimeout:   "3s",
		DefaultTTL:         DefaultTTL.String(),
		KeyPrefix:          "sai-cache",
	}

	if config != nil && config.Config != nil {
		if err := utils.UnmarshalConfig(config.Config, redisConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal redis cache config")
		}
	}

	timeouts := make(map[string]time.Duration, 5)
	for field, value := range map[string]string{
		"dial_timeout":      redisConfig.DialTimeout,
		"read_timeout":      redisConfig.ReadTimeout,
		"write_timeout":     redisConfig.WriteTimeout,
		"operation_timeout": redisConfig.OperationTimeout,
		"default_ttl":       redisConfig.DefaultTTL,
	} {
		d, err := parseDuration(field, value)
		if err != nil {
			return nil, err
		}
		if d < 0 {
			return nil, types.Errorf(types.ErrCacheConfiguration, "%s must be positive", field)
		}
		timeouts[field] = d
	}

	r := &RedisCache{
		ctx:              ctx,
		logger:           logger,
		config:           redisConfig,
		defaultTTL:       timeouts["default_ttl"],
		operationTimeout: timeouts["operation_timeout"],
	}

	if r.defaultTTL == 0 {
		r.defaultTTL = DefaultTTL
	}
	if r.operationTimeout == 0 {
		r.operationTimeout = 3 * time.Second
	}

	r.client = redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", redisConfig.Host, redisConfig.Port),
		Password:     redisConfig.Password,
		DB:           redisConfig.DB,
		PoolSize:     redisConfig.PoolSize,
		MinIdleConns: redisConfig.MinIdleConnections,
		DialTimeout:  timeouts["dial_timeout"],
		ReadTimeout:  timeouts["read_timeout"],
		WriteTimeout: timeouts["write_timeout"],
	})

	r.state.Store(StateStopped)

	return r, nil
}

func (r *RedisCache) Start() error {
	if !r.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	ctx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		r.setState(StateStopped)
		return types.WrapError(types.NewError(types.ErrCacheConnectionFailed, err.Error()), "failed to connect to redis")
	}

	r.setState(StateRunning)
	r.logger.Info("Redis cache started",
		zap.String("addr", r.client.Options().Addr),
		zap.String("key_prefix", r.config.KeyPrefix))

	return nil
}

func (r *RedisCache) Stop() error {
	if !r.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer r.setState(StateStopped)

	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis client", zap.Error(err))
		return types.WrapError(err, "failed to close redis client")
	}

	r.logger.Info("Redis cache stopped")
	return nil
}

func (r *RedisCache) IsRunning() bool {
	return r.getState() == StateRunning
}

func (r *RedisCache) Get(key string) (interface{}, bool) {
	if key == "" {
		atomic.AddUint64(&r.misses, 1)
		return nil, false
	}

	ctx, cancel := r.opContext()
	defer cancel()

	result, err := r.client.Get(ctx, r.buildFullKey(key)).Bytes()
	if err != nil {
		if !types.IsError(err, redis.Nil) {
			r.logger.Error("Failed to get cache entry", zap.String("key", key), zap.Error(err))
		}
		atomic.AddUint64(&r.misses, 1)
		return nil, false
	}

	var entry types.CacheEntry
	if err := utils.Unmarshal(result, &entry); err != nil {
		r.logger.Error("Failed to unmarshal cache entry", zap.String("key", key), zap.Error(err))
		r.client.Del(ctx, r.buildFullKey(key))
		atomic.AddUint64(&r.misses, 1)
		return nil, false
	}

	atomic.AddUint64(&r.hits, 1)
	return entry.Value, true
}

func (r *RedisCache) Set(key string, value interface{}, ttl time.Duration) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	if ttl <= 0 {
		ttl = r.defaultTTL
	}

	now := time.Now()
	data, err := utils.Marshal(&types.CacheEntry{
		Key:       key,
		Value:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return types.WrapError(err, "failed to marshal cache entry")
	}

	ctx, cancel := r.opContext()
	defer cancel()

	if err := r.client.Set(ctx, r.buildFullKey(key), data, ttl).Err(); err != nil {
		r.logger.Error("Failed to set cache entry", zap.String("key", key), zap.Error(err))
		return types.Errorf(types.ErrCacheOperationFailed, "%v", err)
	}

	return nil
}

func (r *RedisCache) Delete(key string) (bool, error) {
	if key == "" {
		return false, nil
	}

	ctx, cancel := r.opContext()
	defer cancel()

	removed, err := r.client.Del(ctx, r.buildFullKey(key)).Result()
	if err != nil {
		r.logger.Error("Failed to delete cache key", zap.String("key", key), zap.Error(err))
		return false, types.Errorf(types.ErrCacheOperationFailed, "%v", err)
	}

	return removed > 0, nil
}

func (r *RedisCache) Has(key string) bool {
	if key == "" {
		return false
	}

	ctx, cancel := r.opContext()
	defer cancel()

	n, err := r.client.Exists(ctx, r.buildFullKey(key)).Result()
	if err != nil {
		r.logger.Error("Failed to check cache key", zap.String("key", key), zap.Error(err))
		return false
	}

	return n > 0
}

func (r *RedisCache) Clear() error {
	keys, err := r.scan()
	if err != nil {
		return err
	}

	ctx, cancel := r.opContext()
	defer cancel()

	for start := 0; start < len(keys); start += redisScanBatch {
		end := start + redisScanBatch
		if end > len(keys) {
			end = len(keys)
		}

		if err := r.client.Del(ctx, keys[start:end]...).Err(); err != nil {
			return types.Errorf(types.ErrCacheOperationFailed, "%v", err)
		}
	}

	atomic.StoreUint64(&r.hits, 0)
	atomic.StoreUint64(&r.misses, 0)

	r.logger.Info("Redis cache cleared", zap.Int("cleared_entries", len(keys)))
	return nil
}

func (r *RedisCache) Keys() ([]string, error) {
	fullKeys, err := r.scan()
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(fullKeys))
	for _, fullKey := range fullKeys {
		keys = append(keys, r.stripPrefix(fullKey))
	}

	return keys, nil
}

func (r *RedisCache) Stats() types.CacheStats {
	hits := atomic.LoadUint64(&r.hits)
	misses := atomic.LoadUint64(&r.misses)

	stats := types.CacheStats{
		Type:    types.CacheTypeRedis,
		Hits:    hits,
		Misses:  misses,
		HitRate: hitRate(hits, misses),
	}

	if keys, err := r.scan(); err == nil {
		stats.Size = len(keys)
	}

	return stats
}

func (r *RedisCache) scan() ([]string, error) {
	ctx, cancel := r.opContext()
	defer cancel()

	var keys []string
	iter := r.client.Scan(ctx, 0, r.buildFullKey("*"), redisScanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		r.logger.Error("Failed to scan cache keys", zap.Error(err))
		return nil, types.Errorf(types.ErrCacheOperationFailed, "%v", err)
	}

	return keys, nil
}

func (r *RedisCache) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.ctx, r.operationTimeout)
}

func (r *RedisCache) buildFullKey(key string) string {
	if r.config.KeyPrefix != "" {
		return r.config.KeyPrefix + ":" + key
	}
	return key
}

func (r *RedisCache) stripPrefix(fullKey string) string {
	if r.config.KeyPrefix == "" {
		return fullKey
	}
	return strings.TrimPrefix(fullKey, r.config.KeyPrefix+":")
}

func (r *RedisCache) getState() State {
	return r.state.Load().(State)
}

func (r *RedisCache) setState(newState State) bool {
	currentState := r.getState()
	return r.state.CompareAndSwap(currentState, newState)
}

func (r *RedisCache) transitionState(from, to State) bool {
	return r.state.CompareAndSwap(from, to)
}
