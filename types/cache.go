package types

import (
	"context"
	"time"
)

const (
	CacheTypeMemory = "memory"
	CacheTypeRedis  = "redis"
)

type CacheManager interface {
	LifecycleManager
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}, ttl time.Duration) error
	Delete(key string) (bool, error)
	Has(key string) bool
	Clear() error
	Keys() ([]string, error)
	Stats() CacheStats
}

type CacheManagerCreator func(ctx context.Context, config *CacheConfig, logger Logger) (CacheManager, error)

type CacheStats struct {
	Type        string  `json:"type"`
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Evictions   uint64  `json:"evictions"`
	Expirations uint64  `json:"expirations"`
	Size        int     `json:"size"`
	HitRate     float64 `json:"hit_rate"`
}

type CacheEntry struct {
	Key       string      `json:"key"`
	Value     interface{} `json:"value"`
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt time.Time   `json:"expires_at"`
}
