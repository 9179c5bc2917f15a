package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader puts single-flight on top of GetOrSet: concurrent Load calls for
// one key share a single factory run and its result.
type Loader[T any] struct {
	cache *Cache[T]
	group singleflight.Group
}

func NewLoader[T any](cache *Cache[T]) *Loader[T] {
	return &Loader[T]{cache: cache}
}

func (l *Loader[T]) Load(ctx context.Context, key string, factory func(context.Context) (T, error), ttl time.Duration) (T, error) {
	result, err, _ := l.group.Do(key, func() (interface{}, error) {
		return l.cache.GetOrSet(ctx, key, factory, ttl)
	})
	if err != nil {
		var zero T
		return zero, err
	}

	value, _ := result.(T)
	return value, nil
}

// Forget lets the next Load for key start a new flight even if one is running.
func (l *Loader[T]) Forget(key string) {
	l.group.Forget(key)
}

func (l *Loader[T]) Cache() *Cache[T] {
	return l.cache
}
