package cache

import (
	"strings"

	"github.com/saiset-co/sai-cache/types"
)

// Strategy selects the victim when a new key arrives at capacity.
type Strategy string

const (
	StrategyLRU  Strategy = "lru"
	StrategyLFU  Strategy = "lfu"
	StrategyFIFO Strategy = "fifo"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyLRU:
		return StrategyLRU, nil
	case StrategyLFU:
		return StrategyLFU, nil
	case StrategyFIFO:
		return StrategyFIFO, nil
	default:
		return "", types.Errorf(types.ErrCacheConfiguration, "unknown eviction strategy %q", s)
	}
}

func (s Strategy) String() string {
	return string(s)
}

// evictsBefore reports whether a is a better victim than b. Ties return
// false so the first entry in iteration order wins.
func evictsBefore[T any](s Strategy, a, b *Entry[T]) bool {
	switch s {
	case StrategyLFU:
		return a.AccessCount < b.AccessCount
	case StrategyFIFO:
		return a.InsertedAt.Before(b.InsertedAt)
	default:
		return a.LastAccessedAt.Before(b.LastAccessedAt)
	}
}
