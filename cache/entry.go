package cache

import "time"

type Entry[T any] struct {
	Key            string
	Value          T
	InsertedAt     time.Time
	ExpiresAt      time.Time
	AccessCount    uint64
	LastAccessedAt time.Time
}

// expired is the read-side check: an entry is gone once now passes ExpiresAt.
func (e *Entry[T]) expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// due is the sweeper-side check, which also drops entries expiring exactly now.
func (e *Entry[T]) due(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
