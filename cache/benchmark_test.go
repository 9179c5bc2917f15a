package cache

import (
	"strconv"
	"testing"
	"time"
)

func BenchmarkSet(b *testing.B) {
	c, _ := New[int](Config{MaxSize: 1000})
	defer c.Dispose()

	for i := 0; i < b.N; i++ {
		_ = c.Set(strconv.Itoa(i%2000), i, time.Minute)
	}
}

func BenchmarkGet(b *testing.B) {
	c, _ := New[int](Config{MaxSize: 1000})
	defer c.Dispose()

	for i := 0; i < 1000; i++ {
		_ = c.Set(strconv.Itoa(i), i, time.Minute)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get(strconv.Itoa(i % 1000))
	}
}
