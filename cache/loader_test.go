package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoaderSharesOneFactoryRun(t *testing.T) {
	c, _ := newTestCache[string](t, Config{})
	loader := NewLoader(c)

	var calls int32
	release := make(chan struct{})
	factory := func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "value", nil
	}

	var wg sync.WaitGroup
	results := make([]string, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			value, err := loader.Load(context.Background(), "k", factory, time.Minute)
			if err != nil {
				t.Errorf("Load: %v", err)
			}
			results[i] = value
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected one factory run, got %d", got)
	}
	for i, value := range results {
		if value != "value" {
			t.Fatalf("caller %d got %q", i, value)
		}
	}
	if !c.Has("k") {
		t.Fatal("expected the loaded value to be cached")
	}
}

func TestLoaderDoesNotCacheErrors(t *testing.T) {
	c, _ := newTestCache[int](t, Config{})
	loader := NewLoader(c)

	errBoom := errors.New("boom")
	if _, err := loader.Load(context.Background(), "k", func(context.Context) (int, error) {
		return 0, errBoom
	}, 0); !errors.Is(err, errBoom) {
		t.Fatalf("expected factory error, got %v", err)
	}

	value, err := loader.Load(context.Background(), "k", func(context.Context) (int, error) {
		return 42, nil
	}, 0)
	if err != nil || value != 42 {
		t.Fatalf("expected 42 after a failed flight, got %d, %v", value, err)
	}
}

func TestLoaderWithInterfaceValues(t *testing.T) {
	c, _ := newTestCache[interface{}](t, Config{})
	loader := NewLoader(c)

	value, err := loader.Load(context.Background(), "nil", func(context.Context) (interface{}, error) {
		return nil, nil
	}, 0)
	if err != nil || value != nil {
		t.Fatalf("expected nil value, got %v, %v", value, err)
	}
	if loader.Cache() != c {
		t.Fatal("expected the wrapped cache")
	}
}
