package cache

import (
	"time"

	"github.com/saiset-co/sai-cache/logger"
	"github.com/saiset-co/sai-cache/types"
)

// Clock returns the current time. Tests inject a manual clock.
type Clock func() time.Time

type options struct {
	clock  Clock
	logger types.Logger
	name   string
}

type Option func(*options)

func WithClock(clock Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

func WithLogger(l types.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithName tags log lines so several caches in one process can be told apart.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

func defaultOptions() *options {
	return &options{
		clock:  time.Now,
		logger: logger.NewNop(),
		name:   "default",
	}
}
