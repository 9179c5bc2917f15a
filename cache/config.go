package cache

import (
	"time"

	"github.com/saiset-co/sai-cache/types"
)

const (
	DefaultMaxSize       = 100
	DefaultTTL           = 5 * time.Minute
	DefaultSweepInterval = time.Minute
)

// Config is merged over the defaults: zero fields are treated as unset.
type Config struct {
	MaxSize       int           `json:"max_size" yaml:"max_size"`
	DefaultTTL    time.Duration `json:"default_ttl" yaml:"default_ttl"`
	Strategy      Strategy      `json:"strategy" yaml:"strategy"`
	SweepInterval time.Duration `json:"sweep_interval" yaml:"sweep_interval"`
}

func DefaultConfig() Config {
	return Config{
		MaxSize:       DefaultMaxSize,
		DefaultTTL:    DefaultTTL,
		Strategy:      StrategyLRU,
		SweepInterval: DefaultSweepInterval,
	}
}

func (c Config) resolve() (Config, error) {
	resolved := DefaultConfig()

	switch {
	case c.MaxSize < 0:
		return Config{}, types.Errorf(types.ErrCacheConfiguration, "max size must be positive, got %d", c.MaxSize)
	case c.MaxSize > 0:
		resolved.MaxSize = c.MaxSize
	}

	switch {
	case c.DefaultTTL < 0:
		return Config{}, types.Errorf(types.ErrCacheConfiguration, "default ttl must be positive, got %s", c.DefaultTTL)
	case c.DefaultTTL > 0:
		resolved.DefaultTTL = c.DefaultTTL
	}

	switch {
	case c.SweepInterval < 0:
		return Config{}, types.Errorf(types.ErrCacheConfiguration, "sweep interval must be positive, got %s", c.SweepInterval)
	case c.SweepInterval > 0:
		resolved.SweepInterval = c.SweepInterval
	}

	strategy, err := ParseStrategy(string(c.Strategy))
	if err != nil {
		return Config{}, err
	}
	resolved.Strategy = strategy

	return resolved, nil
}
