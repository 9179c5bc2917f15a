package client

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/types"
)

type BreakerState int32

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker opens after FailureThreshold consecutive failures, lets
// probes through once RecoveryTimeout has passed and closes again after
// HalfOpenRequests successful probes.
type CircuitBreaker struct {
	config    types.CircuitBreakerConfig
	logger    types.Logger
	name      string
	now       func() time.Time
	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time
}

func NewCircuitBreaker(config *types.CircuitBreakerConfig, logger types.Logger, name string) *CircuitBreaker {
	cb := &CircuitBreaker{
		logger: logger,
		name:   name,
		now:    time.Now,
		state:  BreakerClosed,
	}

	if config != nil {
		cb.config = *config
	}
	if cb.config.FailureThreshold <= 0 {
		cb.config.FailureThreshold = 5
	}
	if cb.config.RecoveryTimeout <= 0 {
		cb.config.RecoveryTimeout = 30 * time.Second
	}
	if cb.config.HalfOpenRequests <= 0 {
		cb.config.HalfOpenRequests = 1
	}

	return cb
}

func (cb *CircuitBreaker) CanExecute() bool {
	if !cb.config.Enabled {
		return true
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == BreakerOpen {
		if cb.now().Sub(cb.openedAt) < cb.config.RecoveryTimeout {
			return false
		}
		cb.setState(BreakerHalfOpen)
	}

	return true
}

func (cb *CircuitBreaker) RecordSuccess() {
	if !cb.config.Enabled {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		cb.failures = 0
	case BreakerHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.HalfOpenRequests {
			cb.setState(BreakerClosed)
		}
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	if !cb.config.Enabled {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.setState(BreakerOpen)
		}
	case BreakerHalfOpen:
		cb.setState(BreakerOpen)
	}
}

func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(BreakerClosed)
}

// setState must be called with mu held.
func (cb *CircuitBreaker) setState(state BreakerState) {
	if cb.state == state {
		return
	}

	previous := cb.state
	cb.state = state
	cb.failures = 0
	cb.successes = 0

	if state == BreakerOpen {
		cb.openedAt = cb.now()
	}

	cb.logger.Info("Circuit breaker state changed",
		zap.String("target", cb.name),
		zap.String("from", previous.String()),
		zap.String("to", state.String()))
}
