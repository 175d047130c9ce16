package client

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/eldopolis/portal-core/types"
)

type BreakerState int32

const (
	StateBreakerClosed BreakerState = iota
	StateBreakerOpen
	StateBreakerHalfOpen
	StateBreakerStopped
)

// CircuitBreaker shields the upstream feed from request storms after
// repeated failures. A nil or disabled breaker permits everything.
type CircuitBreaker struct {
	config      *types.CircuitBreakerConfig
	logger      types.Logger
	serviceName string
	state       atomic.Value
	failures    atomic.Int32
	successes   atomic.Int32
	lastFail    atomic.Int64
	mutex       sync.RWMutex
}

func NewCircuitBreaker(config *types.CircuitBreakerConfig, logger types.Logger, serviceName string) *CircuitBreaker {
	if config == nil || !config.Enabled {
		cb := &CircuitBreaker{
			config:      &types.CircuitBreakerConfig{Enabled: false},
			logger:      logger,
			serviceName: serviceName,
		}
		cb.state.Store(StateBreakerStopped)
		return cb
	}

	cb := &CircuitBreaker{
		config:      config,
		logger:      logger,
		serviceName: serviceName,
	}

	cb.state.Store(StateBreakerClosed)

	return cb
}

func (cb *CircuitBreaker) CanExecute() bool {
	if cb == nil || !cb.config.Enabled {
		return true
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.getStateUnsafe() {
	case StateBreakerClosed:
		return true
	case StateBreakerOpen:
		if time.Since(time.Unix(cb.lastFail.Load(), 0)) > cb.config.RecoveryTimeout {
			cb.transitionToHalfOpen()
			return true
		}
		return false
	case StateBreakerHalfOpen:
		return true
	default:
		return false
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	if cb == nil || !cb.config.Enabled {
		return
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.getStateUnsafe() {
	case StateBreakerClosed:
		cb.failures.Store(0)
	case StateBreakerHalfOpen:
		successes := cb.successes.Add(1)
		if successes >= int32(cb.config.HalfOpenRequests) {
			cb.transitionToClosed()
		}
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	if cb == nil || !cb.config.Enabled {
		return
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.lastFail.Store(time.Now().Unix())

	switch cb.getStateUnsafe() {
	case StateBreakerClosed:
		failures := cb.failures.Add(1)
		if failures >= int32(cb.config.FailureThreshold) {
			cb.transitionToOpen()
		}
	case StateBreakerHalfOpen:
		cb.transitionToOpen()
	}
}

func (cb *CircuitBreaker) GetState() (state int32, failures int32, lastFail int64) {
	if cb == nil {
		return 0, 0, 0
	}

	cb.mutex.RLock()
	defer cb.mutex.RUnlock()

	return int32(cb.getStateUnsafe()), cb.failures.Load(), cb.lastFail.Load()
}

func (cb *CircuitBreaker) GetStateString() string {
	if cb == nil || !cb.config.Enabled {
		return "disabled"
	}

	cb.mutex.RLock()
	defer cb.mutex.RUnlock()

	return cb.stateToString(cb.getStateUnsafe())
}

func (cb *CircuitBreaker) Reset() {
	if cb == nil || !cb.config.Enabled {
		return
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.getStateUnsafe() == StateBreakerStopped {
		return
	}

	cb.transitionToClosed()
}

func (cb *CircuitBreaker) getStateUnsafe() BreakerState {
	state := cb.state.Load()
	if state == nil {
		return StateBreakerClosed
	}
	return state.(BreakerState)
}

func (cb *CircuitBreaker) transitionState(from, to BreakerState) bool {
	return cb.state.CompareAndSwap(from, to)
}

func (cb *CircuitBreaker) transitionToClosed() {
	if cb.transitionState(cb.getStateUnsafe(), StateBreakerClosed) {
		cb.failures.Store(0)
		cb.successes.Store(0)
		cb.lastFail.Store(0)
		cb.logger.Info("Circuit breaker closed",
			zap.String("service", cb.serviceName))
	}
}

func (cb *CircuitBreaker) transitionToOpen() {
	if cb.transitionState(cb.getStateUnsafe(), StateBreakerOpen) {
		cb.successes.Store(0)
		cb.logger.Warn("Circuit breaker opened",
			zap.String("service", cb.serviceName),
			zap.Int32("failures", cb.failures.Load()),
			zap.Int("threshold", cb.config.FailureThreshold))
	}
}

func (cb *CircuitBreaker) transitionToHalfOpen() {
	if cb.transitionState(cb.getStateUnsafe(), StateBreakerHalfOpen) {
		cb.successes.Store(0)
		cb.logger.Info("Circuit breaker transitioned to half-open",
			zap.String("service", cb.serviceName))
	}
}

func (cb *CircuitBreaker) stateToString(state BreakerState) string {
	switch state {
	case StateBreakerClosed:
		return "closed"
	case StateBreakerOpen:
		return "open"
	case StateBreakerHalfOpen:
		return "half-open"
	case StateBreakerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// IsCircuitBreakerFailure reports whether a response should count
// against the breaker. Client errors other than 408 and 429 do not.
func IsCircuitBreakerFailure(statusCode int, err error) bool {
	if err != nil {
		return true
	}

	switch statusCode {
	case 408, 429, 502, 503, 504:
		return true
	default:
		return false
	}
}

func IsSuccessfulResponse(statusCode int, err error) bool {
	if err != nil {
		return false
	}
	return statusCode >= 200 && statusCode < 300
}
