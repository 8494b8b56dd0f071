// Package resilience guards calls to the league server.
package resilience

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type CircuitState string

const (
	CircuitStateClosed   CircuitState = "closed"
	CircuitStateOpen     CircuitState = "open"
	CircuitStateHalfOpen CircuitState = "half_open"
)

type CircuitBreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	OpenTimeout      time.Duration
}

func NormalizeCircuitBreakerConfig(cfg CircuitBreakerConfig) CircuitBreakerConfig {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 15 * time.Second
	}
	return cfg
}

// CircuitBreaker rejects calls for OpenTimeout once FailureThreshold calls in a row have
// failed. After that one trial call is let through; its outcome closes or reopens the circuit.
type CircuitBreaker struct {
	mu        sync.Mutex
	cfg       CircuitBreakerConfig
	failures  int
	openedAt  time.Time // zero while closed
	trialOpen bool
	now       func() time.Time
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: NormalizeCircuitBreakerConfig(cfg), now: time.Now}
}

// Allow reports ErrCircuitOpen when the call should not be made.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.stateLocked() {
	case CircuitStateOpen:
		return ErrCircuitOpen
	case CircuitStateHalfOpen:
		if b.trialOpen {
			return ErrCircuitOpen
		}
		b.trialOpen = true
	}
	return nil
}

// Record feeds a call outcome back; a nil err counts as success.
func (b *CircuitBreaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures, b.openedAt, b.trialOpen = 0, time.Time{}, false
		return
	}
	b.failures++
	if b.trialOpen || b.failures >= b.cfg.FailureThreshold {
		b.openedAt = b.now()
		b.trialOpen = false
	}
}

func (b *CircuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

func (b *CircuitBreaker) stateLocked() CircuitState {
	switch {
	case b.openedAt.IsZero():
		return CircuitStateClosed
	case b.now().Sub(b.openedAt) < b.cfg.OpenTimeout:
		return CircuitStateOpen
	default:
		return CircuitStateHalfOpen
	}
}
