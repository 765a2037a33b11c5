package http

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed is the normal state where requests are allowed.
	CircuitClosed CircuitState = iota
	// CircuitOpen is the state where requests fail fast.
	CircuitOpen
	// CircuitHalfOpen is the testing state where limited requests are allowed.
	CircuitHalfOpen
)

// String returns the string representation of a circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the circuit breaker for a host is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures to open the circuit.
	FailureThreshold int
	// RecoveryTimeout is how long the circuit stays open before transitioning
	// to half-open.
	RecoveryTimeout time.Duration
	// HalfOpenMaxRequests is the number of test requests allowed in half-open
	// state.
	HalfOpenMaxRequests int
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:    5,
		RecoveryTimeout:     30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

type circuit struct {
	state             CircuitState
	consecutiveErrors int
	lastFailure       time.Time
	halfOpenInFlight  int
}

// CircuitBreaker tracks per-host failure state. A mirror instance that keeps
// failing is skipped fast instead of burning its timeout on every attempt.
type CircuitBreaker struct {
	mu       sync.Mutex
	circuits map[string]*circuit
	config   CircuitBreakerConfig
	now      func() time.Time
}

// NewCircuitBreaker creates a circuit breaker with the given configuration.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = 1
	}
	return &CircuitBreaker{
		circuits: make(map[string]*circuit),
		config:   cfg,
		now:      time.Now,
	}
}

// Allow reports whether a request to host may proceed.
func (b *CircuitBreaker) Allow(host string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuitFor(host)
	switch c.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		if b.now().Sub(c.lastFailure) >= b.config.RecoveryTimeout {
			c.state = CircuitHalfOpen
			c.halfOpenInFlight = 1
			return nil
		}
		return fmt.Errorf("%s: %w", host, ErrCircuitOpen)
	case CircuitHalfOpen:
		if c.halfOpenInFlight < b.config.HalfOpenMaxRequests {
			c.halfOpenInFlight++
			return nil
		}
		return fmt.Errorf("%s: %w", host, ErrCircuitOpen)
	}
	return nil
}

// RecordSuccess marks a successful request, closing the circuit.
func (b *CircuitBreaker) RecordSuccess(host string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuitFor(host)
	c.state = CircuitClosed
	c.consecutiveErrors = 0
	c.halfOpenInFlight = 0
}

// RecordFailure marks a failed request, opening the circuit at the threshold.
func (b *CircuitBreaker) RecordFailure(host string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuitFor(host)
	c.consecutiveErrors++
	c.lastFailure = b.now()
	if c.state == CircuitHalfOpen || c.consecutiveErrors >= b.config.FailureThreshold {
		c.state = CircuitOpen
		c.halfOpenInFlight = 0
	}
}

// State returns the current state for a host.
func (b *CircuitBreaker) State(host string) CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.circuitFor(host).state
}

func (b *CircuitBreaker) circuitFor(host string) *circuit {
	c, ok := b.circuits[host]
	if !ok {
		c = &circuit{state: CircuitClosed}
		b.circuits[host] = c
	}
	return c
}
