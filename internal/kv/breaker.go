package kv

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitState is the state of a CircuitBreaker.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // writes pass through
	CircuitOpen                         // writes refused until Timeout elapses
	CircuitHalfOpen                     // probing for recovery
)

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

// BreakerConfig configures a CircuitBreaker.
type BreakerConfig struct {
	FailureThreshold int           // failures within FailureWindow that open the circuit (default: 5)
	SuccessThreshold int           // half-open successes that close it again (default: 2)
	Timeout          time.Duration // time spent open before probing (default: 30s)
	FailureWindow    time.Duration // default: 1 minute
}

// DefaultBreakerConfig returns the default breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		FailureWindow:    time.Minute,
	}
}

// CircuitBreaker stops hammering a backend that keeps failing.
type CircuitBreaker struct {
	name   string
	config BreakerConfig
	logger *zap.Logger
	now    func() time.Time

	mu              sync.Mutex
	state           CircuitState
	failures        []time.Time
	successes       int
	lastStateChange time.Time
}

// NewCircuitBreaker creates a closed breaker. A nil logger is replaced by a no-op.
func NewCircuitBreaker(name string, config BreakerConfig, logger *zap.Logger) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CircuitBreaker{
		name:            name,
		config:          config,
		logger:          logger,
		now:             time.Now,
		state:           CircuitClosed,
		lastStateChange: time.Now(),
	}
}

// Execute runs fn unless the circuit is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.allow() {
		return &CircuitOpenError{Name: cb.name}
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen {
		if cb.now().Sub(cb.lastStateChange) >= cb.config.Timeout {
			cb.transitionTo(CircuitHalfOpen)
			return true
		}
		return false
	}
	return true
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		switch cb.state {
		case CircuitHalfOpen:
			cb.successes++
			if cb.successes >= cb.config.SuccessThreshold {
				cb.transitionTo(CircuitClosed)
			}
		case CircuitClosed:
			cb.failures = cb.failures[:0]
		}
		return
	}
	// Only transient failures say anything about backend health.
	if !IsRetryable(err) {
		return
	}

	now := cb.now()
	cb.failures = append(cb.failures, now)
	cutoff := now.Add(-cb.config.FailureWindow)
	recent := cb.failures[:0]
	for _, t := range cb.failures {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	cb.failures = recent

	switch cb.state {
	case CircuitClosed:
		if len(cb.failures) >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transitionTo(CircuitOpen)
	}
}

func (cb *CircuitBreaker) transitionTo(state CircuitState) {
	if cb.state == state {
		return
	}
	old := cb.state
	cb.state = state
	cb.lastStateChange = cb.now()
	cb.successes = 0
	if state == CircuitClosed {
		cb.failures = cb.failures[:0]
	}
	cb.logger.Warn("circuit state changed",
		zap.String("store", cb.name),
		zap.Stringer("from", old),
		zap.Stringer("to", state))
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.failures = cb.failures[:0]
	cb.successes = 0
	cb.lastStateChange = cb.now()
}

// BreakerStore guards a Store's writes with a CircuitBreaker.
// Reads always pass through so backups stay restorable while writes are shed.
type BreakerStore struct {
	Store
	breaker *CircuitBreaker
}

// WithBreaker wraps s.
func WithBreaker(s Store, breaker *CircuitBreaker) *BreakerStore {
	return &BreakerStore{Store: s, breaker: breaker}
}

// Breaker exposes the underlying breaker.
func (b *BreakerStore) Breaker() *CircuitBreaker {
	return b.breaker
}

func (b *BreakerStore) Set(ctx context.Context, key string, value []byte) error {
	return b.breaker.Execute(ctx, func(ctx context.Context) error {
		return b.Store.Set(ctx, key, value)
	})
}

func (b *BreakerStore) Delete(ctx context.Context, key string) error {
	return b.breaker.Execute(ctx, func(ctx context.Context) error {
		return b.Store.Delete(ctx, key)
	})
}
