package errors

import (
	"context"
	stderrors "errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = stderrors.New("circuit breaker is open")

// State represents the circuit breaker state.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen fails calls fast until the reset timeout elapses.
	StateOpen
	// StateHalfOpen lets a probe call through after the reset timeout.
	StateHalfOpen
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker fails fast when a remote collaborator keeps failing.
// A batch of twenty queries against a dead embedding endpoint should
// not pay twenty full timeouts.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	now          func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
}

// CircuitBreakerOption configures a CircuitBreaker.
type CircuitBreakerOption func(*CircuitBreaker)

// WithMaxFailures sets the number of consecutive failures that open the circuit.
func WithMaxFailures(n int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		if n > 0 {
			cb.maxFailures = n
		}
	}
}

// WithResetTimeout sets how long the circuit stays open before probing.
func WithResetTimeout(d time.Duration) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		if d > 0 {
			cb.resetTimeout = d
		}
	}
}

// withClock replaces the time source. Tests only.
func withClock(now func() time.Time) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.now = now
	}
}

// NewCircuitBreaker creates a circuit breaker.
// Default: 5 failures, 30 second reset timeout.
func NewCircuitBreaker(name string, opts ...CircuitBreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:         name,
		maxFailures:  5,
		resetTimeout: 30 * time.Second,
		now:          time.Now,
		state:        StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Name returns the circuit breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState()
}

// currentState must be called with mu held.
func (cb *CircuitBreaker) currentState() State {
	if cb.state == StateOpen && cb.now().Sub(cb.lastFailure) > cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.state = StateClosed
}

func (cb *CircuitBreaker) recordFailure(probe bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	cb.lastFailure = cb.now()
	if probe || cb.failures >= cb.maxFailures {
		cb.state = StateOpen
	}
}

// Execute runs fn through the breaker.
// Returns ErrCircuitOpen without calling fn while the circuit is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	_, err := CircuitExecute(cb, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// CircuitExecute runs fn through the breaker and returns its value.
// A context.Canceled error is returned without counting as a failure.
func CircuitExecute[T any](cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	return CircuitExecuteContext(context.Background(), cb, fn)
}

// CircuitExecuteContext is CircuitExecute for a call made on behalf of ctx.
// Once ctx is done the outcome says nothing about the collaborator, so it
// is neither a failure nor a success.
func CircuitExecuteContext[T any](ctx context.Context, cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T

	cb.mu.Lock()
	state := cb.currentState()
	cb.mu.Unlock()

	if state == StateOpen {
		return zero, ErrCircuitOpen
	}

	result, err := fn()
	if err != nil {
		if ctx.Err() != nil || stderrors.Is(err, context.Canceled) {
			return zero, err
		}
		cb.recordFailure(state == StateHalfOpen)
		return zero, err
	}

	cb.recordSuccess()
	return result, nil
}
