package eventbus

import (
	"fmt"
	"sync"
	"time"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed   State = 0 // normal operation, publishes pass through
	StateOpen     State = 1 // tripped, publishes rejected immediately
	StateHalfOpen State = 2 // probing with one call
)

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

// StateGauge is the subset of a Prometheus gauge the breaker reports its
// state through. Defined here rather than imported from prometheus so the
// breaker stays free of a metrics dependency when used without one.
type StateGauge interface {
	Set(float64)
}

// CircuitBreaker trips after maxFailures consecutive failures and rejects
// calls for resetTimeout before probing with a single half-open call. Every
// transition is reported to stateGauge as its numeric State value (0/1/2)
// so the event bus's circuit state is visible on the /metrics endpoint
// without the caller having to wire a separate OnStateChange hook for it —
// OnStateChange remains available for eventbus.go's buffered-publish flush.
type CircuitBreaker struct {
	mu           sync.Mutex
	state        State
	failures     int
	maxFailures  int
	resetTimeout time.Duration
	lastFailure  time.Time

	stateGauge    StateGauge
	OnStateChange func(from, to State)
}

// NewCircuitBreaker creates a circuit breaker. stateGauge may be nil, in
// which case state transitions are only observable via OnStateChange.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, stateGauge StateGauge) *CircuitBreaker {
	cb := &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
		stateGauge:   stateGauge,
	}
	if stateGauge != nil {
		stateGauge.Set(float64(StateClosed))
	}
	return cb
}

// Execute runs fn through the breaker, returning ErrCircuitOpen while open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			cb.transition(StateHalfOpen)
		} else {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	case StateHalfOpen:
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.failures++
		cb.lastFailure = time.Now()
		if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
			cb.transition(StateOpen)
		}
		return err
	}
	if cb.state == StateHalfOpen {
		cb.transition(StateClosed)
	}
	cb.failures = 0
	return nil
}

// CurrentState returns the current breaker state.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	if to == StateClosed {
		cb.failures = 0
	}
	if cb.stateGauge != nil {
		cb.stateGauge.Set(float64(to))
	}
	if cb.OnStateChange != nil {
		cb.OnStateChange(from, to)
	}
}

// ErrCircuitOpen is returned while the breaker is open.
var ErrCircuitOpen = fmt.Errorf("eventbus: circuit breaker is open")
