package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Execute while the breaker rejects calls
var ErrOpen = errors.New("circuit breaker is open")

// State represents the state of the circuit breaker
type State int

const (
	StateClosed   State = iota // calls flow
	StateHalfOpen              // probing with a limited number of calls
	StateOpen                  // calls rejected until ResetTimeout passes
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	}
	return "unknown"
}

// Config configures a CircuitBreaker
type Config struct {
	Name             string
	FailureThreshold int
	ResetTimeout     time.Duration
	HalfOpenMaxCalls int

	// Now is the clock; nil means time.Now
	Now func() time.Time
}

// CircuitBreaker stops calling a dependency after repeated failures and
// probes it again once ResetTimeout has passed
type CircuitBreaker struct {
	cfg Config

	mu              sync.Mutex
	state           State
	failures        int
	halfOpenCalls   int
	lastStateChange time.Time
}

// Snapshot is a point-in-time view for status endpoints
type Snapshot struct {
	Name             string    `json:"name"`
	State            string    `json:"state"`
	FailureCount     int       `json:"failure_count"`
	FailureThreshold int       `json:"failure_threshold"`
	HalfOpenCalls    int       `json:"half_open_calls"`
	ResetTimeout     string    `json:"reset_timeout"`
	LastStateChange  time.Time `json:"last_state_change"`
	TimeInState      string    `json:"time_in_state"`
}

// New creates a new circuit breaker
func New(cfg Config) *CircuitBreaker {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	if cfg.HalfOpenMaxCalls < 1 {
		cfg.HalfOpenMaxCalls = 1
	}

	return &CircuitBreaker{
		cfg:             cfg,
		state:           StateClosed,
		lastStateChange: cfg.Now(),
	}
}

// Allow reports whether a call may proceed, moving an expired open breaker
// to half-open
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true

	case StateOpen:
		if cb.cfg.Now().Sub(cb.lastStateChange) < cb.cfg.ResetTimeout {
			return false
		}
		cb.transition(StateHalfOpen)
		cb.halfOpenCalls = 1
		return true

	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.cfg.HalfOpenMaxCalls {
			return false
		}
		cb.halfOpenCalls++
		return true
	}

	return false
}

// Success reports a successful call
func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.transition(StateClosed)
	}
	cb.failures = 0
}

// Failure reports a failed call
func (cb *CircuitBreaker) Failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.transition(StateOpen)
	}
}

// Execute runs fn when the breaker allows it and records the outcome.
// Context cancellation is not counted against the dependency.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.Allow() {
		return ErrOpen
	}

	err := fn(ctx)

	switch {
	case err == nil:
		cb.Success()
	case errors.Is(err, context.Canceled):
	default:
		cb.Failure()
	}

	return err
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.state
}

// Snapshot returns the breaker's counters
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Snapshot{
		Name:             cb.cfg.Name,
		State:            cb.state.String(),
		FailureCount:     cb.failures,
		FailureThreshold: cb.cfg.FailureThreshold,
		HalfOpenCalls:    cb.halfOpenCalls,
		ResetTimeout:     cb.cfg.ResetTimeout.String(),
		LastStateChange:  cb.lastStateChange,
		TimeInState:      cb.cfg.Now().Sub(cb.lastStateChange).String(),
	}
}

// Reset forces the breaker closed
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.transition(StateClosed)
	cb.failures = 0
}

func (cb *CircuitBreaker) transition(to State) {
	cb.state = to
	cb.lastStateChange = cb.cfg.Now()
	cb.halfOpenCalls = 0
}
