// Package circuitbreaker tracks gateway health and stops calls to a gateway
// that keeps failing until a reset timeout has passed.
package circuitbreaker

import (
	"sync"
	"time"
)

// State represents the state of the circuit for one gateway.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateOpen:
		return "Open"
	case StateHalfOpen:
		return "HalfOpen"
	default:
		return "Unknown"
	}
}

const (
	defaultFailureThreshold = 3
	defaultResetTimeout     = 30 * time.Second
)

// Config holds breaker settings. Zero values fall back to defaults.
type Config struct {
	FailureThreshold int           // consecutive failures that open the circuit
	ResetTimeout     time.Duration // time spent Open before a trial request is allowed
}

type gatewayState struct {
	state               State
	consecutiveFailures int
	openUntil           time.Time
}

// CircuitBreaker is an in-memory, per-gateway circuit breaker.
type CircuitBreaker struct {
	mu       sync.Mutex
	gateways map[string]*gatewayState
	cfg      Config
}

// NewCircuitBreaker creates a CircuitBreaker.
func NewCircuitBreaker(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = defaultResetTimeout
	}
	return &CircuitBreaker{
		gateways: make(map[string]*gatewayState),
		cfg:      cfg,
	}
}

// stateFor must be called with mu held.
func (cb *CircuitBreaker) stateFor(gateway string) *gatewayState {
	gs, ok := cb.gateways[gateway]
	if !ok {
		gs = &gatewayState{state: StateClosed}
		cb.gateways[gateway] = gs
	}
	return gs
}

// AllowRequest reports whether a call to gateway may proceed.
// An Open circuit whose timeout expired moves to HalfOpen and lets the call through.
func (cb *CircuitBreaker) AllowRequest(gateway string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	gs := cb.stateFor(gateway)
	switch gs.state {
	case StateOpen:
		if time.Now().After(gs.openUntil) {
			gs.state = StateHalfOpen
			gs.consecutiveFailures = 0
			return true
		}
		return false
	default:
		return true
	}
}

// RecordFailure records a failed call.
func (cb *CircuitBreaker) RecordFailure(gateway string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	gs := cb.stateFor(gateway)
	switch gs.state {
	case StateClosed:
		gs.consecutiveFailures++
		if gs.consecutiveFailures >= cb.cfg.FailureThreshold {
			gs.state = StateOpen
			gs.openUntil = time.Now().Add(cb.cfg.ResetTimeout)
		}
	case StateHalfOpen:
		gs.state = StateOpen
		gs.consecutiveFailures = cb.cfg.FailureThreshold
		gs.openUntil = time.Now().Add(cb.cfg.ResetTimeout)
	case StateOpen:
	}
}

// RecordSuccess records a successful call. A HalfOpen circuit closes.
func (cb *CircuitBreaker) RecordSuccess(gateway string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	gs := cb.stateFor(gateway)
	switch gs.state {
	case StateClosed, StateHalfOpen:
		gs.state = StateClosed
		gs.consecutiveFailures = 0
	case StateOpen:
	}
}

// GetGatewayStatus returns the circuit state and consecutive failure count
// without triggering the Open to HalfOpen transition.
func (cb *CircuitBreaker) GetGatewayStatus(gateway string) (State, int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	gs := cb.stateFor(gateway)
	return gs.state, gs.consecutiveFailures
}
