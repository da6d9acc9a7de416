package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/yourorg/payment-lifecycle/internal/gateway/circuitbreaker"
	"github.com/yourorg/payment-lifecycle/internal/payment"
)

// ErrCircuitOpen is returned by Registry.Perform when the gateway's circuit is open.
var ErrCircuitOpen = errors.New("gateway circuit open")

// Registry resolves gateways by name and guards calls with a circuit breaker.
type Registry struct {
	mu       sync.RWMutex
	gateways map[string]Gateway
	breaker  *circuitbreaker.CircuitBreaker
}

// NewRegistry creates a Registry holding gws.
func NewRegistry(breaker *circuitbreaker.CircuitBreaker, gws ...Gateway) *Registry {
	if breaker == nil {
		panic("circuit breaker cannot be nil")
	}
	r := &Registry{
		gateways: make(map[string]Gateway),
		breaker:  breaker,
	}
	for _, g := range gws {
		r.Register(g)
	}
	return r
}

// Register adds or replaces a gateway.
func (r *Registry) Register(g Gateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[g.Name()] = g
}

// Lookup returns the gateway called name if it supports op.
// A missing gateway or capability is a configuration error.
func (r *Registry) Lookup(name string, op payment.Operation) (Gateway, error) {
	r.mu.RLock()
	g, ok := r.gateways[name]
	r.mu.RUnlock()
	if !ok {
		return nil, payment.ConfigurationError(op, "no gateway registered as %q", name)
	}
	if !g.Supports(op) {
		return nil, payment.ConfigurationError(op, "gateway %q does not support %s", name, op)
	}
	return g, nil
}

// Perform runs op on g unless g's circuit is open.
// Only exceptional failures count against the circuit; a declined operation does not.
func (r *Registry) Perform(ctx context.Context, g Gateway, op payment.Operation, req Request) (Result, error) {
	if !r.breaker.AllowRequest(g.Name()) {
		return Result{}, fmt.Errorf("%s %s: %w", g.Name(), op, ErrCircuitOpen)
	}
	res, err := g.Perform(ctx, op, req)
	if err != nil {
		r.breaker.RecordFailure(g.Name())
		return Result{}, err
	}
	r.breaker.RecordSuccess(g.Name())
	return res, nil
}
