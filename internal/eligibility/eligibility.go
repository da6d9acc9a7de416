// Package eligibility decides whether an operation may start on a payment.
// Check is pure: it reads the record, the operation context and the gateway
// settings, and never writes.
package eligibility

import (
	"fmt"
	"sync"

	"github.com/Knetic/govaluate"

	"github.com/yourorg/payment-lifecycle/internal/config"
	"github.com/yourorg/payment-lifecycle/internal/payment"
)

// Decision is the outcome of an allowed check.
type Decision struct {
	// Reference is the transaction reference the operation runs against.
	// It may be empty only for a manual gateway.
	Reference string
	Manual    bool
}

// Check runs the eligibility rules in order: the operation must be enabled
// (including its rule expression), the status must be a start status and a
// reference must be resolvable unless the gateway is manual.
func Check(rec *payment.Record, opCtx payment.OperationContext, settings config.Gateway) (Decision, error) {
	op := opCtx.Operation
	if !settings.Allows(op) {
		return Decision{}, payment.ConfigurationError(op, "%s is disabled for gateway %q", op, rec.Gateway)
	}
	if expr := settings.Rules[op]; expr != "" {
		ok, err := evaluateRule(expr, rec)
		if err != nil {
			return Decision{}, payment.ConfigurationError(op, "rule %q for gateway %q: %v", expr, rec.Gateway, err)
		}
		if !ok {
			return Decision{}, payment.ConfigurationError(op, "rule %q rejected payment %s", expr, rec.ID)
		}
	}

	if !opCtx.Triple.IsStart(rec.Status) {
		return Decision{}, payment.InvalidStateError(op, "status %s", rec.Status)
	}

	ref := opCtx.SuppliedReference
	if ref == "" {
		ref = rec.LatestReference()
	}
	if ref == "" && !settings.Manual {
		return Decision{}, payment.MissingParameterError(op, "no %s supplied or recorded for payment %s", payment.ParamTransactionReference, rec.ID)
	}
	return Decision{Reference: ref, Manual: settings.Manual}, nil
}

// expressionCache holds compiled rule expressions keyed by their source text.
var expressionCache sync.Map

func compile(expr string) (*govaluate.EvaluableExpression, error) {
	if cached, ok := expressionCache.Load(expr); ok {
		return cached.(*govaluate.EvaluableExpression), nil
	}
	compiled, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return nil, err
	}
	expressionCache.Store(expr, compiled)
	return compiled, nil
}

func evaluateRule(expr string, rec *payment.Record) (bool, error) {
	compiled, err := compile(expr)
	if err != nil {
		return false, err
	}
	params := map[string]interface{}{
		"amount":   float64(rec.Amount),
		"currency": rec.Currency,
		"gateway":  rec.Gateway,
		"status":   string(rec.Status),
	}
	result, err := compiled.Evaluate(params)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expression did not evaluate to a boolean (got %T)", result)
	}
	return b, nil
}

// ValidateRules compiles every rule in gs so that a broken expression is
// reported at startup rather than on the first operation.
func ValidateRules(gs config.Gateways) error {
	for name, g := range gs {
		for op, expr := range g.Rules {
			if expr == "" {
				return fmt.Errorf("gateway %q: %s rule has an empty expression", name, op)
			}
			if _, err := compile(expr); err != nil {
				return fmt.Errorf("gateway %q: failed to compile %s rule: %w", name, op, err)
			}
		}
	}
	return nil
}
