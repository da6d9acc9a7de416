// Package manual implements the gateway used for payments settled outside
// any provider. Every operation succeeds immediately and no transaction
// reference is needed.
package manual

import (
	"context"
	"errors"

	"github.com/yourorg/payment-lifecycle/internal/gateway"
	"github.com/yourorg/payment-lifecycle/internal/payment"
)

// Name is the gateway name of manual payments.
const Name = "Manual"

// ErrNoNotifications is returned when a notification is sent to the manual gateway.
var ErrNoNotifications = errors.New("manual gateway does not send notifications")

// Gateway is the manual gateway.
type Gateway struct{}

// New returns the manual gateway.
func New() *Gateway {
	return &Gateway{}
}

func (g *Gateway) Name() string { return Name }

func (g *Gateway) Supports(op payment.Operation) bool { return op.Valid() }

func (g *Gateway) Perform(_ context.Context, _ payment.Operation, req gateway.Request) (gateway.Result, error) {
	return gateway.Result{Successful: true, Reference: req.Reference, Message: "manual"}, nil
}

func (g *Gateway) ParseNotification(context.Context, []byte) (gateway.Notification, error) {
	return gateway.Notification{}, ErrNoNotifications
}
