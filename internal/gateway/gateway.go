// Package gateway defines the capability port the engine uses to talk to a
// payment gateway, and the registry that resolves a gateway by name.
// Adapters handle everything provider specific (encoding, authentication,
// timeouts) and normalize the provider's answers into Result and Notification.
package gateway

import (
	"context"

	"github.com/yourorg/payment-lifecycle/internal/payment"
)

// Request is the input of a gateway operation.
type Request struct {
	PaymentID string
	Reference string
	Amount    int64
	Currency  string
	Params    map[string]string
	// NotifyURL is where the gateway should post notifications for this operation.
	NotifyURL string
}

// Result is a normalized, non-exceptional gateway response.
type Result struct {
	Successful bool   `json:"successful"`
	Reference  string `json:"reference,omitempty"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
	Raw        []byte `json:"-"`
}

// NotificationStatus is the transaction status reported by an async notification.
type NotificationStatus string

const (
	NotificationCompleted NotificationStatus = "completed"
	NotificationPending   NotificationStatus = "pending"
	NotificationFailed    NotificationStatus = "failed"
)

// Notification is a parsed inbound notification.
type Notification struct {
	Status    NotificationStatus `json:"status"`
	Reference string             `json:"reference,omitempty"`
	Message   string             `json:"message,omitempty"`
	Raw       []byte             `json:"-"`
}

// Gateway is implemented by each payment gateway adapter.
// Perform and ParseNotification return an error only for exceptional
// conditions (transport failures, timeouts, unreadable payloads); a declined
// operation is a Result with Successful set to false.
type Gateway interface {
	// Name returns the gateway name records refer to.
	Name() string
	// Supports reports whether the gateway implements op.
	Supports(op payment.Operation) bool
	Perform(ctx context.Context, op payment.Operation, req Request) (Result, error)
	ParseNotification(ctx context.Context, payload []byte) (Notification, error)
}
