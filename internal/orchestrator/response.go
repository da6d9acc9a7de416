package orchestrator

import (
	"github.com/yourorg/payment-lifecycle/internal/gateway"
	"github.com/yourorg/payment-lifecycle/internal/payment"
)

// ServiceResponse is the outcome of one Initiate, Complete or Reconcile call.
// Expected gateway failures are reported here, never as a returned error.
type ServiceResponse struct {
	PaymentID              string            `json:"paymentId"`
	Operation              payment.Operation `json:"operation"`
	Status                 payment.Status    `json:"status"`
	IsError                bool              `json:"isError"`
	IsAwaitingNotification bool              `json:"isAwaitingNotification"`
	IsNotification         bool              `json:"isNotification"`
	ErrorKind              payment.ErrorKind `json:"errorKind,omitempty"`
	Error                  string            `json:"error,omitempty"`
	// Result is set when the gateway returned a response to Perform.
	Result *gateway.Result `json:"result,omitempty"`
	// Notification is set when a notification payload was parsed, including
	// a rejected one.
	Notification *gateway.Notification `json:"notification,omitempty"`
}

// outcome names the branch a response took, for metrics and logs.
func (r ServiceResponse) outcome() string {
	switch {
	case r.ErrorKind == payment.ErrorKindGateway:
		return "gateway_error"
	case r.ErrorKind == payment.ErrorKindNotificationMismatch:
		return "mismatch"
	case r.IsError:
		return "failure"
	case r.IsAwaitingNotification:
		return "pending"
	case r.IsNotification && r.Notification == nil:
		return "duplicate"
	default:
		return "success"
	}
}
