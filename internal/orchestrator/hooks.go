package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/yourorg/payment-lifecycle/internal/payment"
)

// PaymentObserver is notified when an operation commits its success status.
type PaymentObserver interface {
	OnPaymentSuccess(ctx context.Context, rec *payment.Record, op payment.Operation) error
}

// ServiceObserver is notified about every Initiate, Complete and Reconcile call.
type ServiceObserver interface {
	// OnRequestFailed fires when the gateway raised an exception before
	// producing a response.
	OnRequestFailed(ctx context.Context, rec *payment.Record, op payment.Operation, cause error) error
	// OnServiceResponse fires once per call that produced a response.
	OnServiceResponse(ctx context.Context, rec *payment.Record, resp ServiceResponse) error
}

// Dispatcher invokes registered observers synchronously in registration
// order, after state has been committed. Observer errors and panics are
// logged and dropped. Observers must be registered before the service is used.
type Dispatcher struct {
	payment []PaymentObserver
	service []ServiceObserver
	logger  *zap.Logger
}

// NewDispatcher creates a Dispatcher with no observers.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{logger: logger}
}

// AddPaymentObserver registers o for success transitions.
func (d *Dispatcher) AddPaymentObserver(o PaymentObserver) {
	d.payment = append(d.payment, o)
}

// AddServiceObserver registers o for call level events.
func (d *Dispatcher) AddServiceObserver(o ServiceObserver) {
	d.service = append(d.service, o)
}

func (d *Dispatcher) paymentSucceeded(ctx context.Context, rec *payment.Record, op payment.Operation) {
	for _, o := range d.payment {
		d.invoke("OnPaymentSuccess", rec, func() error {
			return o.OnPaymentSuccess(ctx, rec.Clone(), op)
		})
	}
}

func (d *Dispatcher) requestFailed(ctx context.Context, rec *payment.Record, op payment.Operation, cause error) {
	for _, o := range d.service {
		d.invoke("OnRequestFailed", rec, func() error {
			return o.OnRequestFailed(ctx, rec.Clone(), op, cause)
		})
	}
}

func (d *Dispatcher) serviceResponse(ctx context.Context, rec *payment.Record, resp ServiceResponse) {
	for _, o := range d.service {
		d.invoke("OnServiceResponse", rec, func() error {
			return o.OnServiceResponse(ctx, rec.Clone(), resp)
		})
	}
}

func (d *Dispatcher) invoke(hook string, rec *payment.Record, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("observer panicked",
				zap.String("hook", hook),
				zap.String("payment_id", rec.ID),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	if err := fn(); err != nil {
		d.logger.Warn("observer failed",
			zap.String("hook", hook),
			zap.String("payment_id", rec.ID),
			zap.Error(err),
		)
	}
}
