package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/yourorg/payment-lifecycle/internal/gateway"
	"github.com/yourorg/payment-lifecycle/internal/payment"
)

// Reconcile applies an inbound gateway notification for op. A record already
// in the success status, or reverted by the same failure notification, is
// treated as a duplicate delivery and left alone.
func (s *Service) Reconcile(ctx context.Context, id string, op payment.Operation, payload []byte) (ServiceResponse, error) {
	ctx, span := startSpan(ctx, "Service.Reconcile", id, op)
	defer span.End()
	defer observeDuration("reconcile", time.Now())

	rec, unlock, err := s.acquire(ctx, id, op)
	if err != nil {
		return ServiceResponse{}, s.reject(span, op, err)
	}
	defer unlock()

	return s.reconcile(ctx, span, rec, op, payload)
}

// ReconcileAny applies a notification whose operation the caller does not
// know. The operation is taken from the locked record: the one whose failure
// notification reverted it, else the one whose pending or success status the
// record is in. A notification racing Initiate therefore waits for the pending
// status to be committed. Callers that know the operation should use Reconcile.
func (s *Service) ReconcileAny(ctx context.Context, id string, payload []byte) (ServiceResponse, error) {
	ctx, span := startSpan(ctx, "Service.ReconcileAny", id, "")
	defer span.End()
	defer observeDuration("reconcile", time.Now())

	rec, unlock, err := s.lockRecord(ctx, id)
	if err != nil {
		return ServiceResponse{}, s.reject(span, "", err)
	}
	defer unlock()

	op, ok := rec.FailedOperation()
	if !ok {
		op, ok = payment.OperationForStatus(rec.Status)
	}
	if !ok {
		return ServiceResponse{}, s.reject(span, "", payment.InvalidStateError("", "status %s is not awaiting a notification", rec.Status))
	}
	span.SetAttributes(attribute.String("payment.operation", string(op)))
	return s.reconcile(ctx, span, rec, op, payload)
}

// reconcile must be called with the record lock held.
func (s *Service) reconcile(ctx context.Context, span trace.Span, rec *payment.Record, op payment.Operation, payload []byte) (ServiceResponse, error) {
	triple := op.Triple()
	resp := ServiceResponse{PaymentID: rec.ID, Operation: op, IsNotification: true}

	if rec.Status == triple.Success {
		return s.finish(ctx, span, rec, resp, notificationsTotal), nil
	}
	// A record back in a start status only accepts a redelivery of the
	// failure notification that reverted op.
	var reverted payment.Message
	if rec.Status != triple.Pending {
		last, ok := rec.LatestMessageFor(op)
		if !triple.IsStart(rec.Status) || !ok || last.Kind != payment.KindNotificationFailure {
			return ServiceResponse{}, s.reject(span, op, payment.InvalidStateError(op, "status %s has no pending %s", rec.Status, op))
		}
		reverted = last
	}

	gw, err := s.gateways.Lookup(rec.Gateway, op)
	if err != nil {
		return ServiceResponse{}, s.reject(span, op, err)
	}

	if rec.Status != triple.Pending {
		n, parseErr := gw.ParseNotification(ctx, payload)
		if parseErr != nil || n.Status != gateway.NotificationFailed || n.Reference != reverted.TransactionReference {
			return ServiceResponse{}, s.reject(span, op, payment.InvalidStateError(op, "status %s has no pending %s", rec.Status, op))
		}
		return s.finish(ctx, span, rec, resp, notificationsTotal), nil
	}

	n, parseErr := gw.ParseNotification(ctx, payload)
	if parseErr != nil {
		rec.Append(payment.KindError, op, "", parseErr.Error())
		if err := s.store.Save(ctx, rec); err != nil {
			return ServiceResponse{}, fmt.Errorf("save notification error for payment %s: %w", rec.ID, err)
		}
		span.RecordError(parseErr)
		s.hooks.requestFailed(ctx, rec, op, parseErr)
		resp.IsError = true
		resp.ErrorKind = payment.ErrorKindGateway
		resp.Error = parseErr.Error()
		return s.finish(ctx, span, rec, resp, notificationsTotal), nil
	}
	resp.Notification = &n

	succeeded := false
	expected := rec.PendingReference(op)
	switch {
	case n.Reference != expected:
		// Kept for audit only; a Notification message never changes the
		// reference chain or the status.
		text := fmt.Sprintf("reference mismatch: expected %q", expected)
		rec.Append(payment.KindNotification, op, n.Reference, text)
		resp.IsError = true
		resp.ErrorKind = payment.ErrorKindNotificationMismatch
		resp.Error = text
		s.logger.Warn("notification rejected", zapFields(rec, op, n)...)
	case n.Status == gateway.NotificationCompleted:
		rec.Status = triple.Success
		rec.Append(payment.KindNotificationSuccess, op, n.Reference, n.Message)
		succeeded = true
	case n.Status == gateway.NotificationPending:
		rec.Append(payment.KindNotification, op, n.Reference, n.Message)
		resp.IsAwaitingNotification = true
	default:
		rec.Status = rec.StartStatus(op)
		rec.Append(payment.KindNotificationFailure, op, n.Reference, n.Message)
		resp.IsError = true
		resp.ErrorKind = payment.ErrorKindGatewayReportedFailure
		resp.Error = n.Message
	}
	if err := s.store.Save(ctx, rec); err != nil {
		return ServiceResponse{}, fmt.Errorf("save notification for payment %s: %w", rec.ID, err)
	}
	if succeeded {
		s.hooks.paymentSucceeded(ctx, rec, op)
	}
	return s.finish(ctx, span, rec, resp, notificationsTotal), nil
}

func zapFields(rec *payment.Record, op payment.Operation, n gateway.Notification) []zap.Field {
	return []zap.Field{
		zap.String("payment_id", rec.ID),
		zap.String("operation", string(op)),
		zap.String("notification_reference", n.Reference),
		zap.String("notification_status", string(n.Status)),
	}
}
