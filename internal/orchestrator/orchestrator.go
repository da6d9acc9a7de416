// Package orchestrator runs payment operations end to end. Initiate and
// Complete drive the synchronous path; Reconcile applies an asynchronous
// gateway notification. Both paths hold the per-record lock for the whole call
// and commit each status change together with its messages.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/yourorg/payment-lifecycle/internal/config"
	"github.com/yourorg/payment-lifecycle/internal/eligibility"
	"github.com/yourorg/payment-lifecycle/internal/gateway"
	"github.com/yourorg/payment-lifecycle/internal/payment"
)

// RecordStore loads and commits transaction records.
type RecordStore interface {
	Get(ctx context.Context, id string) (*payment.Record, error)
	Save(ctx context.Context, rec *payment.Record) error
}

// GatewayResolver finds the gateway of a record and performs calls on it.
type GatewayResolver interface {
	Lookup(name string, op payment.Operation) (gateway.Gateway, error)
	Perform(ctx context.Context, g gateway.Gateway, op payment.Operation, req gateway.Request) (gateway.Result, error)
}

// SettingsSource returns the operation settings of a gateway.
type SettingsSource interface {
	Settings(gatewayName string) config.Gateway
}

// Locker provides mutual exclusion per record ID.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Service is the operation orchestrator and notification reconciler.
type Service struct {
	store    RecordStore
	gateways GatewayResolver
	settings SettingsSource
	locker   Locker
	hooks    *Dispatcher
	logger   *zap.Logger

	notifyURL func(id string, op payment.Operation) string
}

// NewService creates a Service. hooks and logger may be nil.
func NewService(
	store RecordStore,
	gateways GatewayResolver,
	settings SettingsSource,
	locker Locker,
	hooks *Dispatcher,
	logger *zap.Logger,
) *Service {
	if store == nil {
		panic("RecordStore cannot be nil")
	}
	if gateways == nil {
		panic("GatewayResolver cannot be nil")
	}
	if settings == nil {
		panic("SettingsSource cannot be nil")
	}
	if locker == nil {
		panic("Locker cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if hooks == nil {
		hooks = NewDispatcher(logger)
	}
	return &Service{
		store:    store,
		gateways: gateways,
		settings: settings,
		locker:   locker,
		hooks:    hooks,
		logger:   logger,
	}
}

// SetNotifyURL sets the builder of the notification URL handed to gateways
// with every request. Unset, requests carry no notification URL.
func (s *Service) SetNotifyURL(fn func(id string, op payment.Operation) string) {
	s.notifyURL = fn
}

var tracer = otel.Tracer("orchestrator")

func startSpan(ctx context.Context, name, id string, op payment.Operation) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("payment.id", id),
		attribute.String("payment.operation", string(op)),
	))
}

// acquire validates op, then locks the record and loads it. The caller must call unlock.
func (s *Service) acquire(ctx context.Context, id string, op payment.Operation) (*payment.Record, func(), error) {
	if !op.Valid() {
		return nil, nil, payment.ConfigurationError(op, "unknown operation")
	}
	return s.lockRecord(ctx, id)
}

// lockRecord locks the record and loads it. The caller must call unlock.
func (s *Service) lockRecord(ctx context.Context, id string) (*payment.Record, func(), error) {
	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("lock payment %s: %w", id, err)
	}
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		unlock()
		return nil, nil, fmt.Errorf("load payment %s: %w", id, err)
	}
	return rec, unlock, nil
}

// Initiate runs op against the record's gateway.
// Only configuration, state and parameter problems are returned as errors;
// gateway exceptions and declines are reported in the ServiceResponse.
func (s *Service) Initiate(ctx context.Context, id string, op payment.Operation, params map[string]string) (ServiceResponse, error) {
	ctx, span := startSpan(ctx, "Service.Initiate", id, op)
	defer span.End()
	defer observeDuration("initiate", time.Now())

	rec, unlock, err := s.acquire(ctx, id, op)
	if err != nil {
		return ServiceResponse{}, s.reject(span, op, err)
	}
	defer unlock()

	gw, err := s.gateways.Lookup(rec.Gateway, op)
	if err != nil {
		return ServiceResponse{}, s.reject(span, op, err)
	}
	settings := s.settings.Settings(rec.Gateway)
	decision, err := eligibility.Check(rec, payment.NewOperationContext(op, params), settings)
	if err != nil {
		return ServiceResponse{}, s.reject(span, op, err)
	}

	rec.AppendRequest(op, decision.Reference)
	if err := s.store.Save(ctx, rec); err != nil {
		return ServiceResponse{}, fmt.Errorf("save request for payment %s: %w", id, err)
	}

	resp := ServiceResponse{PaymentID: rec.ID, Operation: op}
	req := gateway.Request{
		PaymentID: rec.ID,
		Reference: decision.Reference,
		Amount:    rec.Amount,
		Currency:  rec.Currency,
		Params:    params,
	}
	if s.notifyURL != nil {
		req.NotifyURL = s.notifyURL(rec.ID, op)
	}
	result, gwErr := s.gateways.Perform(ctx, gw, op, req)
	if gwErr != nil {
		rec.Append(payment.KindError, op, "", gwErr.Error())
		if err := s.store.Save(ctx, rec); err != nil {
			return ServiceResponse{}, fmt.Errorf("save gateway error for payment %s: %w", id, err)
		}
		span.RecordError(gwErr)
		s.hooks.requestFailed(ctx, rec, op, gwErr)
		resp.IsError = true
		resp.ErrorKind = payment.ErrorKindGateway
		resp.Error = gwErr.Error()
		return s.finish(ctx, span, rec, resp, operationsTotal), nil
	}

	ref := result.Reference
	if ref == "" {
		ref = decision.Reference
	}
	rec.Append(payment.KindResponse, op, ref, resultText(result))
	resp.Result = &result

	triple := op.Triple()
	succeeded := false
	switch {
	case settings.UseAsyncNotification:
		rec.Status = triple.Pending
		resp.IsAwaitingNotification = true
	case result.Successful:
		rec.Status = triple.Success
		rec.Append(payment.KindSuccess, op, ref, "")
		succeeded = true
	default:
		rec.Append(payment.KindFailure, op, ref, resultText(result))
		resp.IsError = true
		resp.ErrorKind = payment.ErrorKindGatewayReportedFailure
		resp.Error = resultText(result)
	}
	if err := s.store.Save(ctx, rec); err != nil {
		return ServiceResponse{}, fmt.Errorf("save outcome for payment %s: %w", id, err)
	}
	if succeeded {
		s.hooks.paymentSucceeded(ctx, rec, op)
	}
	return s.finish(ctx, span, rec, resp, operationsTotal), nil
}

// Complete finalizes op without a fresh gateway attempt. A record already in
// the success status is answered from its state. A pending record can only be
// resolved by a notification, so payload is handed to the reconciler; without
// one the call fails with an invalid state error.
func (s *Service) Complete(ctx context.Context, id string, op payment.Operation, payload []byte) (ServiceResponse, error) {
	ctx, span := startSpan(ctx, "Service.Complete", id, op)
	defer span.End()
	defer observeDuration("complete", time.Now())

	rec, unlock, err := s.acquire(ctx, id, op)
	if err != nil {
		return ServiceResponse{}, s.reject(span, op, err)
	}
	defer unlock()

	triple := op.Triple()
	switch {
	case rec.Status == triple.Success:
		resp := ServiceResponse{PaymentID: rec.ID, Operation: op, IsNotification: true}
		return s.finish(ctx, span, rec, resp, operationsTotal), nil
	case rec.Status == triple.Pending && len(payload) > 0:
		return s.reconcile(ctx, span, rec, op, payload)
	case rec.Status == triple.Pending:
		return ServiceResponse{}, s.reject(span, op, payment.InvalidStateError(op, "status %s is awaiting a notification", rec.Status))
	default:
		return ServiceResponse{}, s.reject(span, op, payment.InvalidStateError(op, "status %s", rec.Status))
	}
}

// reject records a call refused before any write.
func (s *Service) reject(span trace.Span, op payment.Operation, err error) error {
	reason := "infrastructure"
	switch {
	case errors.Is(err, payment.ErrConfiguration):
		reason = "configuration"
	case errors.Is(err, payment.ErrInvalidState):
		reason = "invalid_state"
	case errors.Is(err, payment.ErrMissingParameter):
		reason = "missing_parameter"
	}
	rejectionsTotal.WithLabelValues(string(op), reason).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	s.logger.Info("payment call rejected",
		zap.String("operation", string(op)),
		zap.String("reason", reason),
		zap.Error(err),
	)
	return err
}

// finish fires the service hook, records metrics and logs the outcome.
func (s *Service) finish(ctx context.Context, span trace.Span, rec *payment.Record, resp ServiceResponse, counter *prometheus.CounterVec) ServiceResponse {
	resp.PaymentID = rec.ID
	resp.Status = rec.Status
	s.hooks.serviceResponse(ctx, rec, resp)

	outcome := resp.outcome()
	counter.WithLabelValues(string(resp.Operation), outcome).Inc()
	span.SetAttributes(
		attribute.String("payment.outcome", outcome),
		attribute.String("payment.status", string(rec.Status)),
	)
	if resp.IsError {
		span.SetStatus(codes.Error, string(resp.ErrorKind))
	}
	s.logger.Info("payment call finished",
		zap.String("payment_id", rec.ID),
		zap.String("operation", string(resp.Operation)),
		zap.String("status", string(rec.Status)),
		zap.String("outcome", outcome),
		zap.Bool("notification", resp.IsNotification),
	)
	return resp
}

func resultText(r gateway.Result) string {
	if r.Code == "" {
		return r.Message
	}
	if r.Message == "" {
		return r.Code
	}
	return r.Code + ": " + r.Message
}
