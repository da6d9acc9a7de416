package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/yourorg/payment-lifecycle/internal/gateway"
	"github.com/yourorg/payment-lifecycle/internal/payment"
)

// MockGateway is a Gateway whose behaviour is set through function fields.
type MockGateway struct {
	GatewayName           string
	Operations            []payment.Operation // nil means every operation is supported
	PerformFunc           func(ctx context.Context, op payment.Operation, req gateway.Request) (gateway.Result, error)
	ParseNotificationFunc func(ctx context.Context, payload []byte) (gateway.Notification, error)

	performCalls atomic.Int64
	parseCalls   atomic.Int64
}

// NewMockGateway creates a new MockGateway.
func NewMockGateway(name string) *MockGateway {
	return &MockGateway{GatewayName: name}
}

// Name implements gateway.Gateway.
func (m *MockGateway) Name() string {
	return m.GatewayName
}

// Supports implements gateway.Gateway.
func (m *MockGateway) Supports(op payment.Operation) bool {
	if m.Operations == nil {
		return true
	}
	for _, supported := range m.Operations {
		if supported == op {
			return true
		}
	}
	return false
}

// Perform calls PerformFunc if set. By default it succeeds and echoes the
// request reference, or generates one.
func (m *MockGateway) Perform(ctx context.Context, op payment.Operation, req gateway.Request) (gateway.Result, error) {
	m.performCalls.Add(1)
	if m.PerformFunc != nil {
		return m.PerformFunc(ctx, op, req)
	}
	ref := req.Reference
	if ref == "" {
		ref = uuid.NewString()
	}
	return gateway.Result{Successful: true, Reference: ref}, nil
}

// ParseNotification calls ParseNotificationFunc if set. By default the
// payload is decoded as {"status": "...", "reference": "..."}.
func (m *MockGateway) ParseNotification(ctx context.Context, payload []byte) (gateway.Notification, error) {
	m.parseCalls.Add(1)
	if m.ParseNotificationFunc != nil {
		return m.ParseNotificationFunc(ctx, payload)
	}
	var body struct {
		Status    gateway.NotificationStatus `json:"status"`
		Reference string                     `json:"reference"`
		Message   string                     `json:"message"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return gateway.Notification{}, fmt.Errorf("mock: malformed notification: %w", err)
	}
	return gateway.Notification{Status: body.Status, Reference: body.Reference, Message: body.Message, Raw: payload}, nil
}

// PerformCalls returns how many times Perform was called.
func (m *MockGateway) PerformCalls() int {
	return int(m.performCalls.Load())
}

// ParseCalls returns how many times ParseNotification was called.
func (m *MockGateway) ParseCalls() int {
	return int(m.parseCalls.Load())
}
