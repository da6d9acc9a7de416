package mock

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/payment-lifecycle/internal/gateway"
	"github.com/yourorg/payment-lifecycle/internal/payment"
)

func TestNewMockGateway(t *testing.T) {
	mock := NewMockGateway("test_mock")
	require.NotNil(t, mock)
	assert.Equal(t, "test_mock", mock.Name())
	assert.True(t, mock.Supports(payment.OperationRefund))
}

func TestMockGateway_Supports(t *testing.T) {
	mock := NewMockGateway("capture_only")
	mock.Operations = []payment.Operation{payment.OperationCapture}
	assert.True(t, mock.Supports(payment.OperationCapture))
	assert.False(t, mock.Supports(payment.OperationVoid))
}

func TestMockGateway_Perform_DefaultBehavior(t *testing.T) {
	mock := NewMockGateway("default_mock")

	result, err := mock.Perform(context.Background(), payment.OperationCapture, gateway.Request{Reference: "R1"})
	require.NoError(t, err)
	assert.True(t, result.Successful)
	assert.Equal(t, "R1", result.Reference)

	result, err = mock.Perform(context.Background(), payment.OperationCapture, gateway.Request{})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Reference)
	assert.Equal(t, 2, mock.PerformCalls())
}

func TestMockGateway_Perform_WithCustomFunc_Error(t *testing.T) {
	mock := NewMockGateway("custom_mock_error")
	expectedError := fmt.Errorf("Mock Send Exception")
	mock.PerformFunc = func(ctx context.Context, op payment.Operation, req gateway.Request) (gateway.Result, error) {
		return gateway.Result{}, expectedError
	}

	_, err := mock.Perform(context.Background(), payment.OperationVoid, gateway.Request{Reference: "R1"})
	require.Error(t, err)
	assert.Equal(t, expectedError, err)
}

func TestMockGateway_ParseNotification(t *testing.T) {
	mock := NewMockGateway("notify_mock")

	n, err := mock.ParseNotification(context.Background(), []byte(`{"status":"completed","reference":"R1"}`))
	require.NoError(t, err)
	assert.Equal(t, gateway.NotificationCompleted, n.Status)
	assert.Equal(t, "R1", n.Reference)

	_, err = mock.ParseNotification(context.Background(), []byte(`{not json`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed notification")
	assert.Equal(t, 2, mock.ParseCalls())
}
