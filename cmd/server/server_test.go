package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/payment-lifecycle/internal/config"
	"github.com/yourorg/payment-lifecycle/internal/gateway"
	"github.com/yourorg/payment-lifecycle/internal/gateway/circuitbreaker"
	"github.com/yourorg/payment-lifecycle/internal/gateway/manual"
	gatewaymock "github.com/yourorg/payment-lifecycle/internal/gateway/mock"
	"github.com/yourorg/payment-lifecycle/internal/lock"
	"github.com/yourorg/payment-lifecycle/internal/orchestrator"
	"github.com/yourorg/payment-lifecycle/internal/payment"
	"github.com/yourorg/payment-lifecycle/internal/reporting"
	"github.com/yourorg/payment-lifecycle/internal/store/memory"
)

type testServer struct {
	router *gin.Engine
	store  *memory.Store
	gw     *gatewaymock.MockGateway
	async  *gatewaymock.MockGateway
}

// setupTestServer builds the router over an in-memory store. The "Async"
// gateway confirms operations through notifications only.
func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := memory.New()
	dummy := gatewaymock.NewMockGateway(demoGatewayName)
	async := gatewaymock.NewMockGateway("Async")
	registry := gateway.NewRegistry(circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{}), dummy, async, manual.New())
	settings := config.Gateways{"Async": {UseAsyncNotification: true}}

	svc := orchestrator.NewService(st, registry, settings, lock.NewKeyedMutex(), nil, nil)
	app, err := newApplication(svc, st, nil)
	require.NoError(t, err)
	return &testServer{router: setupRouter(app), store: st, gw: dummy, async: async}
}

func (s *testServer) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(method, path, bytes.NewReader(body))
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) createPayment(t *testing.T, gatewayName, status string) payment.Record {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"ownerId":              "merchant-123",
		"gateway":              gatewayName,
		"amount":               1000,
		"currency":             "USD",
		"status":               status,
		"transactionReference": "AUTH-1",
	})
	require.NoError(t, err)

	w := s.do(t, http.MethodPost, "/payments", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var rec payment.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	return rec
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) orchestrator.ServiceResponse {
	t.Helper()
	var resp orchestrator.ServiceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func TestCreatePayment(t *testing.T) {
	s := setupTestServer(t)
	rec := s.createPayment(t, demoGatewayName, "Authorized")

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, payment.StatusAuthorized, rec.Status)
	assert.Equal(t, "AUTH-1", rec.LatestReference())

	w := s.do(t, http.MethodGet, "/payments/"+rec.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreatePayment_InvalidRequest(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodPost, "/payments", []byte("this is not json"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var errorResponse gin.H
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errorResponse))
	assert.Contains(t, errorResponse["error"], "Invalid request format")

	w = s.do(t, http.MethodPost, "/payments", []byte(`{"ownerId": "merchant-123", "gateway": "Dummy", "amount": -5, "currency": "USD"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errorResponse))
	assert.Contains(t, errorResponse["error"], "Validation errors")
}

func TestGetPayment_NotFound(t *testing.T) {
	s := setupTestServer(t)
	w := s.do(t, http.MethodGet, "/payments/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInitiate_Capture(t *testing.T) {
	s := setupTestServer(t)
	rec := s.createPayment(t, demoGatewayName, "Authorized")

	w := s.do(t, http.MethodPost, "/payments/"+rec.ID+"/capture", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeResponse(t, w)
	assert.False(t, resp.IsError)
	assert.Equal(t, payment.StatusCaptured, resp.Status)
	require.NotNil(t, resp.Result)
	assert.Equal(t, "AUTH-1", resp.Result.Reference)

	// Capturing again is an invalid state.
	w = s.do(t, http.MethodPost, "/payments/"+rec.ID+"/capture", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestInitiate_ExplicitReferenceParam(t *testing.T) {
	s := setupTestServer(t)
	rec := s.createPayment(t, demoGatewayName, "Authorized")

	var sent string
	s.gw.PerformFunc = func(_ context.Context, _ payment.Operation, req gateway.Request) (gateway.Result, error) {
		sent = req.Reference
		return gateway.Result{Successful: true}, nil
	}
	w := s.do(t, http.MethodPost, "/payments/"+rec.ID+"/void", []byte(`{"params": {"receipt": "LEGACY-7"}}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "LEGACY-7", sent)
}

func TestInitiate_BadRequests(t *testing.T) {
	s := setupTestServer(t)
	rec := s.createPayment(t, demoGatewayName, "Authorized")

	w := s.do(t, http.MethodPost, "/payments/"+rec.ID+"/authorize", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/payments/"+rec.ID+"/void", []byte(`{"params": {"amount": 5}}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/payments/"+rec.ID+"/refund", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/payments/missing/void", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	other := s.createPayment(t, "Unknown", "Authorized")
	w = s.do(t, http.MethodPost, "/payments/"+other.ID+"/void", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAsyncCapture_ViaWebhook(t *testing.T) {
	s := setupTestServer(t)
	rec := s.createPayment(t, "Async", "Authorized")

	w := s.do(t, http.MethodPost, "/payments/"+rec.ID+"/capture", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeResponse(t, w)
	assert.True(t, resp.IsAwaitingNotification)
	assert.Equal(t, payment.StatusPendingCapture, resp.Status)

	// Without a payload the pending capture cannot be completed.
	w = s.do(t, http.MethodPost, "/payments/"+rec.ID+"/capture/complete", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// A mismatched notification is acknowledged but not applied.
	w = s.do(t, http.MethodPost, "/paymentendpoint/"+rec.ID+"/notify", []byte(`{"status":"completed","reference":"OTHER"}`))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
	got, err := s.store.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPendingCapture, got.Status)

	w = s.do(t, http.MethodPost, "/paymentendpoint/"+rec.ID+"/notify", []byte(`{"status":"completed","reference":"AUTH-1"}`))
	assert.Equal(t, http.StatusOK, w.Code)
	got, err = s.store.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCaptured, got.Status)

	// Redelivery is acknowledged.
	w = s.do(t, http.MethodGet, "/paymentendpoint/"+rec.ID+"/notify?operation=capture", []byte(`{"status":"completed","reference":"AUTH-1"}`))
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/payments/"+rec.ID+"/capture/complete", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeResponse(t, w).IsNotification)
}

func TestNotify_Errors(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodPost, "/paymentendpoint/missing/notify", []byte(`{}`))
	assert.Equal(t, http.StatusNotFound, w.Code)

	rec := s.createPayment(t, "Async", "Authorized")
	w = s.do(t, http.MethodPost, "/paymentendpoint/"+rec.ID+"/notify", []byte(`{}`))
	assert.Equal(t, http.StatusConflict, w.Code, "nothing is pending")

	w = s.do(t, http.MethodPost, "/paymentendpoint/"+rec.ID+"/notify?operation=authorize", []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNotify_WaitsForInitiate(t *testing.T) {
	s := setupTestServer(t)
	rec := s.createPayment(t, "Async", "Authorized")

	performing := make(chan struct{})
	release := make(chan struct{})
	s.async.PerformFunc = func(context.Context, payment.Operation, gateway.Request) (gateway.Result, error) {
		close(performing)
		<-release
		return gateway.Result{Successful: true, Reference: "CAP-1"}, nil
	}

	captured := make(chan *httptest.ResponseRecorder, 1)
	go func() { captured <- s.do(t, http.MethodPost, "/payments/"+rec.ID+"/capture", nil) }()
	<-performing

	notified := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		notified <- s.do(t, http.MethodPost, "/paymentendpoint/"+rec.ID+"/notify", []byte(`{"status":"completed","reference":"CAP-1"}`))
	}()
	close(release)

	w := <-captured
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = <-notified
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "OK", w.Body.String())

	got, err := s.store.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCaptured, got.Status)
}

func TestNotify_FailureRedelivered(t *testing.T) {
	s := setupTestServer(t)
	rec := s.createPayment(t, "Async", "Authorized")

	w := s.do(t, http.MethodPost, "/payments/"+rec.ID+"/capture", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	failed := []byte(`{"status":"failed","reference":"AUTH-1","message":"declined"}`)
	for _, path := range []string{
		"/paymentendpoint/" + rec.ID + "/notify",
		"/paymentendpoint/" + rec.ID + "/notify",
		"/paymentendpoint/" + rec.ID + "/notify?operation=capture",
	} {
		w = s.do(t, http.MethodPost, path, failed)
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, "OK", w.Body.String())
	}

	got, err := s.store.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusAuthorized, got.Status)
	assert.Equal(t, payment.KindNotificationFailure, got.Messages[len(got.Messages)-1].Kind)
	assert.Equal(t, 1, countKind(got, payment.KindNotificationFailure))

	// A different notification on the reverted record is still refused.
	w = s.do(t, http.MethodPost, "/paymentendpoint/"+rec.ID+"/notify", []byte(`{"status":"completed","reference":"AUTH-1"}`))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func countKind(rec *payment.Record, kind payment.MessageKind) int {
	n := 0
	for _, m := range rec.Messages {
		if m.Kind == kind {
			n++
		}
	}
	return n
}

func TestNotifyURL(t *testing.T) {
	assert.Equal(t, "http://pay.local/paymentendpoint/p%201/notify?operation=capture",
		notifyURL("http://pay.local/", "p 1", payment.OperationCapture))
	assert.Equal(t, "https://pay.example/paymentendpoint/abc/notify?operation=void",
		notifyURL("https://pay.example", "abc", payment.OperationVoid))
}

func TestOwnerEndpoints(t *testing.T) {
	s := setupTestServer(t)
	rec := s.createPayment(t, demoGatewayName, "Authorized")
	s.createPayment(t, manual.Name, "Captured")

	w := s.do(t, http.MethodPost, "/payments/"+rec.ID+"/void", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/owners/merchant-123/payments", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var recs []payment.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recs))
	assert.Len(t, recs, 2)

	w = s.do(t, http.MethodGet, "/owners/merchant-123/report", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report reporting.OwnerReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 2, report.TotalPayments)
	assert.Equal(t, 1, report.StatusCounts[payment.StatusVoided])
	assert.Equal(t, 1, report.StatusCounts[payment.StatusCaptured])

	w = s.do(t, http.MethodGet, "/owners/nobody/payments", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
