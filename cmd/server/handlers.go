package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/yourorg/payment-lifecycle/internal/monitor"
	"github.com/yourorg/payment-lifecycle/internal/orchestrator"
	"github.com/yourorg/payment-lifecycle/internal/payment"
	"github.com/yourorg/payment-lifecycle/internal/reporting"
	"github.com/yourorg/payment-lifecycle/internal/store"
)

const serviceName = "payment-lifecycle"

// application holds what the HTTP handlers need.
type application struct {
	service           *orchestrator.Service
	store             store.Store
	reporter          *reporting.Reporter
	createContract    *monitor.ContractMonitor
	operationContract *monitor.ContractMonitor
	logger            *zap.Logger
}

func newApplication(svc *orchestrator.Service, st store.Store, logger *zap.Logger) (*application, error) {
	createContract, err := monitor.NewEmbeddedContractMonitor(monitor.ContractCreatePayment)
	if err != nil {
		return nil, err
	}
	operationContract, err := monitor.NewEmbeddedContractMonitor(monitor.ContractOperationRequest)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &application{
		service:           svc,
		store:             st,
		reporter:          reporting.NewReporter(),
		createContract:    createContract,
		operationContract: operationContract,
		logger:            logger,
	}, nil
}

type createPaymentRequest struct {
	OwnerID              string         `json:"ownerId"`
	Gateway              string         `json:"gateway"`
	Amount               int64          `json:"amount"`
	Currency             string         `json:"currency"`
	Status               payment.Status `json:"status"`
	TransactionReference string         `json:"transactionReference"`
}

type operationRequest struct {
	Params map[string]string `json:"params"`
}

func setupRouter(app *application) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(serviceName))

	router.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/payments", app.createPaymentHandler)
	router.GET("/payments/:id", app.getPaymentHandler)
	router.POST("/payments/:id/:operation", app.initiateHandler)
	router.POST("/payments/:id/:operation/complete", app.completeHandler)
	router.GET("/owners/:owner/payments", app.listPaymentsHandler)
	router.GET("/owners/:owner/report", app.reportHandler)
	router.Any("/paymentendpoint/:id/notify", app.notifyHandler)
	return router
}

// validate checks body against contract and writes a 400 when it does not hold.
func (app *application) validate(c *gin.Context, contract *monitor.ContractMonitor, body []byte) bool {
	valid, validationErrs, err := contract.Validate(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return false
	}
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": monitor.FormatErrors(validationErrs)})
		return false
	}
	return true
}

func (app *application) createPaymentHandler(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !app.validate(c, app.createContract, body) {
		return
	}
	var req createPaymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	if req.Status == "" {
		req.Status = payment.StatusAuthorized
	}

	rec := payment.NewRecord(req.OwnerID, req.Gateway, req.Amount, req.Currency, req.Status)
	if req.TransactionReference != "" {
		// Reference of the authorization that happened before the record reached this service.
		rec.Append(payment.KindResponse, "", req.TransactionReference, "imported")
	}
	if err := app.store.Create(c.Request.Context(), rec); err != nil {
		app.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (app *application) getPaymentHandler(c *gin.Context) {
	rec, err := app.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		app.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (app *application) listPaymentsHandler(c *gin.Context) {
	recs, err := app.store.ListByOwner(c.Request.Context(), c.Param("owner"))
	if err != nil {
		app.fail(c, err)
		return
	}
	if recs == nil {
		recs = []*payment.Record{}
	}
	c.JSON(http.StatusOK, recs)
}

func (app *application) reportHandler(c *gin.Context) {
	owner := c.Param("owner")
	recs, err := app.store.ListByOwner(c.Request.Context(), owner)
	if err != nil {
		app.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.reporter.Generate(owner, recs))
}

func (app *application) initiateHandler(c *gin.Context) {
	op, err := payment.ParseOperation(c.Param("operation"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req operationRequest
	if len(body) > 0 {
		if !app.validate(c, app.operationContract, body) {
			return
		}
		if err := json.Unmarshal(body, &req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
			return
		}
	}

	resp, err := app.service.Initiate(c.Request.Context(), c.Param("id"), op, req.Params)
	if err != nil {
		app.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (app *application) completeHandler(c *gin.Context) {
	op, err := payment.ParseOperation(c.Param("operation"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := app.service.Complete(c.Request.Context(), c.Param("id"), op, payload)
	if err != nil {
		app.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// notifyURL is the webhook address handed to gateways for op on payment id.
// It names the operation so the notification is routed without inference.
func notifyURL(baseURL, id string, op payment.Operation) string {
	return strings.TrimRight(baseURL, "/") + "/paymentendpoint/" + url.PathEscape(id) + "/notify?operation=" + url.QueryEscape(string(op))
}

// notifyHandler is the webhook endpoint gateways post notifications to.
// The operation comes from the query string. Without one it is inferred
// from the record under its lock; that fallback cannot tell a stale
// notification of an earlier operation from one of the current operation,
// so gateways should be given the URL built by notifyURL. Every
// reconciliation outcome is acknowledged with 200 OK so the gateway stops
// redelivering.
func (app *application) notifyHandler(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	payload, err := c.GetRawData()
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	var resp orchestrator.ServiceResponse
	if raw := c.Query("operation"); raw != "" {
		op, err := payment.ParseOperation(raw)
		if err != nil {
			c.String(http.StatusBadRequest, err.Error())
			return
		}
		resp, err = app.service.Reconcile(ctx, id, op, payload)
		if err != nil {
			app.failText(c, err)
			return
		}
	} else {
		resp, err = app.service.ReconcileAny(ctx, id, payload)
		if err != nil {
			app.failText(c, err)
			return
		}
	}

	if resp.IsError {
		app.logger.Warn("notification not applied",
			zap.String("payment_id", id),
			zap.String("operation", string(resp.Operation)),
			zap.String("error_kind", string(resp.ErrorKind)),
			zap.String("error", resp.Error),
		)
	}
	c.String(http.StatusOK, "OK")
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, payment.ErrInvalidState), errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrExists):
		return http.StatusConflict
	case errors.Is(err, payment.ErrConfiguration), errors.Is(err, payment.ErrMissingParameter):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (app *application) logFailure(c *gin.Context, status int, err error) {
	fields := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		app.logger.Error("request failed", fields...)
		return
	}
	app.logger.Info("request rejected", fields...)
}

func (app *application) fail(c *gin.Context, err error) {
	status := httpStatus(err)
	app.logFailure(c, status, err)
	if status >= http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (app *application) failText(c *gin.Context, err error) {
	status := httpStatus(err)
	app.logFailure(c, status, err)
	c.String(status, http.StatusText(status))
}
