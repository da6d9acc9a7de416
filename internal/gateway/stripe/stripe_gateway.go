package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/payment-lifecycle/internal/gateway"
	"github.com/yourorg/payment-lifecycle/internal/payment"
)

const (
	// Name is the gateway name records use for Stripe.
	Name = "Stripe"

	stripeAPIBaseURL = "https://api.stripe.com/v1"
	defaultTimeout   = 10 * time.Second
)

// StripeGateway implements gateway.Gateway against the Stripe PaymentIntent
// and Refund APIs.
type StripeGateway struct {
	httpClient *http.Client
	apiBaseURL string
	apiKey     string
}

// NewStripeGateway creates a new StripeGateway. A nil client gets a default
// client with a timeout; baseURL may be empty to use the public API.
func NewStripeGateway(client *http.Client, apiKey, baseURL string) *StripeGateway {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if baseURL == "" {
		baseURL = stripeAPIBaseURL
	}
	return &StripeGateway{
		httpClient: client,
		apiBaseURL: strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// Name returns the name of the gateway.
func (s *StripeGateway) Name() string {
	return Name
}

// Supports reports whether op is one of void, capture or refund.
func (s *StripeGateway) Supports(op payment.Operation) bool {
	return op.Valid()
}

// generateIdempotencyKey creates a unique key for Stripe requests.
func generateIdempotencyKey(paymentID string, op payment.Operation) string {
	key := fmt.Sprintf("%s-%s-%s", paymentID, op, uuid.NewString())
	if len(key) > 255 { // Stripe max length for idempotency key
		return key[:255]
	}
	return key
}

// buildOperationRequest returns the endpoint path and form body for op.
func buildOperationRequest(op payment.Operation, req gateway.Request) (string, url.Values, error) {
	if req.Reference == "" {
		return "", nil, fmt.Errorf("stripe: %s requires a payment intent reference", op)
	}
	form := url.Values{}
	switch op {
	case payment.OperationCapture:
		if req.Amount > 0 {
			form.Set("amount_to_capture", strconv.FormatInt(req.Amount, 10))
		}
		return "/payment_intents/" + url.PathEscape(req.Reference) + "/capture", form, nil
	case payment.OperationVoid:
		reason := req.Params["cancellation_reason"]
		if reason == "" {
			reason = "requested_by_customer"
		}
		form.Set("cancellation_reason", reason)
		return "/payment_intents/" + url.PathEscape(req.Reference) + "/cancel", form, nil
	case payment.OperationRefund:
		form.Set("payment_intent", req.Reference)
		if req.Amount > 0 {
			form.Set("amount", strconv.FormatInt(req.Amount, 10))
		}
		return "/refunds", form, nil
	default:
		return "", nil, fmt.Errorf("stripe: unsupported operation %q", op)
	}
}

// StripeErrorResponse represents the error structure from Stripe API
type StripeErrorResponse struct {
	Error struct {
		Type        string `json:"type"`
		Code        string `json:"code"` // e.g., "card_declined"
		Message     string `json:"message"`
		DeclineCode string `json:"decline_code"`
	} `json:"error"`
}

// Perform calls the Stripe endpoint for op. 4xx answers are returned as an
// unsuccessful Result; transport failures, 429 and 5xx are errors.
func (s *StripeGateway) Perform(ctx context.Context, op payment.Operation, req gateway.Request) (gateway.Result, error) {
	path, form, err := buildOperationRequest(op, req)
	if err != nil {
		return gateway.Result{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiBaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return gateway.Result{}, fmt.Errorf("stripe: failed to create http request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	httpReq.Header.Set("Idempotency-Key", generateIdempotencyKey(req.PaymentID, op))
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return gateway.Result{}, fmt.Errorf("stripe: http client error: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return gateway.Result{}, fmt.Errorf("stripe: failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return gateway.Result{}, fmt.Errorf("stripe: API request failed with HTTP %d", resp.StatusCode)
	}

	result := gateway.Result{Raw: bodyBytes}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var obj struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		}
		if err := json.Unmarshal(bodyBytes, &obj); err != nil {
			return gateway.Result{}, fmt.Errorf("stripe: malformed response: %w", err)
		}
		result.Reference = obj.ID
		result.Message = obj.Status
		result.Successful = obj.Status != "failed"
		return result, nil
	}

	var errorResponse StripeErrorResponse
	if err := json.Unmarshal(bodyBytes, &errorResponse); err == nil && errorResponse.Error.Message != "" {
		result.Code = errorResponse.Error.Code
		if errorResponse.Error.DeclineCode != "" {
			result.Code = errorResponse.Error.DeclineCode
		}
		result.Message = errorResponse.Error.Message
	} else {
		result.Code = fmt.Sprintf("STRIPE_HTTP_%d", resp.StatusCode)
		result.Message = fmt.Sprintf("Stripe API request failed with HTTP %d. Response: %s", resp.StatusCode, string(bodyBytes))
	}
	return result, nil
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID            string `json:"id"`
			Object        string `json:"object"`
			Status        string `json:"status"`
			FailureReason string `json:"failure_reason"`
		} `json:"object"`
	} `json:"data"`
}

// ParseNotification decodes a Stripe webhook event.
func (s *StripeGateway) ParseNotification(_ context.Context, payload []byte) (gateway.Notification, error) {
	var evt stripeEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return gateway.Notification{}, fmt.Errorf("stripe: malformed event: %w", err)
	}
	obj := evt.Data.Object
	if obj.ID == "" {
		return gateway.Notification{}, fmt.Errorf("stripe: event %q has no object id", evt.ID)
	}

	n := gateway.Notification{Reference: obj.ID, Message: evt.Type, Raw: payload}
	switch evt.Type {
	case "payment_intent.succeeded", "payment_intent.canceled":
		n.Status = gateway.NotificationCompleted
	case "payment_intent.payment_failed":
		n.Status = gateway.NotificationFailed
	case "payment_intent.processing", "payment_intent.amount_capturable_updated":
		n.Status = gateway.NotificationPending
	case "refund.created", "refund.updated", "charge.refund.updated":
		switch obj.Status {
		case "succeeded":
			n.Status = gateway.NotificationCompleted
		case "pending", "requires_action":
			n.Status = gateway.NotificationPending
		default:
			n.Status = gateway.NotificationFailed
			if obj.FailureReason != "" {
				n.Message = evt.Type + ": " + obj.FailureReason
			}
		}
	default:
		return gateway.Notification{}, fmt.Errorf("stripe: unsupported event type %q", evt.Type)
	}
	return n, nil
}
