package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"ms-booking/internal/apperr"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const maxWebhookBody = 65536

// WebhookError is a failed webhook delivery. PublicError goes back to Stripe;
// InternalError is only logged.
type WebhookError struct {
	Category      string
	StatusCode    int
	PublicError   string
	InternalError string
	OriginalErr   error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

func (e *WebhookError) Unwrap() error {
	return e.OriginalErr
}

type WebhookHandler struct {
	ledger Ledger
	secret string
	logger *logger.Logger
}

func NewWebhookHandler(l Ledger, secret string, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{ledger: l, secret: secret, logger: log}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := h.Handle(r); err != nil {
		status, msg := http.StatusInternalServerError, "Webhook processing error"
		var we *WebhookError
		if errors.As(err, &we) {
			status, msg = we.StatusCode, we.PublicError
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"error": msg})
		return
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]bool{"received": true})
}

// Handle verifies the Stripe signature and applies the event to the ledger.
// Payments the ledger refuses are logged and acknowledged, since a redelivery
// would be refused again; store failures return 500 so Stripe retries.
func (h *WebhookHandler) Handle(r *http.Request) error {
	if h.secret == "" {
		h.logger.Error("WEBHOOK", "Stripe webhook secret is not configured")
		return &WebhookError{
			Category:      "configuration",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: "Stripe webhook secret is not configured",
		}
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook payload",
			InternalError: fmt.Sprintf("Failed to read webhook payload: %v", err),
			OriginalErr:   err,
		}
	}

	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), h.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		h.logger.LogSecurity("WEBHOOK_SIGNATURE", fmt.Sprintf("Rejected Stripe webhook: %v", err))
		return &WebhookError{
			Category:      "signature",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook signature",
			InternalError: fmt.Sprintf("Webhook signature verification failed: %v", err),
			OriginalErr:   err,
		}
	}

	h.logger.Info("WEBHOOK", fmt.Sprintf("Processing Stripe webhook event %s (%s)", event.ID, event.Type))
	switch string(event.Type) {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return processingError("Failed to unmarshal payment intent", err)
		}
		return h.settle(r.Context(), h.intentPayment(&pi))
	case "refund.created", "refund.updated":
		var refund stripe.Refund
		if err := json.Unmarshal(event.Data.Raw, &refund); err != nil {
			return processingError("Failed to unmarshal refund", err)
		}
		return h.refund(r.Context(), &refund)
	default:
		h.logger.Info("WEBHOOK", fmt.Sprintf("Unhandled event type: %s", event.Type))
		return nil
	}
}

func processingError(msg string, err error) error {
	return &WebhookError{
		Category:      "processing",
		StatusCode:    http.StatusBadRequest,
		PublicError:   "Invalid event payload",
		InternalError: fmt.Sprintf("%s: %v", msg, err),
		OriginalErr:   err,
	}
}

func (h *WebhookHandler) intentPayment(pi *stripe.PaymentIntent) models.PaymentInput {
	amount := pi.AmountReceived
	if amount == 0 {
		amount = pi.Amount
	}
	typ := models.PaymentType(pi.Metadata[metaPaymentType])
	if !typ.Valid() || typ == models.PaymentRefund {
		typ = models.PaymentBalance
	}
	method := "card"
	if len(pi.PaymentMethodTypes) > 0 {
		method = pi.PaymentMethodTypes[0]
	}
	return models.PaymentInput{
		BookingID:   pi.Metadata[metaBookingID],
		Amount:      amount,
		Type:        typ,
		Method:      "stripe:" + method,
		Currency:    strings.ToUpper(string(pi.Currency)),
		ExternalRef: pi.ID,
	}
}

func (h *WebhookHandler) refund(ctx context.Context, refund *stripe.Refund) error {
	if refund.Status != stripe.RefundStatusSucceeded {
		h.logger.Info("WEBHOOK", fmt.Sprintf("Refund %s is %s, waiting for success", refund.ID, refund.Status))
		return nil
	}
	if refund.PaymentIntent == nil || refund.PaymentIntent.ID == "" {
		h.logger.Warn("WEBHOOK", fmt.Sprintf("Refund %s has no payment intent", refund.ID))
		return nil
	}
	original, err := h.ledger.FindPayment(ctx, refund.PaymentIntent.ID)
	if err != nil {
		return h.outcome(refund.ID, err)
	}
	return h.settle(ctx, models.PaymentInput{
		BookingID:   original.BookingID,
		Amount:      refund.Amount,
		Type:        models.PaymentRefund,
		Method:      original.Method,
		Currency:    strings.ToUpper(string(refund.Currency)),
		ExternalRef: refund.ID,
		RefundOf:    original.ID,
	})
}

func (h *WebhookHandler) settle(ctx context.Context, in models.PaymentInput) error {
	res, err := h.ledger.RecordPayment(ctx, in)
	if err != nil {
		return h.outcome(in.ExternalRef, err)
	}
	if res.Replayed {
		h.logger.Info("WEBHOOK", fmt.Sprintf("Duplicate delivery for %s ignored", in.ExternalRef))
		return nil
	}
	h.logger.Info("WEBHOOK", fmt.Sprintf("Recorded %s %s for booking %s, receipt %s", in.Type, in.ExternalRef, in.BookingID, res.Receipt.Number))
	return nil
}

// outcome classifies a ledger failure for the webhook response.
func (h *WebhookHandler) outcome(ref string, err error) error {
	if apperr.Status(err) < http.StatusInternalServerError {
		h.logger.Error("WEBHOOK", fmt.Sprintf("Ledger refused %s, manual reconciliation needed: %v", ref, err))
		return nil
	}
	return &WebhookError{
		Category:      "processing",
		StatusCode:    http.StatusInternalServerError,
		PublicError:   "Webhook processing error",
		InternalError: fmt.Sprintf("Failed to record %s: %v", ref, err),
		OriginalErr:   err,
	}
}
