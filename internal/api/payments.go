package api

import (
	"fmt"
	"ms-booking/internal/models"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// PaymentRequest is the internal call made by the payment gateway integration.
type PaymentRequest struct {
	Amount      int64              `json:"amount" validate:"gt=0"`
	Type        models.PaymentType `json:"type" validate:"required,oneof=deposit balance full refund"`
	Method      string             `json:"method"`
	Currency    string             `json:"currency,omitempty" validate:"omitempty,len=3"`
	ExternalRef string             `json:"external_ref" validate:"required"`
	RefundOf    string             `json:"refund_of,omitempty" validate:"required_if=Type refund"`
}

func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.ledger.RecordPayment(r.Context(), models.PaymentInput{
		BookingID:   chi.URLParam(r, "id"),
		Amount:      req.Amount,
		Type:        req.Type,
		Method:      req.Method,
		Currency:    req.Currency,
		ExternalRef: req.ExternalRef,
		RefundOf:    req.RefundOf,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status, msg := http.StatusCreated, "Payment recorded"
	if res.Replayed {
		status, msg = http.StatusOK, "Payment already recorded"
	}
	writeJSON(w, status, SuccessResponse(msg, res))
}

type IntentRequest struct {
	Type   models.PaymentType `json:"type" validate:"required,oneof=deposit balance full"`
	Amount int64              `json:"amount" validate:"gte=0"`
}

func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req IntentRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	intent, err := h.gateway.CreateIntent(r.Context(), chi.URLParam(r, "id"), principal(r), req.Type, req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, SuccessResponse("Payment intent created", intent))
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	b, err := h.authorized(r.Context(), chi.URLParam(r, "id"), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	payments, err := h.ledger.ListPayments(r.Context(), b.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse("Payments retrieved", payments))
}

func (h *Handler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	b, err := h.authorized(r.Context(), chi.URLParam(r, "id"), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	receipts, err := h.ledger.ListReceipts(r.Context(), b.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse("Receipts retrieved", receipts))
}

func (h *Handler) loadReceipt(r *http.Request) (*models.Receipt, error) {
	rc, err := h.ledger.GetReceipt(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		return nil, err
	}
	if _, err := h.authorized(r.Context(), rc.BookingID, principal(r)); err != nil {
		return nil, err
	}
	return rc, nil
}

func (h *Handler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	rc, err := h.loadReceipt(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse("Receipt retrieved", rc))
}

// ReceiptQR renders the sealed receipt as a PNG QR code.
func (h *Handler) ReceiptQR(w http.ResponseWriter, r *http.Request) {
	if h.qr == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse("receipt QR codes are not configured", "QR_DISABLED", ""))
		return
	}
	rc, err := h.loadReceipt(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	png, err := h.qr.PNG(rc, 256)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// ReceiptPDF renders the receipt as a printable PDF, with its QR code when QR
// sealing is configured.
func (h *Handler) ReceiptPDF(w http.ResponseWriter, r *http.Request) {
	if h.pdf == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse("receipt PDFs are not configured", "PDF_DISABLED", ""))
		return
	}
	rc, err := h.loadReceipt(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var code []byte
	if h.qr != nil {
		if code, err = h.qr.PNG(rc, 256); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	doc, err := h.pdf.Render(rc, code)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", rc.Number+".pdf"))
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}
