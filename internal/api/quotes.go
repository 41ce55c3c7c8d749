package api

import (
	"ms-booking/internal/booking"
	"ms-booking/internal/models"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) SendQuote(w http.ResponseWriter, r *http.Request) {
	var req models.QuoteRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.actingVendor(r, req.VendorID); err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.ledger.SendQuote(r.Context(), chi.URLParam(r, "id"), req.VendorID, req.LineItems)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse("Quote sent", b))
}

func (h *Handler) GetQuote(w http.ResponseWriter, r *http.Request) {
	b, err := h.authorized(r.Context(), chi.URLParam(r, "id"), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.ledger.GetQuote(r.Context(), b.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse("Quote retrieved", q))
}

func (h *Handler) ListQuotes(w http.ResponseWriter, r *http.Request) {
	b, err := h.authorized(r.Context(), chi.URLParam(r, "id"), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	quotes, err := h.ledger.ListQuotes(r.Context(), b.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse("Quotes retrieved", quotes))
}

func (h *Handler) AcceptQuote(w http.ResponseWriter, r *http.Request) {
	h.decideQuote(w, r, true)
}

func (h *Handler) RejectQuote(w http.ResponseWriter, r *http.Request) {
	h.decideQuote(w, r, false)
}

func (h *Handler) decideQuote(w http.ResponseWriter, r *http.Request, accept bool) {
	var req models.QuoteDecisionRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	p := principal(r)
	if p.Role != models.ActorAdmin && (p.Role != models.ActorClient || p.ID != req.ClientID) {
		h.fail(w, r, booking.ErrUnauthorizedActor)
		return
	}

	var (
		b   *models.Booking
		err error
		msg = "Quote rejected"
	)
	if accept {
		b, err = h.ledger.AcceptQuote(r.Context(), chi.URLParam(r, "id"), req.ClientID, req.Message)
		msg = "Quote accepted"
	} else {
		b, err = h.ledger.RejectQuote(r.Context(), chi.URLParam(r, "id"), req.ClientID, req.Reason)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse(msg, b))
}
