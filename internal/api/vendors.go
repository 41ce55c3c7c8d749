package api

import (
	"ms-booking/internal/booking"
	"ms-booking/internal/models"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

type SubscriptionRequest struct {
	Tier       string    `json:"tier" validate:"required"`
	ValidFrom  time.Time `json:"valid_from"`
	ValidUntil time.Time `json:"valid_until"`
}

// actingVendor checks that a vendor caller is the vendor named by ref. System
// and admin callers act for any vendor.
func (h *Handler) actingVendor(r *http.Request, ref string) error {
	p := principal(r)
	switch p.Role {
	case models.ActorAdmin, models.ActorSystem:
		return nil
	case models.ActorVendor:
		id, err := h.vendors.Canonicalize(r.Context(), ref)
		if err != nil {
			return err
		}
		ok, err := h.vendors.Matches(r.Context(), p.ID, id)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return booking.ErrUnauthorizedActor
}

func (h *Handler) Quota(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	if err := h.actingVendor(r, ref); err != nil {
		h.fail(w, r, err)
		return
	}
	d, err := h.quota.CanCreateService(r.Context(), ref)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse("Quota retrieved", d))
}

func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	var req models.ServiceRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	ref := chi.URLParam(r, "ref")
	if err := h.actingVendor(r, ref); err != nil {
		h.fail(w, r, err)
		return
	}
	svc, err := h.quota.CreateService(r.Context(), ref, req.Title)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, SuccessResponse("Service created", svc))
}

func (h *Handler) ActivateSubscription(w http.ResponseWriter, r *http.Request) {
	var req SubscriptionRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	sub, err := h.quota.ActivateSubscription(r.Context(), chi.URLParam(r, "ref"), req.Tier, req.ValidFrom, req.ValidUntil)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse("Subscription activated", sub))
}
