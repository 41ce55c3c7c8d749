package api

import (
	"context"
	"fmt"
	"ms-booking/internal/booking"
	"ms-booking/internal/models"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

type StatusRequest struct {
	Status       models.BookingStatus `json:"status" validate:"required"`
	Message      string               `json:"message,omitempty"`
	StatusReason string               `json:"status_reason,omitempty"`
}

// authorized loads the booking and checks the caller is a party to it.
func (h *Handler) authorized(ctx context.Context, id string, p models.Principal) (*models.Booking, error) {
	b, err := h.bookings.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := h.bookings.Authorize(ctx, b, p); err != nil {
		return nil, err
	}
	return b, nil
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req models.BookingRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	p := principal(r)
	if p.Role != models.ActorAdmin && (p.Role != models.ActorClient || p.ID != req.ClientID) {
		h.fail(w, r, booking.ErrUnauthorizedActor)
		return
	}

	b, err := h.bookings.Create(r.Context(), booking.CreateInput{
		ClientID:   req.ClientID,
		VendorRef:  req.VendorRef,
		ServiceID:  req.ServiceID,
		EventDate:  req.EventDate,
		Location:   req.Location,
		GuestCount: req.GuestCount,
		Currency:   req.Currency,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, SuccessResponse("Booking created", b))
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.authorized(r.Context(), chi.URLParam(r, "id"), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if q, err := h.ledger.GetQuote(r.Context(), b.ID); err == nil {
		b.ActiveQuote = q
	}
	writeJSON(w, http.StatusOK, SuccessResponse("Booking retrieved", b))
}

// UpdateStatus moves a booking to the requested status. Quote decisions are
// routed to the ledger so the quote and the booking change together.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	p := principal(r)

	var (
		b   *models.Booking
		err error
	)
	switch req.Status {
	case models.StatusQuoteAccepted, models.StatusQuoteRejected:
		clientID := p.ID
		if p.Role == models.ActorAdmin {
			current, gerr := h.bookings.Get(r.Context(), id)
			if gerr != nil {
				h.fail(w, r, gerr)
				return
			}
			clientID = current.ClientID
		} else if p.Role != models.ActorClient {
			h.fail(w, r, booking.ErrUnauthorizedActor)
			return
		}
		if req.Status == models.StatusQuoteAccepted {
			b, err = h.ledger.AcceptQuote(r.Context(), id, clientID, req.Message)
		} else {
			b, err = h.ledger.RejectQuote(r.Context(), id, clientID, req.StatusReason)
		}
	default:
		b, err = h.bookings.Transition(r.Context(), id, req.Status, p, req.Message, req.StatusReason)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse("Booking status updated", b))
}

func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	b, err := h.authorized(r.Context(), chi.URLParam(r, "id"), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	history, err := h.bookings.Timeline(r.Context(), b.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse("Timeline retrieved", history))
}

// StreamEvents streams the booking's committed events as server-sent events.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	b, err := h.authorized(r.Context(), chi.URLParam(r, "id"), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	// the server write timeout would otherwise cut long-lived streams
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	h.logger.Info("SSE", fmt.Sprintf("Client connected to booking %s events", b.ID))
	h.stream.Stream(w, r, b.ID, 15*time.Second)
	h.logger.Debug("SSE", fmt.Sprintf("Client disconnected from booking %s events", b.ID))
}
