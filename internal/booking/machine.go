package booking

import (
	"fmt"
	"ms-booking/internal/apperr"
	"ms-booking/internal/models"
	"net/http"
)

var (
	ErrInvalidTransition = apperr.New("INVALID_TRANSITION", http.StatusBadRequest, "invalid status transition")
	ErrUnauthorizedActor = apperr.New("UNAUTHORIZED_ACTOR", http.StatusForbidden, "actor is not allowed to perform this action")
)

// TransitionError describes a refused transition. It unwraps to
// ErrInvalidTransition or ErrUnauthorizedActor.
type TransitionError struct {
	From  models.BookingStatus
	To    models.BookingStatus
	Actor models.Actor
	err   error
}

func (e *TransitionError) Error() string {
	if e.err == ErrUnauthorizedActor {
		return fmt.Sprintf("%s may not move a booking from %s to %s", e.Actor, e.From, e.To)
	}
	if !Known(e.To) {
		return fmt.Sprintf("Invalid status: %s", e.To)
	}
	return fmt.Sprintf("Invalid status: %s (not reachable from %s)", e.To, e.From)
}

func (e *TransitionError) Unwrap() error {
	return e.err
}

type edge struct {
	from, to models.BookingStatus
}

var (
	vendorOnly   = []models.Actor{models.ActorVendor}
	clientOnly   = []models.Actor{models.ActorClient}
	adminOnly    = []models.Actor{}
	payment      = []models.Actor{models.ActorSystem, models.ActorVendor}
	bothParties  = []models.Actor{models.ActorClient, models.ActorVendor}
	anyNonAdmin  = []models.Actor{models.ActorClient, models.ActorVendor, models.ActorSystem}
	cancellation = bothParties
)

// edges lists every allowed transition with the actors that may take it. Admin
// is allowed on every edge and is the only actor that can leave a dispute.
var edges = map[edge][]models.Actor{
	{models.StatusInquiry, models.StatusVendorReviewed}:                  vendorOnly,
	{models.StatusVendorReviewed, models.StatusQuoteSent}:                vendorOnly,
	{models.StatusQuoteSent, models.StatusQuoteAccepted}:                 clientOnly,
	{models.StatusQuoteSent, models.StatusQuoteRejected}:                 clientOnly,
	{models.StatusQuoteAccepted, models.StatusDownpaymentPending}:        anyNonAdmin,
	{models.StatusDownpaymentPending, models.StatusDownpaymentConfirmed}: payment,
	{models.StatusDownpaymentConfirmed, models.StatusFinalPaymentDue}:    payment,
	{models.StatusFinalPaymentDue, models.StatusCompleted}:               payment,
	{models.StatusDownpaymentConfirmed, models.StatusDisputed}:           bothParties,
	{models.StatusFinalPaymentDue, models.StatusDisputed}:                bothParties,
	{models.StatusDisputed, models.StatusCompleted}:                      adminOnly,
	{models.StatusDisputed, models.StatusCancelled}:                      adminOnly,
}

func init() {
	for _, s := range []models.BookingStatus{
		models.StatusInquiry, models.StatusVendorReviewed, models.StatusQuoteSent,
		models.StatusQuoteAccepted, models.StatusDownpaymentPending,
		models.StatusDownpaymentConfirmed, models.StatusFinalPaymentDue,
	} {
		edges[edge{s, models.StatusCancelled}] = cancellation
	}
}

var allStatuses = []models.BookingStatus{
	models.StatusInquiry, models.StatusVendorReviewed, models.StatusQuoteSent,
	models.StatusQuoteAccepted, models.StatusQuoteRejected, models.StatusDownpaymentPending,
	models.StatusDownpaymentConfirmed, models.StatusFinalPaymentDue, models.StatusCompleted,
	models.StatusCancelled, models.StatusDisputed,
}

// Statuses returns every booking status.
func Statuses() []models.BookingStatus {
	return append([]models.BookingStatus(nil), allStatuses...)
}

func Known(s models.BookingStatus) bool {
	for _, k := range allStatuses {
		if k == s {
			return true
		}
	}
	return false
}

func Terminal(s models.BookingStatus) bool {
	return s == models.StatusQuoteRejected || s == models.StatusCompleted || s == models.StatusCancelled
}

// Check validates a single transition. Repeating the current status is not an
// edge; callers treat it as a no-op before calling Check.
func Check(from, to models.BookingStatus, actor models.Actor) error {
	allowed, ok := edges[edge{from, to}]
	if !ok || !Known(to) {
		return &TransitionError{From: from, To: to, Actor: actor, err: ErrInvalidTransition}
	}
	if actor == models.ActorAdmin {
		return nil
	}
	for _, a := range allowed {
		if a == actor {
			return nil
		}
	}
	return &TransitionError{From: from, To: to, Actor: actor, err: ErrUnauthorizedActor}
}

// Targets lists the statuses reachable from s in one step.
func Targets(s models.BookingStatus) []models.BookingStatus {
	var out []models.BookingStatus
	for _, to := range allStatuses {
		if _, ok := edges[edge{s, to}]; ok {
			out = append(out, to)
		}
	}
	return out
}

type Stage struct {
	Progress     int
	NextAction   string
	NextActionBy models.Actor
}

var stages = map[models.BookingStatus]Stage{
	models.StatusInquiry:              {10, "Vendor reviews the inquiry", models.ActorVendor},
	models.StatusVendorReviewed:       {20, "Vendor sends an itemized quote", models.ActorVendor},
	models.StatusQuoteSent:            {35, "Client accepts or rejects the quote", models.ActorClient},
	models.StatusQuoteAccepted:        {50, "Client pays the downpayment", models.ActorClient},
	models.StatusDownpaymentPending:   {60, "Downpayment is confirmed", models.ActorSystem},
	models.StatusDownpaymentConfirmed: {75, "Client pays the remaining balance", models.ActorClient},
	models.StatusFinalPaymentDue:      {90, "Client pays the remaining balance", models.ActorClient},
	models.StatusCompleted:            {100, "No further action", ""},
	models.StatusQuoteRejected:        {0, "No further action", ""},
	models.StatusCancelled:            {0, "No further action", ""},
	models.StatusDisputed:             {75, "Admin resolves the dispute", models.ActorAdmin},
}

// Describe derives progress and the next required action from the booking's
// status. A fully paid booking awaiting its event date waits on the system.
func Describe(b *models.Booking) Stage {
	st := stages[b.Status]
	if b.HasTotal() && b.RemainingBalance == 0 && awaitsPayment(b.Status) {
		st.NextAction = "Service is delivered; the booking completes after the event date"
		st.NextActionBy = models.ActorSystem
	}
	return st
}

func awaitsPayment(s models.BookingStatus) bool {
	switch s {
	case models.StatusQuoteAccepted, models.StatusDownpaymentPending,
		models.StatusDownpaymentConfirmed, models.StatusFinalPaymentDue:
		return true
	}
	return false
}

// Decorate fills the derived fields of b.
func Decorate(b *models.Booking) *models.Booking {
	if b == nil {
		return nil
	}
	st := Describe(b)
	b.ProgressPercentage = st.Progress
	b.NextAction = st.NextAction
	b.NextActionBy = st.NextActionBy
	return b
}
