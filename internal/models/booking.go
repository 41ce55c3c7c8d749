package models

import (
	"time"

	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	StatusInquiry              BookingStatus = "inquiry"
	StatusVendorReviewed       BookingStatus = "vendor_reviewed"
	StatusQuoteSent            BookingStatus = "quote_sent"
	StatusQuoteAccepted        BookingStatus = "quote_accepted"
	StatusQuoteRejected        BookingStatus = "quote_rejected"
	StatusDownpaymentPending   BookingStatus = "downpayment_pending"
	StatusDownpaymentConfirmed BookingStatus = "downpayment_confirmed"
	StatusFinalPaymentDue      BookingStatus = "final_payment_due"
	StatusCompleted            BookingStatus = "completed"
	StatusCancelled            BookingStatus = "cancelled"
	StatusDisputed             BookingStatus = "disputed"
)

// Booking is one client-vendor engagement. Progress and next action are derived
// from Status on read and never stored.
type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID         string    `bun:"id,pk" json:"id"`
	Reference  string    `bun:"reference,unique,notnull" json:"reference"`
	ClientID   string    `bun:"client_id,notnull" json:"client_id"`
	VendorID   string    `bun:"vendor_id,notnull" json:"vendor_id"`
	ServiceID  string    `bun:"service_id,notnull" json:"service_id"`
	EventDate  time.Time `bun:"event_date,nullzero" json:"event_date,omitempty"`
	Location   string    `bun:"location,nullzero" json:"location,omitempty"`
	GuestCount *int      `bun:"guest_count" json:"guest_count,omitempty"`

	Status       BookingStatus `bun:"status,notnull" json:"status"`
	StatusReason string        `bun:"status_reason,nullzero" json:"status_reason,omitempty"`

	Currency          string `bun:"currency,notnull" json:"currency"`
	TotalAmount       *int64 `bun:"total_amount" json:"total_amount"`
	TotalPaid         int64  `bun:"total_paid,notnull" json:"total_paid"`
	RemainingBalance  int64  `bun:"remaining_balance,notnull" json:"remaining_balance"`
	DownpaymentAmount int64  `bun:"downpayment_amount,notnull" json:"downpayment_amount"`
	PaymentProgress   int    `bun:"payment_progress,notnull" json:"payment_progress"`

	Version int64 `bun:"version,notnull" json:"version"`

	CreatedAt              time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt              time.Time `bun:"updated_at,notnull" json:"updated_at"`
	StatusChangedAt        time.Time `bun:"status_changed_at,notnull" json:"status_changed_at"`
	QuoteSentAt            time.Time `bun:"quote_sent_at,nullzero" json:"quote_sent_at,omitempty"`
	QuoteAcceptedAt        time.Time `bun:"quote_accepted_at,nullzero" json:"quote_accepted_at,omitempty"`
	DownpaymentConfirmedAt time.Time `bun:"downpayment_confirmed_at,nullzero" json:"downpayment_confirmed_at,omitempty"`
	CompletedAt            time.Time `bun:"completed_at,nullzero" json:"completed_at,omitempty"`
	CancelledAt            time.Time `bun:"cancelled_at,nullzero" json:"cancelled_at,omitempty"`

	ProgressPercentage int    `bun:"-" json:"progress_percentage"`
	NextAction         string `bun:"-" json:"next_action"`
	NextActionBy       Actor  `bun:"-" json:"next_action_by"`

	ActiveQuote *Quote `bun:"-" json:"active_quote,omitempty"`
}

// HasTotal reports whether a quote total has been set.
func (b *Booking) HasTotal() bool {
	return b.TotalAmount != nil
}

// Total returns the quoted total or 0 when unset.
func (b *Booking) Total() int64 {
	if b.TotalAmount == nil {
		return 0
	}
	return *b.TotalAmount
}

// EventPassed reports whether the event date is set and before now.
func (b *Booking) EventPassed(now time.Time) bool {
	return !b.EventDate.IsZero() && b.EventDate.Before(now)
}

type BookingRequest struct {
	ClientID   string    `json:"client_id" validate:"required"`
	VendorRef  string    `json:"vendor_id" validate:"required"`
	ServiceID  string    `json:"service_id" validate:"required"`
	EventDate  time.Time `json:"event_date"`
	Location   string    `json:"location"`
	GuestCount *int      `json:"guest_count,omitempty" validate:"omitempty,gte=0"`
	Currency   string    `json:"currency,omitempty" validate:"omitempty,len=3"`
}
