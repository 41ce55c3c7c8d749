package models

import (
	"time"

	"github.com/uptrace/bun"
)

type QuoteStatus string

const (
	QuoteActive     QuoteStatus = "active"
	QuoteSuperseded QuoteStatus = "superseded"
	QuoteAccepted   QuoteStatus = "accepted"
	QuoteRejected   QuoteStatus = "rejected"
)

// Quote is an itemized proposal. Only one quote per booking is active at a time;
// superseded quotes stay as history.
type Quote struct {
	bun.BaseModel `bun:"table:quotes"`

	ID           string      `bun:"id,pk" json:"id"`
	BookingID    string      `bun:"booking_id,notnull,unique:booking_version" json:"booking_id"`
	Version      int         `bun:"version,notnull,unique:booking_version" json:"version"`
	VendorID     string      `bun:"vendor_id,notnull" json:"vendor_id"`
	Status       QuoteStatus `bun:"status,notnull" json:"status"`
	Currency     string      `bun:"currency,notnull" json:"currency"`
	Total        int64       `bun:"total,notnull" json:"total"`
	RejectReason string      `bun:"reject_reason,nullzero" json:"reject_reason,omitempty"`
	ClientNote   string      `bun:"client_note,nullzero" json:"client_note,omitempty"`
	CreatedAt    time.Time   `bun:"created_at,notnull" json:"created_at"`
	SupersededAt time.Time   `bun:"superseded_at,nullzero" json:"superseded_at,omitempty"`
	AcceptedAt   time.Time   `bun:"accepted_at,nullzero" json:"accepted_at,omitempty"`
	RejectedAt   time.Time   `bun:"rejected_at,nullzero" json:"rejected_at,omitempty"`

	Items []QuoteLineItem `bun:"rel:has-many,join:id=quote_id" json:"line_items"`
}

// QuoteLineItem is one priced line. Position keeps the vendor's ordering.
type QuoteLineItem struct {
	bun.BaseModel `bun:"table:quote_line_items"`

	ID          int64  `bun:"id,pk,autoincrement" json:"-"`
	QuoteID     string `bun:"quote_id,notnull" json:"-"`
	Position    int    `bun:"position,notnull" json:"position"`
	Name        string `bun:"name,notnull" json:"name"`
	Description string `bun:"description,nullzero" json:"description,omitempty"`
	UnitPrice   int64  `bun:"unit_price,notnull" json:"unit_price"`
}

type LineItemRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       int64  `json:"price"`
}

type QuoteRequest struct {
	LineItems []LineItemRequest `json:"lineItems"`
	VendorID  string            `json:"vendorId" validate:"required"`
}

type QuoteDecisionRequest struct {
	ClientID string `json:"clientId" validate:"required"`
	Message  string `json:"message,omitempty"`
	Reason   string `json:"reason,omitempty"`
}
