package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Receipt is the immutable client-facing record of exactly one Payment.
type Receipt struct {
	bun.BaseModel `bun:"table:receipts"`

	Number           string      `bun:"number,pk" json:"receipt_number"`
	PaymentID        string      `bun:"payment_id,unique,notnull" json:"payment_id"`
	BookingID        string      `bun:"booking_id,notnull" json:"booking_id"`
	BookingReference string      `bun:"booking_reference,notnull" json:"booking_reference"`
	PaymentType      PaymentType `bun:"payment_type,notnull" json:"payment_type"`
	Amount           int64       `bun:"amount,notnull" json:"amount"`
	Currency         string      `bun:"currency,notnull" json:"currency"`
	TotalPaid        int64       `bun:"total_paid,notnull" json:"total_paid"`
	RemainingBalance int64       `bun:"remaining_balance,notnull" json:"remaining_balance"`
	IssuedAt         time.Time   `bun:"issued_at,notnull" json:"issued_at"`
}
