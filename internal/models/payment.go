package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PaymentType string

const (
	PaymentDeposit PaymentType = "deposit"
	PaymentBalance PaymentType = "balance"
	PaymentFull    PaymentType = "full"
	PaymentRefund  PaymentType = "refund"
)

func (t PaymentType) Valid() bool {
	switch t {
	case PaymentDeposit, PaymentBalance, PaymentFull, PaymentRefund:
		return true
	}
	return false
}

// Payment is a single money movement against a booking. Rows are never updated or
// deleted; a mistake is corrected by a refund payment.
type Payment struct {
	bun.BaseModel `bun:"table:payments"`

	ID          string      `bun:"id,pk" json:"payment_id"`
	BookingID   string      `bun:"booking_id,notnull" json:"booking_id"`
	Amount      int64       `bun:"amount,notnull" json:"amount"`
	Currency    string      `bun:"currency,notnull" json:"currency"`
	Method      string      `bun:"method,notnull" json:"method"`
	Type        PaymentType `bun:"type,notnull" json:"type"`
	ExternalRef string      `bun:"external_ref,unique,notnull" json:"external_ref"`
	RefundOf    string      `bun:"refund_of,nullzero" json:"refund_of,omitempty"`
	CreatedAt   time.Time   `bun:"created_at,notnull" json:"created_at"`
}

type PaymentInput struct {
	BookingID   string
	Amount      int64
	Type        PaymentType
	Method      string
	Currency    string
	ExternalRef string
	RefundOf    string
}

// PaymentResult pairs a payment with the receipt it produced. Replayed is true when
// the external reference had already been recorded.
type PaymentResult struct {
	Payment  *Payment `json:"payment"`
	Receipt  *Receipt `json:"receipt"`
	Booking  *Booking `json:"booking,omitempty"`
	Replayed bool     `json:"replayed"`
}
