package models

import (
	"time"

	"github.com/uptrace/bun"
)

type SubscriptionStatus string

const (
	SubscriptionActive  SubscriptionStatus = "active"
	SubscriptionExpired SubscriptionStatus = "expired"
)

type Subscription struct {
	bun.BaseModel `bun:"table:subscriptions"`

	ID         string             `bun:"id,pk" json:"id"`
	VendorID   string             `bun:"vendor_id,notnull" json:"vendor_id"`
	Tier       string             `bun:"tier,notnull" json:"tier"`
	Status     SubscriptionStatus `bun:"status,notnull" json:"status"`
	ValidFrom  time.Time          `bun:"valid_from,notnull" json:"valid_from"`
	ValidUntil time.Time          `bun:"valid_until,nullzero" json:"valid_until,omitempty"`
	CreatedAt  time.Time          `bun:"created_at,notnull" json:"created_at"`
}

// ActiveAt reports whether the subscription grants its tier at t. A zero
// ValidUntil means open-ended.
func (s *Subscription) ActiveAt(t time.Time) bool {
	if s.Status != SubscriptionActive {
		return false
	}
	if t.Before(s.ValidFrom) {
		return false
	}
	return s.ValidUntil.IsZero() || t.Before(s.ValidUntil)
}
