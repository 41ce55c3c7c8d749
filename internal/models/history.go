package models

import (
	"time"

	"github.com/uptrace/bun"
)

// StatusHistory is one append-only entry of a booking's timeline.
type StatusHistory struct {
	bun.BaseModel `bun:"table:booking_status_history"`

	ID         int64         `bun:"id,pk,autoincrement" json:"id"`
	BookingID  string        `bun:"booking_id,notnull" json:"booking_id"`
	FromStatus BookingStatus `bun:"from_status,nullzero" json:"from_status,omitempty"`
	ToStatus   BookingStatus `bun:"to_status,notnull" json:"to_status"`
	Actor      Actor         `bun:"actor,notnull" json:"actor"`
	ActorID    string        `bun:"actor_id,nullzero" json:"actor_id,omitempty"`
	Message    string        `bun:"message,nullzero" json:"message,omitempty"`
	Reason     string        `bun:"reason,nullzero" json:"reason,omitempty"`
	CreatedAt  time.Time     `bun:"created_at,notnull" json:"created_at"`
}
