package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Vendor is one entity with two optional linked records: the legacy short code and
// the profile id. ID is the canonical identity used everywhere else.
type Vendor struct {
	bun.BaseModel `bun:"table:vendors"`

	ID          string    `bun:"id,pk" json:"id"`
	LegacyCode  *string   `bun:"legacy_code,unique" json:"legacy_code,omitempty"`
	ProfileID   *string   `bun:"profile_id,unique" json:"profile_id,omitempty"`
	DisplayName string    `bun:"display_name,nullzero" json:"display_name,omitempty"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
}

// ServiceListing is a vendor's listed service. Only non-deleted listings count
// against the plan quota.
type ServiceListing struct {
	bun.BaseModel `bun:"table:services"`

	ID        string    `bun:"id,pk" json:"id"`
	VendorID  string    `bun:"vendor_id,notnull" json:"vendor_id"`
	Title     string    `bun:"title,notnull" json:"title"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	DeletedAt time.Time `bun:"deleted_at,nullzero" json:"deleted_at,omitempty"`
}

type ServiceRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}
