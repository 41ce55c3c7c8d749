package storage

import (
	"context"
	"fmt"
	"ms-booking/internal/models"
)

var tables = []interface{}{
	(*models.Vendor)(nil),
	(*models.ServiceListing)(nil),
	(*models.Subscription)(nil),
	(*models.Booking)(nil),
	(*models.StatusHistory)(nil),
	(*models.Quote)(nil),
	(*models.QuoteLineItem)(nil),
	(*models.Payment)(nil),
	(*models.Receipt)(nil),
}

type index struct {
	model   interface{}
	name    string
	columns []string
	unique  bool
	where   string
}

var indexes = []index{
	{model: (*models.ServiceListing)(nil), name: "idx_services_vendor", columns: []string{"vendor_id"}},
	{model: (*models.Subscription)(nil), name: "idx_subscriptions_one_active", columns: []string{"vendor_id"}, unique: true, where: "status = 'active'"},
	{model: (*models.Booking)(nil), name: "idx_bookings_vendor", columns: []string{"vendor_id"}},
	{model: (*models.Booking)(nil), name: "idx_bookings_status", columns: []string{"status"}},
	{model: (*models.StatusHistory)(nil), name: "idx_history_booking", columns: []string{"booking_id"}},
	{model: (*models.Quote)(nil), name: "idx_quotes_one_active", columns: []string{"booking_id"}, unique: true, where: "status = 'active'"},
	{model: (*models.QuoteLineItem)(nil), name: "idx_line_items_quote", columns: []string{"quote_id"}},
	{model: (*models.Payment)(nil), name: "idx_payments_booking", columns: []string{"booking_id"}},
	{model: (*models.Receipt)(nil), name: "idx_receipts_booking", columns: []string{"booking_id"}},
}

// CreateSchema creates every table and index from the bun models. Production
// databases are migrated with the SQL files under internal/database/migrations;
// this is for tests and local sqlite runs.
func (d *DB) CreateSchema(ctx context.Context) error {
	for _, model := range tables {
		if _, err := d.Bun.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	for _, ix := range indexes {
		q := d.Bun.NewCreateIndex().Model(ix.model).Index(ix.name).Column(ix.columns...).IfNotExists()
		if ix.unique {
			q = q.Unique()
		}
		if ix.where != "" {
			q = q.Where(ix.where)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create index %s: %w", ix.name, err)
		}
	}
	return nil
}
